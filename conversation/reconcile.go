// Package conversation completes remote OStatus conversations: it fetches
// every entry of a conversation a local user has seen part of, and stores
// the missing ones in a single local thread.
package conversation

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fedinode/fedinode/internal/algorithms"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/safehttp"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/resolver"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// ErrNotFound is returned when nothing could be stored: the conversation
// was unreachable and no pending item was supplied.
var ErrNotFound = errors.New("conversation: not found")

const maxPageSize = 4 << 20

// Resolver finds the identity of conversation authors who are not contacts.
type Resolver interface {
	Resolve(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *resolver.Record
}

// Reconciler imports remote conversations.
type Reconciler struct {
	env      *models.Env
	client   *http.Client
	resolver Resolver
	metrics  metrics.Recorder
	ugc      *bluemonday.Policy
	strict   *bluemonday.Policy
}

type Option func(*Reconciler)

func WithClient(client *http.Client) Option {
	return func(r *Reconciler) {
		r.client = client
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func New(env *models.Env, res Resolver, opts ...Option) *Reconciler {
	r := &Reconciler{
		env:      env,
		resolver: res,
		metrics:  metrics.Discard,
		ugc:      bluemonday.UGCPolicy(),
		strict:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = safehttp.NewClient(env.Config.Resolver.XRDTimeout, env.Config.Resolver.AllowPrivateNetworks)
	}
	return r
}

// thread is the working parent of a reconciliation.
type thread struct {
	// root is the stored root item; nil until the root is known locally.
	root *models.Item
	uri  string
	// contactID owns entries whose authors are not contacts of the user.
	contactID snowflake.ID
}

func (t *thread) set(root *models.Item) {
	t.root = root
	t.uri = root.URI
	t.contactID = root.ContactID
}

// run is the state of one Reconcile call.
type run struct {
	*Reconciler
	db      *gorm.DB
	log     *slog.Logger
	uid     snowflake.ID
	ref     string
	pending *models.Item
	parent  thread
	// stored is the id returned to the caller.
	stored snowflake.ID
	// created counts new items.
	created int
	// changed is set once the thread is written to.
	changed bool
	// aliases maps the ids of reshares to the uri of the shared original
	// they are stored under.
	aliases map[string]string
}

// Reconcile imports the conversation ref on behalf of the local user uid.
// pending, if set, is the item which led to the conversation; it is stored
// as part of the conversation, or on its own if the conversation cannot be
// fetched. Reconcile returns the id of the stored pending item, or of the
// thread root if there is no pending item.
func (r *Reconciler) Reconcile(ctx context.Context, ref string, uid snowflake.ID, pending *models.Item) (snowflake.ID, error) {
	ref = ConvertHref(strings.TrimSpace(ref))
	db := r.env.DB.WithContext(ctx)
	owner, err := models.NewUsers(db).FindOwner(uid)
	switch {
	case models.IsNotFound(err):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	}
	w := &run{
		Reconciler: r,
		db:         db,
		log:        r.env.Log().With("conversation", ref, "uid", uid),
		uid:        uid,
		ref:        ref,
		pending:    pending,
		aliases:    make(map[string]string),
	}
	if pending != nil {
		pending.UID = uid
	}

	if ref == "" || !r.env.Config.Reconciler.Complete || (pending != nil && pending.HasVerb(models.VerbLike, models.VerbFavorite)) {
		if pending == nil {
			return 0, ErrNotFound
		}
		return w.storePending(false)
	}

	if err := w.workingParent(owner); err != nil {
		return 0, err
	}
	entries := r.fetch(ctx, w.log, Endpoint(ref))
	w.log.Debug("conversation fetched", "entries", len(entries))
	if len(entries) == 0 {
		if pending == nil {
			return 0, ErrNotFound
		}
		w.log.Info("conversation unreachable, storing item alone")
		return w.storePending(true)
	}

	for i, e := range entries {
		if err := w.entry(ctx, e, i == 0); err != nil {
			return 0, fmt.Errorf("conversation %s: %w", ref, err)
		}
	}
	if w.pending != nil {
		w.log.Debug("item not part of conversation", "uri", w.pending.URI)
		id, err := w.storePending(false)
		if err != nil {
			return 0, err
		}
		w.stored = id
	}
	if w.changed && w.parent.root != nil {
		if err := w.link(w.parent.root.ParentID); err != nil {
			return 0, err
		}
	}
	r.metrics.RecordReconciled(w.created)

	switch {
	case w.stored != 0:
		return w.stored, nil
	case w.parent.root != nil:
		return w.parent.root.ID, nil
	default:
		return 0, ErrNotFound
	}
}

// workingParent picks the thread entries are attached to: the thread
// already linked to the conversation, else the pending item, else a
// synthetic root owned by the user.
func (w *run) workingParent(owner *models.Owner) error {
	link, err := models.NewConversations(w.db).Find(w.uid, w.ref)
	switch {
	case err == nil:
		root, err := models.NewItems(w.db).FindByID(link.ItemID)
		if err == nil {
			w.parent.set(root)
			return nil
		}
		if !models.IsNotFound(err) {
			return err
		}
	case !models.IsNotFound(err):
		return err
	}
	if w.pending != nil {
		w.parent = thread{uri: w.pending.URI, contactID: w.pending.ContactID}
		return nil
	}
	w.parent = thread{contactID: owner.Self.ID}
	return nil
}

// entry stores or reconciles one conversation entry. first is set for the
// oldest entry, which decides the thread starter.
func (w *run) entry(ctx context.Context, e *activity, first bool) error {
	items := models.NewItems(w.db)
	uri := w.uri(e)
	if first {
		if err := w.starter(uri); err != nil {
			return err
		}
	}

	existing, err := items.FindByURI(w.uid, uri)
	switch {
	case err == nil:
		if w.parent.root == nil && existing.URI == w.parent.uri {
			root, err := items.FindByID(existing.ParentID)
			if err != nil {
				return err
			}
			w.parent.set(root)
		}
		if w.parent.root != nil && existing.ParentID != w.parent.root.ParentID {
			if err := w.reparent(existing); err != nil {
				return err
			}
		}
		if w.pending != nil && w.pending.URI == existing.URI {
			w.stored = existing.ID
			w.pending = nil
		}
		return nil
	case !models.IsNotFound(err):
		return err
	}

	item, matched, err := w.item(ctx, e, uri)
	if err != nil {
		return err
	}
	stored, created, err := items.Store(item)
	if err != nil {
		return err
	}
	if created {
		w.created++
		w.changed = true
	}
	if matched {
		w.stored = stored.ID
	}
	if stored.URI == w.parent.uri && w.parent.root == nil {
		w.parent.set(stored)
	}
	w.log.Debug("stored conversation entry", "uri", stored.URI, "parent", stored.ParentURI)
	return nil
}

// starter reconciles the working parent with the oldest entry of the
// conversation.
func (w *run) starter(uri string) error {
	switch {
	case w.parent.uri == "":
		w.parent.uri = uri
	case uri != w.parent.uri:
		found, err := w.rootOf(uri)
		if err != nil {
			return err
		}
		switch {
		case found == nil:
			// we never had the real thread starter
			w.parent.root = nil
			w.parent.uri = uri
		case w.parent.root != nil && found.ID == w.parent.root.ID:
			// the starter is already part of our thread
		default:
			w.parent.set(found)
		}
	}
	return nil
}

// rootOf returns the root of the DFRN or OStatus thread holding uri.
func (w *run) rootOf(uri string) (*models.Item, error) {
	items := models.NewItems(w.db)
	item, err := items.FindByURI(w.uid, uri)
	switch {
	case models.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if item.Network != models.OStatus && item.Network != models.DFRN {
		return nil, nil
	}
	root, err := items.FindByID(item.ParentID)
	if models.IsNotFound(err) {
		return nil, nil
	}
	return root, err
}

// reparent moves the thread holding existing, which was started under a
// guessed root, into the working parent's thread.
func (w *run) reparent(existing *models.Item) error {
	old := existing.ParentID
	n, err := models.NewItems(w.db).Reparent(old, w.parent.root)
	if err != nil {
		return err
	}
	w.log.Info("conversation reparented", "from", old, "to", w.parent.root.ID, "items", n)
	w.changed = true
	return models.NewConversations(w.db).Unlink(old)
}

func (w *run) link(rootID snowflake.ID) error {
	return models.NewConversations(w.db).Set(w.uid, w.ref, rootID)
}

// storePending stores the pending item, unparented if its parent is not
// known. If linked, the conversation is linked to the item's thread.
func (w *run) storePending(linked bool) (snowflake.ID, error) {
	stored, created, err := models.NewItems(w.db).Store(w.pending)
	if err != nil {
		return 0, err
	}
	if created {
		w.created++
	}
	w.pending = nil
	if linked {
		if err := w.link(stored.ParentID); err != nil {
			return 0, err
		}
	}
	return stored.ID, nil
}

// uri returns the uri e is stored under. A reshare is stored as the shared
// original; its own id is kept as an alias so replies to it find it.
func (w *run) uri(e *activity) string {
	key := e.key()
	if e.Verb != "share" {
		return key
	}
	shared := e.Object.first()
	if shared == nil {
		return key
	}
	orig := shared
	if inner := shared.Object.first(); inner != nil {
		orig = inner
	}
	uri := cmp.Or(orig.ID, shared.ID, key)
	if uri != key {
		w.aliases[key] = uri
	}
	return uri
}

// resolve follows a reshare alias.
func (w *run) resolve(uri string) string {
	if alias, ok := w.aliases[uri]; ok {
		return alias
	}
	return uri
}

// item maps a conversation entry stored under uri to a local item in the
// working thread. If the entry is the pending item, the pending item is
// returned in its place and matched is set.
func (w *run) item(ctx context.Context, e *activity, uri string) (item *models.Item, matched bool, err error) {
	contactID, err := w.author(ctx, &e.Actor)
	if err != nil {
		return nil, false, err
	}
	link := e.Actor.link()
	item = &models.Item{
		UID:          w.uid,
		ContactID:    contactID,
		URI:          uri,
		Plink:        e.key(),
		ParentURI:    w.resolve(w.parent.uri),
		ThrParent:    w.resolve(e.inReplyTo()),
		CreatedAt:    e.published(),
		AuthorName:   e.Actor.name(),
		AuthorLink:   link,
		AuthorAvatar: e.Actor.Image.URL,
		OwnerName:    e.Actor.name(),
		OwnerLink:    link,
		OwnerAvatar:  e.Actor.Image.URL,
		Title:        e.Title,
		Body:         w.ugc.Sanitize(e.Content),
		Verb:         models.VerbPost,
		ObjectType:   models.ObjectComment,
		Network:      models.OStatus,
		App:          w.app(e),
	}
	if e.URL != "" {
		item.Plink = e.URL
	}
	if item.URI == item.ParentURI {
		item.ObjectType = models.ObjectNote
	}
	for _, to := range e.To {
		if to.ID != "" {
			item.Mentions = append(item.Mentions, to.ID)
		}
	}
	if e.Verb == "share" {
		if shared := e.Object.first(); shared != nil {
			w.unwrap(item, shared)
		}
	}

	if p := w.pending; p != nil && (p.URI == item.URI || p.URI == e.key()) {
		// the entry we were handed carries more than the conversation does
		pending := *p
		pending.ParentURI = w.resolve(w.parent.uri)
		if pending.ThrParent == "" || pending.ThrParent == pending.URI {
			pending.ThrParent = item.ThrParent
		}
		w.pending = nil
		item, matched = &pending, true
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return item, matched, nil
}

// unwrap replaces a reshare with the original content and author.
func (w *run) unwrap(item *models.Item, shared *activity) {
	orig := shared
	if inner := shared.Object.first(); inner != nil {
		orig = inner
	}
	item.Plink = cmp.Or(orig.URL, shared.URL, item.Plink)
	if orig.Content != "" {
		item.Body = w.ugc.Sanitize(orig.Content)
	} else {
		item.Body = w.ugc.Sanitize(shared.Content)
	}
	if t := shared.published(); !t.IsZero() {
		item.CreatedAt = t
	}
	if name := shared.Actor.name(); name != "" {
		item.AuthorName = name
	}
	if link := shared.Actor.link(); link != "" {
		item.AuthorLink = link
	}
	item.AuthorAvatar = shared.Actor.Image.URL
	if item.URI == item.ParentURI {
		item.ObjectType = models.ObjectNote
	}
	if shared.Provider.DisplayName != "" {
		item.App = shared.Provider.DisplayName + "#"
	}
}

// author returns the contact entries by a are stored under: the user's
// contact for a, or the working parent's contact. An unknown author is
// recorded as a shared contact.
func (w *run) author(ctx context.Context, a *actor) (snowflake.ID, error) {
	link := a.link()
	if link == "" {
		return w.parent.contactID, nil
	}
	contacts := models.NewContacts(w.db)
	c, err := contacts.FindByURL(w.uid, link)
	switch {
	case err == nil:
		return c.ID, nil
	case !models.IsNotFound(err):
		return 0, err
	}
	if _, err := contacts.FindByURL(0, link); err == nil {
		return w.parent.contactID, nil
	}
	rec := w.resolver.Resolve(ctx, link, "", 0).Contact()
	if rec.Name == "" {
		rec.Name = a.name()
	}
	if rec.Photo == "" {
		rec.Photo = a.Image.URL
	}
	if rec.URL == "" {
		rec.URL = link
	}
	if _, err := contacts.FindOrCreateShared(rec); err != nil {
		return 0, err
	}
	return w.parent.contactID, nil
}

func (w *run) app(e *activity) string {
	switch {
	case e.NoticeInfo.Source != "":
		return strings.TrimSpace(w.strict.Sanitize(e.NoticeInfo.Source))
	case e.Provider.DisplayName != "":
		return e.Provider.DisplayName
	default:
		return "OStatus"
	}
}

// fetch collects the entries of the conversation at endpoint, oldest
// first. A page which fails is retried once with the other scheme; the
// crawl stops at the first page which adds nothing.
func (r *Reconciler) fetch(ctx context.Context, log *slog.Logger, endpoint string) []*activity {
	maxPages := r.env.Config.Reconciler.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	seen := make(map[string]bool)
	var entries []*activity
	for n := 1; n <= maxPages; n++ {
		b, err := r.get(ctx, endpoint, n)
		if err != nil {
			endpoint = otherScheme(endpoint)
			if b, err = r.get(ctx, endpoint, n); err != nil {
				log.Debug("conversation page failed", "endpoint", endpoint, "page", n, "err", err)
				break
			}
		}
		p, err := decodePage(b)
		if err != nil {
			log.Debug("conversation page unreadable", "endpoint", endpoint, "page", n, "err", err)
			break
		}
		before := len(entries)
		for _, e := range p.Items {
			if key := e.key(); key != "" && !seen[key] {
				seen[key] = true
				entries = append(entries, e)
			}
		}
		if len(entries) == before {
			break
		}
	}
	// pages are newest first
	algorithms.Reverse(entries)
	return entries
}

func (r *Reconciler) get(ctx context.Context, endpoint string, page int) ([]byte, error) {
	timeout := r.env.Config.Resolver.XRDTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var buf bytes.Buffer
	err := requests.URL(endpoint).
		Client(r.client).
		Param("page", strconv.Itoa(page)).
		Accept("application/json").
		Handle(func(res *http.Response) error {
			defer res.Body.Close()
			_, err := buf.ReadFrom(io.LimitReader(res.Body, maxPageSize))
			return err
		}).
		Fetch(ctx)
	return buf.Bytes(), err
}

func otherScheme(u string) string {
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "http://" + rest
	}
	if rest, ok := strings.CutPrefix(u, "http://"); ok {
		return "https://" + rest
	}
	return u
}
