package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/internal/algorithms"
	"github.com/fedinode/fedinode/internal/safehttp"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/resolver"
	"github.com/fedinode/fedinode/salmon"
	"golang.org/x/time/rate"
)

// Resolver finds the endpoints of actors who are not contacts.
type Resolver interface {
	Resolve(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *resolver.Record
}

// Notifier computes who must receive a command and schedules delivery.
type Notifier struct {
	env      *models.Env
	spawner  Spawner
	resolver Resolver
	client   *http.Client
}

func NewNotifier(env *models.Env, spawner Spawner, resolver Resolver) *Notifier {
	return &Notifier{
		env:      env,
		spawner:  spawner,
		resolver: resolver,
		client:   safehttp.NewClient(env.Config.Delivery.Timeout, env.Config.Resolver.AllowPrivateNetworks),
	}
}

// Notify distributes the subject of cmd. id names an item, a private
// message (mail), a suggestion (suggest) or a local user (expire, relocate
// and removeme). A subject or owner which no longer exists is not an error.
func (n *Notifier) Notify(ctx context.Context, cmd models.Command, id snowflake.ID) error {
	log := n.env.Log().With("cmd", cmd, "id", id)
	j, err := loadJob(ctx, n.env, cmd, id)
	if errors.Is(err, errVanished) {
		log.Debug("notify: nothing to deliver")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify %s %d: %w", cmd, id, err)
	}

	recipients, err := n.recipients(ctx, j)
	if err != nil {
		return fmt.Errorf("notify %s %d: %w", cmd, id, err)
	}
	if j.target != nil {
		n.slap(ctx, j)
		n.ping(ctx, j)
	}

	if err := models.NewTasks(n.env.DB.WithContext(ctx)).Enqueue(cmd, id, recipients...); err != nil {
		return fmt.Errorf("notify %s %d: %w", cmd, id, err)
	}
	log.Info("notify", "recipients", len(recipients), "public", j.public, "followup", j.followup)
	if err := n.schedule(ctx, cmd, id, recipients); err != nil {
		return err
	}

	// a relayed reply already reaches the forum through its owner
	if j.target != nil && cmd != models.Uplink && !j.followup && !j.topLevel && j.parent.ForumMode == models.PublicForum {
		return n.Notify(ctx, models.Uplink, id)
	}
	return nil
}

// schedule hands recipients to the spawner in batches, pausing the
// configured interval between launches.
func (n *Notifier) schedule(ctx context.Context, cmd models.Command, id snowflake.ID, recipients []snowflake.ID) error {
	cfg := n.env.Config.Delivery
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	limiter := rate.NewLimiter(limit, 1)
	for _, batch := range algorithms.Chunk(recipients, cfg.BatchSize) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		n.spawner.Spawn(ctx, cmd, id, batch)
	}
	return nil
}

// networks returns the protocols the recipients of j may speak.
func (n *Notifier) networks(j *job) []models.Protocol {
	cfg := n.env.Config.Federation
	if cfg.DFRNOnly {
		return []models.Protocol{models.DFRN}
	}
	nets := []models.Protocol{models.DFRN}
	if cfg.OStatusEnabled {
		nets = append(nets, models.OStatus)
	}
	if j.ostatusThread() {
		return nets
	}
	if cfg.DiasporaEnabled {
		nets = append(nets, models.Diaspora)
	}
	if cfg.MailEnabled {
		nets = append(nets, models.Mail)
	}
	return nets
}

func (n *Notifier) recipients(ctx context.Context, j *job) ([]snowflake.ID, error) {
	db := n.env.DB.WithContext(ctx)
	contacts := models.NewContacts(db)
	uid := j.uid()

	var found []*models.Contact
	var err error
	switch j.cmd {
	case models.SendMail:
		found, err = contacts.Recipients(uid, []snowflake.ID{j.mail.ContactID}, models.Protocols)
	case models.Suggest:
		found, err = contacts.Recipients(uid, []snowflake.ID{j.suggestion.ContactID}, models.Protocols)
	case models.Relocate:
		found, err = contacts.FindByProtocol(uid, []models.Protocol{models.DFRN}, 0)
	case models.RemoveMe:
		found, err = contacts.FindAll(uid)
	case models.Expire:
		if len(j.items) == 0 {
			return nil, nil
		}
		found, err = contacts.FindByProtocol(uid, []models.Protocol{models.DFRN}, 0)
	default:
		return n.audience(ctx, j)
	}
	if err != nil {
		return nil, err
	}
	return ids(found), nil
}

// audience computes the recipients of an item command.
func (n *Notifier) audience(ctx context.Context, j *job) ([]snowflake.ID, error) {
	db := n.env.DB.WithContext(ctx)
	contacts := models.NewContacts(db)
	groups := models.NewGroups(db)
	uid := j.uid()
	nets := n.networks(j)
	t := j.target

	if j.followup {
		found, err := contacts.Recipients(uid, []snowflake.ID{j.parent.ContactID}, nets)
		return ids(found), err
	}
	// deletions of other people's items stay here
	if t.Deleted && !t.Wall {
		return nil, nil
	}

	acl, ok := j.parent.ACL()
	if !ok {
		acl = models.ACL{}
	}
	candidates, err := models.NewItems(db).Conversants(j.parent.ID)
	if err != nil {
		return nil, err
	}
	allowed, err := groups.Expand(uid, acl.AllowGID, true)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, acl.AllowCID...)
	candidates = append(candidates, allowed...)
	if j.public {
		for _, link := range t.Mentions {
			if c, err := contacts.FindByURL(uid, link); err == nil {
				candidates = append(candidates, c.ID)
			}
		}
	}
	if n.env.Config.Federation.MailEnabled && t.PubMail && t.IsPublic() {
		mail, err := contacts.FindByProtocol(uid, []models.Protocol{models.Mail}, 0)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ids(mail)...)
	}

	denied, err := groups.Expand(uid, acl.DenyGID, false)
	if err != nil {
		return nil, err
	}
	candidates = algorithms.Without(algorithms.Uniq(candidates), acl.DenyCID, denied)

	found, err := contacts.Recipients(uid, candidates, nets)
	if err != nil {
		return nil, err
	}
	if j.public {
		// Diaspora contacts receive public items through their batch endpoint
		found = algorithms.Filter(found, func(c *models.Contact) bool {
			return c.Protocol != models.Diaspora
		})
	}
	recipients := ids(found)
	if !j.public {
		return recipients, nil
	}

	var public []*models.Contact
	if algorithms.Contains(nets, models.Diaspora) {
		batch, err := contacts.BatchRecipients(uid)
		if err != nil {
			return nil, err
		}
		public = append(public, batch...)
	}
	others, err := contacts.FindByProtocol(uid, algorithms.Filter(nets, func(p models.Protocol) bool {
		return p == models.DFRN || p == models.Mail
	}), models.Sharing)
	if err != nil {
		return nil, err
	}
	public = append(public, others...)
	return algorithms.Uniq(append(recipients, ids(public)...)), nil
}

// slap notifies the actors of an OStatus thread directly with a signed
// salmon envelope: they may not be contacts at all.
func (n *Notifier) slap(ctx context.Context, j *job) {
	cfg := n.env.Config.Federation
	if !j.ostatusThread() || cfg.DFRNOnly || !cfg.OStatusEnabled || j.target.Body == "" {
		return
	}
	log := n.env.Log().With("cmd", j.cmd, "id", j.id)
	contacts := models.NewContacts(n.env.DB.WithContext(ctx))

	links := []string{j.parent.AuthorLink, j.parent.OwnerLink}
	links = append(links, j.target.Mentions...)
	var endpoints []string
	for _, link := range algorithms.Uniq(links) {
		if link == "" || models.LinkCompare(link, j.owner.Self.URL) {
			continue
		}
		if notify, ok := contacts.FindNotify(j.uid(), link); ok {
			endpoints = append(endpoints, notify)
			continue
		}
		if rec := n.resolver.Resolve(ctx, link, models.OStatus, j.uid()); rec.Protocol == models.OStatus && rec.Notify != "" {
			endpoints = append(endpoints, rec.Notify)
		}
	}
	if len(endpoints) == 0 {
		return
	}

	key, err := j.owner.PrivKey()
	if err != nil {
		log.Warn("slap: owner key", "err", err)
		return
	}
	entry, err := dfrn.MarshalEntry(dfrn.NewEntry(j.target))
	if err != nil {
		log.Warn("slap: entry", "err", err)
		return
	}
	env, err := salmon.Sign(entry, dfrn.ContentType, j.owner.KeyID(), key)
	if err != nil {
		log.Warn("slap: sign", "err", err)
		return
	}
	for _, endpoint := range algorithms.Uniq(endpoints) {
		ctx, cancel := context.WithTimeout(ctx, n.timeout())
		if err := salmon.Deliver(ctx, n.client, endpoint, env); err != nil {
			log.Info("slap failed", "endpoint", endpoint, "err", err)
		}
		cancel()
	}
}

// ping tells the configured PuSH hubs that the owner's public feed changed.
func (n *Notifier) ping(ctx context.Context, j *job) {
	hubs := n.env.Config.Federation.Hubs
	if len(hubs) == 0 || j.followup || !(j.public || j.ostatusThread()) {
		return
	}
	topic := n.env.Config.FeedURL(j.owner.Nickname)
	for _, hub := range hubs {
		ctx, cancel := context.WithTimeout(ctx, n.timeout())
		err := requests.URL(hub).
			Client(n.client).
			BodyForm(url.Values{"hub.mode": {"publish"}, "hub.url": {topic}}).
			Fetch(ctx)
		cancel()
		if err != nil {
			n.env.Log().Info("hub ping failed", "hub", hub, "err", err)
		}
	}
}

func (n *Notifier) timeout() time.Duration {
	if t := n.env.Config.Delivery.Timeout; t > 0 {
		return t
	}
	return 20 * time.Second
}

func ids(contacts []*models.Contact) []snowflake.ID {
	return algorithms.Map(contacts, func(c *models.Contact) snowflake.ID { return c.ID })
}
