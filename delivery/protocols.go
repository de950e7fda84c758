package delivery

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/diaspora"
	"github.com/fedinode/fedinode/email"
	"github.com/fedinode/fedinode/models"
)

const mailContentType = "message/rfc822"

func (e *Executor) buildDFRN(ctx context.Context, j *job, c *models.Contact) (*envelope, error) {
	if c.Notify == "" {
		return nil, ErrSkipped
	}
	var form *dfrn.Form
	if j.cmd == models.RemoveMe {
		form = dfrn.DissolveForm()
	} else {
		var feed *dfrn.Feed
		switch j.cmd {
		case models.SendMail:
			feed = dfrn.NewMailFeed(j.owner, j.mail)
		case models.Suggest:
			feed = dfrn.NewSuggestFeed(j.owner, j.suggestion)
		case models.Relocate:
			feed = dfrn.NewRelocateFeed(j.owner, string(j.owner.PublicKey))
		default:
			if len(j.items) == 0 {
				return nil, ErrSkipped
			}
			feed = dfrn.NewFeed(j.owner, e.now())
			feed.AddItems(j.items...)
		}
		b, err := feed.Marshal()
		if err != nil {
			return nil, err
		}
		form = dfrn.NewForm(b, c)
	}
	return &envelope{
		endpoint:    c.Notify,
		contentType: dfrn.FormContentType,
		body:        form.Encode(),
		local:       e.isLocal(c),
	}, nil
}

func (e *Executor) transmitDFRN(ctx context.Context, j *job, c *models.Contact, env *envelope) error {
	if env.local {
		return e.importLocal(ctx, j, c, env.body)
	}
	return dfrn.Post(ctx, e.client, j.owner, env.endpoint, env.body)
}

// isLocal reports whether c is the profile of a user of this node.
func (e *Executor) isLocal(c *models.Contact) bool {
	u, err := url.Parse(c.URL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == e.env.Config.LocalHost() && strings.HasPrefix(u.Path, "/profile/")
}

// importLocal hands the notification straight to the local recipient's
// importer, as if it had arrived at their notify endpoint.
func (e *Executor) importLocal(ctx context.Context, j *job, c *models.Contact, body []byte) error {
	db := e.env.DB.WithContext(ctx)
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}
	users := models.NewUsers(db)
	user, err := users.FindByNickname(path.Base(u.Path))
	if err != nil {
		return fmt.Errorf("local recipient %s: %w", c.URL, err)
	}
	recipient, err := users.FindOwner(user.ID)
	if err != nil {
		return err
	}
	sender, err := models.NewContacts(db).FindByURL(recipient.ID, j.owner.Self.URL)
	if err != nil {
		return fmt.Errorf("%s is not a contact of %s: %w", j.owner.Self.URL, c.URL, err)
	}
	form, err := dfrn.ParseForm(body)
	if err != nil {
		return err
	}
	_, err = e.importer.Import(ctx, recipient, sender, form)
	return err
}

func (e *Executor) buildDiaspora(ctx context.Context, j *job, c *models.Contact) (*envelope, error) {
	cfg := e.env.Config.Federation
	if cfg.DFRNOnly || !cfg.DiasporaEnabled {
		return nil, ErrSkipped
	}
	endpoint := c.Notify
	if j.public {
		endpoint = c.Batch
	} else if c.PubKey == "" {
		return nil, ErrSkipped
	}
	if endpoint == "" {
		return nil, ErrSkipped
	}
	key, err := j.owner.PrivKey()
	if err != nil {
		return nil, err
	}
	author := j.owner.Addr()

	var entity any
	switch j.cmd {
	case models.SendMail:
		entity = diaspora.NewMessage(author, j.mail)
	case models.RemoveMe:
		entity = diaspora.NewContactRetraction(author, c.Addr)
	case models.Relocate:
		if entity, err = diaspora.NewAccountMigration(j.owner, key); err != nil {
			return nil, err
		}
	case models.Suggest, models.Expire:
		return nil, ErrSkipped
	default:
		if entity, err = e.diasporaItem(ctx, j, key); err != nil {
			return nil, err
		}
	}
	body, err := diaspora.Envelope(entity, author, key)
	if err != nil {
		return nil, err
	}
	return &envelope{
		endpoint:    endpoint,
		contentType: diaspora.ContentType,
		body:        body,
	}, nil
}

// diasporaItem returns the entity carrying the job's item.
func (e *Executor) diasporaItem(ctx context.Context, j *job, key *rsa.PrivateKey) (any, error) {
	t := j.target
	author := j.owner.Addr()
	if t.HasVerb(models.VerbDislike, models.VerbAttend, models.VerbAttendNo, models.VerbAttendMaybe) {
		return nil, ErrSkipped
	}
	switch {
	case t.Deleted && (j.topLevel || j.followup):
		return diaspora.NewRetraction(author, t), nil
	case j.followup:
		// to the thread owner, who adds the parent author signature
		r := diaspora.NewRelayable(author, t, j.parent.GUID)
		sig, err := diaspora.Sign(r, key)
		if err != nil {
			return nil, err
		}
		diaspora.SetSignatures(r, sig, "")
		return r, nil
	case !j.topLevel:
		if t.Deleted {
			return diaspora.NewRetraction(author, t), nil
		}
		return e.relay(ctx, j, key)
	case t.OwnerLink != "" && t.AuthorLink != "" && !models.LinkCompare(t.OwnerLink, t.AuthorLink):
		// wall-to-wall posts have no representation
		return nil, ErrSkipped
	default:
		return diaspora.NewStatusMessage(author, t), nil
	}
}

// relay returns a reply to one of our threads for forwarding to the other
// conversants, signed by us as the parent author.
func (e *Executor) relay(ctx context.Context, j *job, key *rsa.PrivateKey) (any, error) {
	t := j.target
	itemAuthor := j.owner.Addr()
	if !t.Origin {
		c, err := models.NewContacts(e.env.DB.WithContext(ctx)).FindByID(t.ContactID)
		if err != nil || c.Addr == "" || t.Signature == "" {
			// without the author's own signature the reply cannot be relayed
			return nil, ErrSkipped
		}
		itemAuthor = c.Addr
	}
	r := diaspora.NewRelayable(itemAuthor, t, j.parent.GUID)
	authorSig := t.Signature
	if t.Origin {
		sig, err := diaspora.Sign(r, key)
		if err != nil {
			return nil, err
		}
		authorSig = sig
	}
	parentSig, err := diaspora.Sign(r, key)
	if err != nil {
		return nil, err
	}
	diaspora.SetSignatures(r, authorSig, parentSig)
	return r, nil
}

// post transmits a magic envelope.
func (e *Executor) post(ctx context.Context, j *job, c *models.Contact, env *envelope) error {
	return diaspora.Post(ctx, e.client, env.endpoint, env.body)
}

// buildOStatus sends nothing: OStatus followers pull the public feed after
// the hub ping, and thread participants were slapped by the Notifier.
func (e *Executor) buildOStatus(ctx context.Context, j *job, c *models.Contact) (*envelope, error) {
	cfg := e.env.Config.Federation
	if cfg.DFRNOnly || !cfg.OStatusEnabled {
		return nil, ErrSkipped
	}
	return nil, nil
}

func (e *Executor) buildMail(ctx context.Context, j *job, c *models.Contact) (*envelope, error) {
	cfg := e.env.Config.Federation
	if cfg.DFRNOnly || !cfg.MailEnabled || c.Addr == "" {
		return nil, ErrSkipped
	}
	if j.cmd != models.WallNew && j.cmd != models.CommentNew {
		return nil, ErrSkipped
	}
	acct, err := models.NewMailboxes(e.env.DB.WithContext(ctx)).FindAccount(j.uid())
	switch {
	case models.IsNotFound(err):
		return nil, ErrSkipped
	case err != nil:
		return nil, err
	}
	msg := email.Compose(j.owner, c, acct, j.target, j.parent.Title, e.env.Config.Hostname)
	body, err := msg.Bytes()
	if err != nil {
		return nil, err
	}
	return &envelope{
		endpoint:    "mailto:" + c.Addr,
		contentType: mailContentType,
		body:        body,
	}, nil
}

func (e *Executor) transmitMail(ctx context.Context, j *job, c *models.Contact, env *envelope) error {
	from, err := email.EnvelopeFrom(env.body)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, from, []string{strings.TrimPrefix(env.endpoint, "mailto:")}, env.body)
}
