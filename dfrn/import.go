package dfrn

import (
	"context"
	"fmt"
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"gorm.io/gorm"
)

// A Relayer distributes an item to the participants of its thread.
type Relayer interface {
	Notify(ctx context.Context, cmd models.Command, id snowflake.ID) error
}

// Importer stores the content of DFRN notifications received by local users.
type Importer struct {
	env   *models.Env
	relay Relayer
}

type ImporterOption func(*Importer)

// WithRelay passes replies to threads owned by the recipient on to r, which
// forwards them to everybody else in the thread.
func WithRelay(r Relayer) ImporterOption {
	return func(im *Importer) {
		im.relay = r
	}
}

func NewImporter(env *models.Env, opts ...ImporterOption) *Importer {
	im := &Importer{
		env: env,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import applies the notification sent by sender to owner. It returns the
// number of new items stored.
func (im *Importer) Import(ctx context.Context, owner *models.Owner, sender *models.Contact, form *Form) (int, error) {
	db := im.env.DB.WithContext(ctx)
	log := im.env.Log().With("uid", owner.ID, "contact", sender.ID)
	contacts := models.NewContacts(db)

	if form.Dissolve != 0 {
		log.Info("dfrn: contact dissolved relationship")
		return 0, db.Delete(sender).Error
	}

	feed, err := Parse([]byte(form.Data))
	if err != nil {
		return 0, err
	}
	if err := contacts.Unmark(sender); err != nil {
		return 0, err
	}
	if writable := form.Perm == "rw"; writable != sender.Writable {
		if err := db.Model(sender).Update("writable", writable).Error; err != nil {
			return 0, err
		}
	}

	switch {
	case feed.Mail != nil:
		return 0, im.importMail(db, owner, sender, feed.Mail)
	case feed.Suggest != nil:
		return 0, im.importSuggest(db, owner, sender, feed.Suggest)
	case feed.Relocate != nil:
		return 0, im.importRelocate(db, sender, feed.Relocate)
	}

	items := models.NewItems(db)
	for _, ts := range feed.Deleted {
		res := db.Model(&models.Item{}).
			Where("uid = ? AND uri = ? AND contact_id = ?", owner.ID, ts.Ref, sender.ID).
			Update("deleted", true)
		if res.Error != nil {
			return 0, res.Error
		}
	}
	created := 0
	var relayed []snowflake.ID
	for _, e := range feed.Entries {
		if e.InReplyTo == nil && sender.Rel == models.Follower {
			// followers may only comment
			log.Debug("dfrn: dropping top level entry from follower", "uri", e.ID)
			continue
		}
		stored, ok, err := items.Store(entryItem(owner, sender, e))
		if err != nil {
			return created, fmt.Errorf("dfrn: store %s: %w", e.ID, err)
		}
		if !ok {
			continue
		}
		created++
		own, err := ownThread(items, stored)
		if err != nil {
			return created, err
		}
		if own {
			relayed = append(relayed, stored.ID)
		}
	}
	if im.relay == nil {
		return created, nil
	}
	for _, id := range relayed {
		if err := im.relay.Notify(ctx, models.CommentImport, id); err != nil {
			log.Warn("dfrn: relay comment", "item", id, "err", err)
		}
	}
	return created, nil
}

// ownThread reports whether item is a reply in a thread started on the
// recipient's wall.
func ownThread(items *models.Items, item *models.Item) (bool, error) {
	if item.IsTopLevel() {
		return false, nil
	}
	root, err := items.FindByID(item.ParentID)
	switch {
	case models.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return root.Origin && root.Wall, nil
}

func entryItem(owner *models.Owner, sender *models.Contact, e *Entry) *models.Item {
	item := &models.Item{
		UID:          owner.ID,
		ContactID:    sender.ID,
		GUID:         e.GUID,
		URI:          e.ID,
		Plink:        e.Alternate(),
		AuthorLink:   e.Author.URI,
		AuthorName:   e.Author.Name,
		AuthorAvatar: e.Author.Avatar(),
		OwnerLink:    e.Author.URI,
		OwnerName:    e.Author.Name,
		OwnerAvatar:  e.Author.Avatar(),
		Title:        e.Title,
		Body:         e.Content.Value,
		Verb:         e.Verb,
		ObjectType:   e.ObjectType,
		Mentions:     e.Mentions(),
		Private:      e.Private != 0,
		ForumMode:    models.ForumMode(e.Forum),
		Network:      models.DFRN,
		Signature:    e.Signature,
		App:          e.App,
	}
	if e.Owner != nil {
		item.OwnerLink = e.Owner.URI
		item.OwnerName = e.Owner.Name
		item.OwnerAvatar = e.Owner.Avatar()
	}
	if e.InReplyTo != nil {
		item.ParentURI = e.InReplyTo.Ref
		item.ThrParent = e.InReplyTo.Ref
	}
	if t := parseTime(e.Published); !t.IsZero() {
		item.CreatedAt = t
	}
	if item.Verb == "" {
		item.Verb = models.VerbPost
	}
	return item
}

func (im *Importer) importMail(db *gorm.DB, owner *models.Owner, sender *models.Contact, m *Mail) error {
	var n int64
	if err := db.Model(&models.PrivateMail{}).Where("uid = ? AND uri = ?", owner.ID, m.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	mail := &models.PrivateMail{
		UID:       owner.ID,
		ContactID: sender.ID,
		URI:       m.ID,
		ParentURI: m.InReplyTo,
		Title:     m.Subject,
		Body:      m.Content,
		FromName:  m.Sender.Name,
		FromURL:   m.Sender.URI,
		FromPhoto: m.Sender.Avatar(),
	}
	if t := parseTime(m.SentDate); !t.IsZero() {
		mail.CreatedAt = t
	}
	return db.Create(mail).Error
}

func (im *Importer) importSuggest(db *gorm.DB, owner *models.Owner, sender *models.Contact, s *Suggest) error {
	if _, err := models.NewContacts(db).FindByURL(owner.ID, s.URL); err == nil {
		// already a contact
		return nil
	}
	return db.Create(&models.Suggestion{
		UID:       owner.ID,
		ContactID: sender.ID,
		URL:       s.URL,
		Name:      s.Name,
		Photo:     s.Photo,
		Request:   s.Request,
		Note:      s.Note,
	}).Error
}

func (im *Importer) importRelocate(db *gorm.DB, sender *models.Contact, r *Relocate) error {
	return db.Model(sender).Updates(map[string]interface{}{
		"url":          r.URL,
		"nurl":         models.NormaliseLink(r.URL),
		"name":         r.Name,
		"addr":         r.Addr,
		"photo":        r.Avatar,
		"request":      r.Request,
		"confirm":      r.Confirm,
		"notify":       r.Notify,
		"poll":         r.Poll,
		"last_refresh": time.Now(),
	}).Error
}
