package resolver

import (
	"context"
	"strings"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mailbox searches a user's mailbox for correspondence with an address.
type Mailbox interface {
	// Lookup reports whether addr appears in acct's mailbox and the display
	// name it was seen with, if any.
	Lookup(ctx context.Context, acct *models.MailAccount, addr string) (name string, found bool, err error)
}

// mail resolves addr as an email contact of the local user uid.
func (r *Resolver) mail(ctx context.Context, addr string, uid snowflake.ID) *Record {
	if uid == 0 || r.mailbox == nil {
		return nil
	}
	user, host, ok := cutLast(addr, "@")
	if !ok || user == "" || host == "" {
		return nil
	}
	acct, err := models.NewMailboxes(r.env.DB.WithContext(ctx)).FindAccount(uid)
	if err != nil || acct.Server == "" {
		return nil
	}
	name, found, err := r.mailbox.Lookup(ctx, acct, addr)
	if err != nil {
		r.env.Log().Debug("resolver: mailbox lookup", "addr", addr, "err", err)
		return nil
	}
	if !found {
		return nil
	}
	if name == "" {
		name = user
	}
	// smtp and email endpoints are opaque, they only need to be unique.
	return &Record{
		Protocol: models.Mail,
		Addr:     addr,
		Name:     name,
		Nick:     user,
		URL:      "mailto:" + addr,
		Notify:   "smtp " + uuid.NewString(),
		Poll:     "email " + uuid.NewString(),
		Photo:    r.env.Config.Resolver.DefaultAvatar,
	}
}

// MailArchive is a Mailbox backed by the private messages already imported
// from each user's mail account.
type MailArchive struct {
	db *gorm.DB
}

func NewMailArchive(db *gorm.DB) *MailArchive {
	return &MailArchive{
		db: db,
	}
}

func (m *MailArchive) Lookup(ctx context.Context, acct *models.MailAccount, addr string) (string, bool, error) {
	mail, err := models.NewMailboxes(m.db.WithContext(ctx)).FindCorrespondent(acct.UID, strings.ToLower(addr))
	switch {
	case models.IsNotFound(err):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return mail.FromName, true, nil
}
