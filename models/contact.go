package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Contact is a remote identity as seen by one local user. Contacts with a
// UID of zero are shared cache entries, not owned by any user.
type Contact struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;uniqueIndex:idx_contact_uid_nurl"`
	Self      bool         `gorm:"not null;default:false"`
	URL       string       `gorm:"column:url;size:255;not null"`
	NURL      string       `gorm:"column:nurl;size:255;not null;uniqueIndex:idx_contact_uid_nurl"`
	Addr      string       `gorm:"size:255;not null;default:''"`
	Alias     string       `gorm:"size:255;not null;default:''"`
	Protocol  Protocol     `gorm:"not null;index"`
	Name      string       `gorm:"size:255;not null;default:''"`
	Nick      string       `gorm:"size:255;not null;default:''"`
	Photo     string       `gorm:"size:255;not null;default:''"`
	Notify    string       `gorm:"size:255;not null;default:''"`
	Poll      string       `gorm:"size:255;not null;default:''"`
	Request   string       `gorm:"size:255;not null;default:''"`
	Confirm   string       `gorm:"size:255;not null;default:''"`
	// Batch is the shared public inbox of the contact's server.
	Batch   string       `gorm:"size:255;not null;default:''"`
	Poco    string       `gorm:"size:255;not null;default:''"`
	GUID    string       `gorm:"column:guid;size:64;not null;default:''"`
	BaseURL string       `gorm:"column:base_url;size:255;not null;default:''"`
	PubKey  string       `gorm:"type:text"`
	Rel     Relationship `gorm:"not null;default:0"`
	// TermDate is the time of the first undelivered message since the
	// last success. Nil while the contact is alive.
	TermDate    *time.Time `gorm:"column:term_date"`
	Archived    bool       `gorm:"not null;default:false"`
	Blocked     bool       `gorm:"not null;default:false"`
	Pending     bool       `gorm:"not null;default:false"`
	Writable    bool       `gorm:"not null;default:false"`
	ForumMode   ForumMode  `gorm:"not null;default:0"`
	LastRefresh time.Time
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = snowflake.Now()
	}
	return nil
}

func (c *Contact) BeforeSave(tx *gorm.DB) error {
	c.NURL = NormaliseLink(c.URL)
	return nil
}

// Deliverable restricts a contact query to contacts which may receive
// messages: not blocked, not pending and not archived.
func Deliverable(db *gorm.DB) *gorm.DB {
	return db.Where("blocked = ? AND pending = ? AND archived = ?", false, false, false)
}

type Contacts struct {
	db *gorm.DB
}

func NewContacts(db *gorm.DB) *Contacts {
	return &Contacts{
		db: db,
	}
}

// FindByID returns the contact with the given id.
func (c *Contacts) FindByID(id snowflake.ID) (*Contact, error) {
	var contact Contact
	if err := c.db.Take(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByIDs returns the contacts with the given ids, in id order.
func (c *Contacts) FindByIDs(ids []snowflake.ID) ([]*Contact, error) {
	var contacts []*Contact
	if len(ids) == 0 {
		return contacts, nil
	}
	err := c.db.Where("id IN ?", ids).Order("id").Find(&contacts).Error
	return contacts, err
}

// FindSelf returns the Self contact of the local user uid.
func (c *Contacts) FindSelf(uid snowflake.ID) (*Contact, error) {
	var contact Contact
	if err := c.db.Where("uid = ? AND self = ?", uid, true).Take(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByURL returns the contact of uid whose normalised URL matches url.
func (c *Contacts) FindByURL(uid snowflake.ID, url string) (*Contact, error) {
	var contact Contact
	if err := c.db.Where("uid = ? AND nurl = ?", uid, NormaliseLink(url)).Take(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindNotify returns the notification endpoint recorded for url, looking at
// uid's own contacts and the shared cache.
func (c *Contacts) FindNotify(uid snowflake.ID, url string) (string, bool) {
	var contact Contact
	err := c.db.Where("nurl = ? AND uid IN ? AND notify <> ''", NormaliseLink(url), []snowflake.ID{0, uid}).
		Order("uid DESC").Take(&contact).Error
	if err != nil {
		return "", false
	}
	return contact.Notify, true
}

// FindOrCreateShared returns the shared (uid 0) contact for rec's URL,
// creating it from rec if none exists.
func (c *Contacts) FindOrCreateShared(rec *Contact) (*Contact, error) {
	rec.UID = 0
	rec.Self = false
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}, {Name: "nurl"}},
		DoNothing: true,
	}).Create(rec).Error
	if err != nil {
		return nil, err
	}
	return c.FindByURL(0, rec.URL)
}

// UpdateShared copies the identity fields of rec which are set onto the
// shared contact with the same normalised URL. Fields a partial probe left
// empty keep their cached value. It is a no-op if there is no such contact.
func (c *Contacts) UpdateShared(rec *Contact) error {
	updates := identity(rec)
	if rec.URL != "" {
		updates["url"] = rec.URL
	}
	return c.db.Model(&Contact{}).
		Where("nurl = ? AND uid = ? AND self = ?", NormaliseLink(rec.URL), 0, false).
		Updates(updates).Error
}

// UpdateIdentity copies the discovered identity fields of rec which are set
// onto contact, and records the refresh.
func (c *Contacts) UpdateIdentity(contact *Contact, rec *Contact) error {
	return c.db.Model(contact).UpdateColumns(identity(rec)).Error
}

// identity returns the column updates for the non-empty identity fields of
// rec, stamped with the refresh time.
func identity(rec *Contact) map[string]interface{} {
	updates := map[string]interface{}{
		"last_refresh": time.Now(),
	}
	for col, v := range map[string]string{
		"name":     rec.Name,
		"nick":     rec.Nick,
		"addr":     rec.Addr,
		"alias":    rec.Alias,
		"photo":    rec.Photo,
		"notify":   rec.Notify,
		"poll":     rec.Poll,
		"batch":    rec.Batch,
		"poco":     rec.Poco,
		"base_url": rec.BaseURL,
		"pub_key":  rec.PubKey,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	return updates
}

// Refresh schedules the contact to be re-resolved.
func (c *Contacts) Refresh(contact *Contact) error {
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_id"}},
		DoNothing: true,
	}).Create(&ContactRefreshRequest{ContactID: contact.ID}).Error
}

// ContactRefreshRequest is a request to re-resolve a contact's identity.
type ContactRefreshRequest struct {
	Request
	// ContactID is the ID of the contact to refresh.
	ContactID snowflake.ID `gorm:"uniqueIndex;not null;"`
	// Contact is the contact to refresh.
	Contact *Contact `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
}

// Request is the common bookkeeping of a background work item.
type Request struct {
	ID uint32 `gorm:"primarykey;"`
	// CreatedAt is the time the request was created.
	CreatedAt time.Time
	// UpdatedAt is the time the request was last updated.
	UpdatedAt time.Time
	// Attempts is the number of times the request has been attempted.
	Attempts uint32 `gorm:"not null;default:0"`
	// LastAttempt is the time the request was last attempted.
	LastAttempt time.Time
	// LastResult is the result of the last attempt if it failed.
	LastResult string `gorm:"type:text;"`
}

// Recipients returns uid's deliverable, non-self contacts among ids which
// speak one of the protocols.
func (c *Contacts) Recipients(uid snowflake.ID, ids []snowflake.ID, protocols []Protocol) ([]*Contact, error) {
	var contacts []*Contact
	if len(ids) == 0 || len(protocols) == 0 {
		return contacts, nil
	}
	err := c.db.Scopes(Deliverable).
		Where("uid = ? AND self = ? AND id IN ? AND protocol IN ?", uid, false, ids, protocols).
		Order("id").Find(&contacts).Error
	return contacts, err
}

// FindByProtocol returns uid's deliverable, non-self contacts speaking one
// of the protocols, excluding those whose relationship is exclude. An
// exclude of zero excludes nothing.
func (c *Contacts) FindByProtocol(uid snowflake.ID, protocols []Protocol, exclude Relationship) ([]*Contact, error) {
	var contacts []*Contact
	if len(protocols) == 0 {
		return contacts, nil
	}
	q := c.db.Scopes(Deliverable).Where("uid = ? AND self = ? AND protocol IN ?", uid, false, protocols)
	if exclude != 0 {
		q = q.Where("rel <> ?", exclude)
	}
	err := q.Order("id").Find(&contacts).Error
	return contacts, err
}

// BatchRecipients returns one deliverable Diaspora contact of uid for each
// distinct public batch endpoint. Contacts uid only shares with are skipped.
func (c *Contacts) BatchRecipients(uid snowflake.ID) ([]*Contact, error) {
	var contacts []*Contact
	ids := c.db.Model(&Contact{}).Scopes(Deliverable).
		Select("MIN(id)").
		Where("uid = ? AND self = ? AND protocol = ? AND batch <> '' AND rel <> ?", uid, false, Diaspora, Sharing).
		Group("batch")
	err := c.db.Where("id IN (?)", ids).Order("id").Find(&contacts).Error
	return contacts, err
}

// FindAll returns every non-self contact of uid.
func (c *Contacts) FindAll(uid snowflake.ID) ([]*Contact, error) {
	var contacts []*Contact
	err := c.db.Where("uid = ? AND self = ?", uid, false).Order("id").Find(&contacts).Error
	return contacts, err
}

// FindStale returns up to limit deliverable contacts last refreshed before
// the cutoff.
func (c *Contacts) FindStale(before time.Time, limit int) ([]*Contact, error) {
	var contacts []*Contact
	err := c.db.Scopes(Deliverable).
		Where("self = ? AND protocol NOT IN ? AND last_refresh < ?", false, []Protocol{Mail, Phantom}, before).
		Order("last_refresh").Limit(limit).Find(&contacts).Error
	return contacts, err
}
