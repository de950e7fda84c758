package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PrivateMail is a private message between a local user and one contact.
type PrivateMail struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;index"`
	ContactID snowflake.ID `gorm:"not null"`
	Contact   *Contact     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	GUID      string       `gorm:"column:guid;size:64;not null"`
	URI       string       `gorm:"column:uri;size:255;not null"`
	ParentURI string       `gorm:"column:parent_uri;size:255;not null"`
	// ConvGUID identifies the conversation for protocols which group
	// messages by conversation rather than by parent.
	ConvGUID  string `gorm:"column:conv_guid;size:64;not null"`
	Title     string `gorm:"size:255;not null;default:''"`
	Body      string `gorm:"type:text"`
	FromName  string `gorm:"size:255;not null;default:''"`
	FromURL   string `gorm:"size:255;not null;default:''"`
	FromPhoto string `gorm:"size:255;not null;default:''"`
}

func (PrivateMail) TableName() string {
	return "mail"
}

func (m *PrivateMail) BeforeCreate(tx *gorm.DB) error {
	if m.ID == 0 {
		m.ID = snowflake.Now()
	}
	if m.GUID == "" {
		m.GUID = uuid.NewString()
	}
	if m.ConvGUID == "" {
		m.ConvGUID = uuid.NewString()
	}
	if m.ParentURI == "" {
		m.ParentURI = m.URI
	}
	return nil
}

// A Suggestion introduces a contact of the local user to another contact.
type Suggestion struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;index"`
	// ContactID is the contact receiving the suggestion.
	ContactID snowflake.ID `gorm:"not null"`
	URL       string       `gorm:"size:255;not null"`
	Name      string       `gorm:"size:255;not null;default:''"`
	Photo     string       `gorm:"size:255;not null;default:''"`
	Request   string       `gorm:"size:255;not null;default:''"`
	Note      string       `gorm:"type:text"`
}

func (s *Suggestion) BeforeCreate(tx *gorm.DB) error {
	if s.ID == 0 {
		s.ID = snowflake.Now()
	}
	return nil
}

// A MailAccount is a local user's mailbox, used to discover contacts which
// only speak e-mail.
type MailAccount struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;uniqueIndex"`
	Server    string       `gorm:"size:255;not null"`
	Port      int          `gorm:"not null;default:993"`
	SSL       bool         `gorm:"column:ssl;not null;default:true"`
	Username  string       `gorm:"size:255;not null"`
	Password  string       `gorm:"size:255;not null;default:''"`
	Mailbox   string       `gorm:"size:255;not null;default:'INBOX'"`
	// ReplyTo overrides the From address of outgoing mail.
	ReplyTo string `gorm:"size:255;not null;default:''"`
	// PubMail mails public posts to the user's mail contacts.
	PubMail   bool `gorm:"not null;default:false"`
	LastCheck time.Time
}

func (m *MailAccount) BeforeCreate(tx *gorm.DB) error {
	if m.ID == 0 {
		m.ID = snowflake.Now()
	}
	return nil
}

type Mailboxes struct {
	db *gorm.DB
}

func NewMailboxes(db *gorm.DB) *Mailboxes {
	return &Mailboxes{
		db: db,
	}
}

// FindAccount returns uid's mail account.
func (m *Mailboxes) FindAccount(uid snowflake.ID) (*MailAccount, error) {
	var acct MailAccount
	if err := m.db.Where("uid = ?", uid).Take(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// FindMail returns the private message with the given id.
func (m *Mailboxes) FindMail(id snowflake.ID) (*PrivateMail, error) {
	var mail PrivateMail
	if err := m.db.Take(&mail, id).Error; err != nil {
		return nil, err
	}
	return &mail, nil
}

// FindSuggestion returns the suggestion with the given id.
func (m *Mailboxes) FindSuggestion(id snowflake.ID) (*Suggestion, error) {
	var s Suggestion
	if err := m.db.Take(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindCorrespondent returns the newest private message uid received from
// the e-mail address addr.
func (m *Mailboxes) FindCorrespondent(uid snowflake.ID, addr string) (*PrivateMail, error) {
	var mail PrivateMail
	err := m.db.Where("uid = ? AND from_url = ?", uid, "mailto:"+addr).
		Order("created_at DESC").
		Take(&mail).Error
	if err != nil {
		return nil, err
	}
	return &mail, nil
}
