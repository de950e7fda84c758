package models

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/fedinode/fedinode/internal/config"
	"github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A User is a local account. Each user owns exactly one Self contact which
// represents them in their own contact list.
type User struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Nickname  string `gorm:"size:64;uniqueIndex;not null"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;not null;default:''"`
	GUID      string `gorm:"column:guid;size:64;not null"`
	// ForumMode marks community accounts whose posts are relayed to members.
	ForumMode  ForumMode `gorm:"not null;default:0"`
	PublicKey  []byte    `gorm:"not null"`
	PrivateKey []byte    `gorm:"not null"`
}

// PrivKey returns the user's private key.
func (u *User) PrivKey() (*rsa.PrivateKey, error) {
	_, priv, err := crypto.ParseRSAPrivateKey(u.PrivateKey)
	return priv, err
}

// An Owner is a local user together with their Self contact.
type Owner struct {
	*User
	Self *Contact
}

// KeyID returns the key identifier used to sign requests on behalf of the owner.
func (o *Owner) KeyID() string {
	return o.Self.URL + "#main-key"
}

// Addr returns the owner's user@host address.
func (o *Owner) Addr() string {
	return o.Self.Addr
}

type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{
		db: db,
	}
}

// Create creates a local user and their Self contact.
func (u *Users) Create(cfg *config.Config, nick, name, email string) (*Owner, error) {
	kp, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:         snowflake.Now(),
		Nickname:   nick,
		Name:       name,
		Email:      email,
		GUID:       uuid.NewString(),
		PublicKey:  kp.PublicKey,
		PrivateKey: kp.PrivateKey,
	}
	profile := cfg.ProfileURL(nick)
	self := &Contact{
		UID:      user.ID,
		Self:     true,
		URL:      profile,
		Addr:     nick + "@" + cfg.Hostname,
		Protocol: DFRN,
		Name:     name,
		Nick:     nick,
		Photo:    cfg.BaseURL + "/photo/profile/" + nick + ".jpg",
		Notify:   cfg.NotifyURL(nick),
		Poll:     cfg.FeedURL(nick),
		GUID:     user.GUID,
		BaseURL:  cfg.BaseURL,
		PubKey:   string(kp.PublicKey),
		Rel:      Friend,
		Writable: true,
	}
	err = u.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(self).Error
	})
	if err != nil {
		return nil, err
	}
	return &Owner{User: user, Self: self}, nil
}

// FindByNickname returns the local user with the given nickname.
func (u *Users) FindByNickname(nick string) (*User, error) {
	var user User
	if err := u.db.Where("nickname = ?", nick).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOwner returns the user with the given id together with their Self
// contact. A user without a Self contact is reported as not found.
func (u *Users) FindOwner(uid snowflake.ID) (*Owner, error) {
	var user User
	if err := u.db.Take(&user, uid).Error; err != nil {
		return nil, err
	}
	self, err := NewContacts(u.db).FindSelf(uid)
	if err != nil {
		return nil, fmt.Errorf("user %d: self contact: %w", uid, err)
	}
	return &Owner{User: &user, Self: self}, nil
}

// ErrNotFound is returned by finders when no row matches.
var ErrNotFound = gorm.ErrRecordNotFound

// IsNotFound reports whether err is a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
