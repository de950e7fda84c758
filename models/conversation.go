package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A ConversationLink associates a remote conversation with the root of the
// local thread holding its items.
type ConversationLink struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;uniqueIndex:idx_conversation_uid_uri"`
	URI       string       `gorm:"column:uri;size:255;not null;uniqueIndex:idx_conversation_uid_uri"`
	ItemID    snowflake.ID `gorm:"not null;index"`
}

func (c *ConversationLink) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = snowflake.Now()
	}
	return nil
}

type Conversations struct {
	db *gorm.DB
}

func NewConversations(db *gorm.DB) *Conversations {
	return &Conversations{
		db: db,
	}
}

// Find returns uid's link for the conversation.
func (c *Conversations) Find(uid snowflake.ID, uri string) (*ConversationLink, error) {
	var link ConversationLink
	if err := c.db.Where("uid = ? AND uri = ?", uid, uri).Take(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// Link records that itemID roots uid's copy of the conversation. An
// existing link is kept.
func (c *Conversations) Link(uid snowflake.ID, uri string, itemID snowflake.ID) error {
	return c.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ConversationLink{
		UID:    uid,
		URI:    uri,
		ItemID: itemID,
	}).Error
}

// Set points uid's link for the conversation at itemID, creating the link
// if there is none. A link already pointing at itemID is not written.
func (c *Conversations) Set(uid snowflake.ID, uri string, itemID snowflake.ID) error {
	link, err := c.Find(uid, uri)
	switch {
	case IsNotFound(err):
		return c.Link(uid, uri, itemID)
	case err != nil:
		return err
	case link.ItemID == itemID:
		return nil
	}
	return c.db.Model(link).Update("item_id", itemID).Error
}

// Unlink removes every link pointing at the thread root itemID.
func (c *Conversations) Unlink(itemID snowflake.ID) error {
	return c.db.Where("item_id = ?", itemID).Delete(&ConversationLink{}).Error
}
