package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"gorm.io/gorm"
)

// A RetryEntry holds an envelope which could not be delivered.
type RetryEntry struct {
	Request
	ContactID snowflake.ID `gorm:"not null;index"`
	Contact   *Contact     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	// UID is the local user whose key signs the envelope.
	UID         snowflake.ID `gorm:"column:uid;not null"`
	Protocol    Protocol     `gorm:"not null"`
	Endpoint    string       `gorm:"size:255;not null"`
	ContentType string       `gorm:"size:100;not null"`
	Body        []byte       `gorm:"not null"`
}

func (RetryEntry) TableName() string {
	return "retry_queue"
}

type RetryQueue struct {
	db *gorm.DB
}

func NewRetryQueue(db *gorm.DB) *RetryQueue {
	return &RetryQueue{
		db: db,
	}
}

// Add queues an envelope for later delivery.
func (q *RetryQueue) Add(e *RetryEntry) error {
	return q.db.Create(e).Error
}

// RecentlyDelayed reports whether an envelope for the contact was queued or
// retried since the given time.
func (q *RetryQueue) RecentlyDelayed(contactID snowflake.ID, since time.Time) (bool, error) {
	var n int64
	err := q.db.Model(&RetryEntry{}).Where("contact_id = ? AND updated_at > ?", contactID, since).Count(&n).Error
	return n > 0, err
}

// PurgeArchived removes queued envelopes for archived contacts.
func (q *RetryQueue) PurgeArchived() (int64, error) {
	res := q.db.Where("contact_id IN (?)", q.db.Model(&Contact{}).Select("id").Where("archived = ?", true)).
		Delete(&RetryEntry{})
	return res.RowsAffected, res.Error
}

// PurgeExhausted removes envelopes which were attempted at least max times.
func (q *RetryQueue) PurgeExhausted(max int) (int64, error) {
	res := q.db.Where("attempts >= ?", max).Delete(&RetryEntry{})
	return res.RowsAffected, res.Error
}
