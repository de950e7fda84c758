package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A CacheEntry is a value stored with an expiry time.
type CacheEntry struct {
	Key     string    `gorm:"column:cache_key;primarykey;size:255"`
	Value   []byte    `gorm:"not null"`
	Expires time.Time `gorm:"not null;index"`
}

type Cache struct {
	db *gorm.DB
}

func NewCache(db *gorm.DB) *Cache {
	return &Cache{
		db: db,
	}
}

// Get returns the unexpired value stored under key.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var e CacheEntry
	err := c.db.Where("cache_key = ? AND expires > ?", key, time.Now()).Take(&e).Error
	switch {
	case IsNotFound(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return e.Value, true, nil
}

// Set stores value under key for ttl, replacing any previous value.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires"}),
	}).Create(&CacheEntry{Key: key, Value: value, Expires: time.Now().Add(ttl)}).Error
}

// Purge removes expired entries.
func (c *Cache) Purge() (int64, error) {
	res := c.db.Where("expires <= ?", time.Now()).Delete(&CacheEntry{})
	return res.RowsAffected, res.Error
}
