package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/fedinode/fedinode/internal/config"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Activity verbs and object types.
const (
	VerbPost        = "http://activitystrea.ms/schema/1.0/post"
	VerbShare       = "http://activitystrea.ms/schema/1.0/share"
	VerbLike        = "http://activitystrea.ms/schema/1.0/like"
	VerbFavorite    = "http://activitystrea.ms/schema/1.0/favorite"
	VerbDislike     = "http://purl.org/macgirvin/dfrn/1.0/dislike"
	VerbAttend      = "http://purl.org/zot/activity/attendyes"
	VerbAttendNo    = "http://purl.org/zot/activity/attendno"
	VerbAttendMaybe = "http://purl.org/zot/activity/attendmaybe"
	VerbTag         = "http://activitystrea.ms/schema/1.0/tag"

	ObjectNote    = "http://activitystrea.ms/schema/1.0/note"
	ObjectComment = "http://activitystrea.ms/schema/1.0/comment"
)

// An Item is a post, comment or reaction stored on behalf of a local user.
// Items of one thread share ParentID, the id of the thread's root item.
type Item struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UID       snowflake.ID `gorm:"column:uid;not null;uniqueIndex:idx_item_uid_uri"`
	// ContactID is the contact the item was received from, or the owner's
	// Self contact for local items.
	ContactID snowflake.ID `gorm:"not null;index"`
	GUID      string       `gorm:"column:guid;size:64;not null;index"`
	URI       string       `gorm:"column:uri;size:255;not null;uniqueIndex:idx_item_uid_uri"`
	Plink     string       `gorm:"size:255;not null;default:''"`
	ParentID  snowflake.ID `gorm:"not null;index"`
	// ParentURI is the URI of the thread root.
	ParentURI string `gorm:"column:parent_uri;size:255;not null"`
	// ThrParent is the URI of the item this one replies to.
	ThrParent    string `gorm:"size:255;not null"`
	AuthorLink   string `gorm:"size:255;not null;default:''"`
	AuthorName   string `gorm:"size:255;not null;default:''"`
	AuthorAvatar string `gorm:"size:255;not null;default:''"`
	OwnerLink    string `gorm:"size:255;not null;default:''"`
	OwnerName    string `gorm:"size:255;not null;default:''"`
	OwnerAvatar  string `gorm:"size:255;not null;default:''"`
	Title        string `gorm:"size:255;not null;default:''"`
	Body         string `gorm:"type:text"`
	Verb         string `gorm:"size:100;not null;default:''"`
	ObjectType   string `gorm:"size:100;not null;default:''"`
	// Mentions are the profile URLs of actors mentioned in the body.
	Mentions []string `gorm:"type:text;serializer:json"`
	AllowCID string   `gorm:"column:allow_cid;type:text"`
	AllowGID string   `gorm:"column:allow_gid;type:text"`
	DenyCID  string   `gorm:"column:deny_cid;type:text"`
	DenyGID  string   `gorm:"column:deny_gid;type:text"`
	Private  bool     `gorm:"not null;default:false"`
	// Wall items were posted to the owner's own wall.
	Wall bool `gorm:"not null;default:false"`
	// Origin items were authored on this node.
	Origin    bool      `gorm:"not null;default:false"`
	ForumMode ForumMode `gorm:"not null;default:0"`
	Deleted   bool      `gorm:"not null;default:false"`
	Network   Protocol  `gorm:"not null"`
	// PubMail asks for public items to be mailed to the owner's mail contacts.
	PubMail bool `gorm:"not null;default:false"`
	// Signature is the author signature carried by relayable Diaspora items.
	Signature string `gorm:"type:text"`
	App       string `gorm:"size:255;not null;default:''"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == 0 {
		i.ID = snowflake.Now()
	}
	if i.GUID == "" {
		i.GUID = uuid.NewString()
	}
	if i.ParentURI == "" {
		i.ParentURI = i.URI
	}
	if i.ThrParent == "" {
		i.ThrParent = i.ParentURI
	}
	if i.ParentID == 0 && i.ParentURI == i.URI {
		i.ParentID = i.ID
	}
	if i.Network == "" {
		i.Network = DFRN
	}
	return nil
}

// NewURI returns the URI of an item created on this node by the local user uid.
func NewURI(cfg *config.Config, uid snowflake.ID, guid string) string {
	return fmt.Sprintf("urn:X-dfrn:%s:%d:%s", cfg.Hostname, uid, guid)
}

// IsTopLevel reports whether the item starts its thread.
func (i *Item) IsTopLevel() bool {
	return i.ParentID == i.ID
}

// ACL returns the item's access control list. A malformed ACL reports
// false and is treated by callers as public.
func (i *Item) ACL() (ACL, bool) {
	return parseACL(i.AllowCID, i.AllowGID, i.DenyCID, i.DenyGID)
}

// IsPublic reports whether the item is visible to everybody.
func (i *Item) IsPublic() bool {
	acl, ok := i.ACL()
	if !ok {
		return true
	}
	return acl.IsEmpty() && !i.Private
}

// HasVerb reports whether the item's verb is one of verbs.
func (i *Item) HasVerb(verbs ...string) bool {
	for _, v := range verbs {
		if i.Verb == v {
			return true
		}
	}
	return false
}

type Items struct {
	db *gorm.DB
}

func NewItems(db *gorm.DB) *Items {
	return &Items{
		db: db,
	}
}

func (i *Items) FindByID(id snowflake.ID) (*Item, error) {
	var item Item
	if err := i.db.Take(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByURI returns uid's copy of the item with the given URI.
func (i *Items) FindByURI(uid snowflake.ID, uri string) (*Item, error) {
	var item Item
	if err := i.db.Where("uid = ? AND uri = ?", uid, uri).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Thread returns every item of the thread rooted at parentID, root first.
func (i *Items) Thread(parentID snowflake.ID) ([]*Item, error) {
	var items []*Item
	err := i.db.Where("parent_id = ?", parentID).Order("id").Find(&items).Error
	return items, err
}

// ExpiredWallItems returns uid's wall items deleted since the given time.
func (i *Items) ExpiredWallItems(uid snowflake.ID, since time.Time) ([]*Item, error) {
	var items []*Item
	err := i.db.Where("uid = ? AND wall = ? AND deleted = ? AND updated_at > ?", uid, true, true, since).
		Order("id").Find(&items).Error
	return items, err
}

// Store saves item unless uid already holds an item with the same URI, in
// which case the existing item is returned and created is false.
//
// The item is attached to the thread containing ParentURI. When the parent
// is not itself a thread root the item is attached to the parent's root and
// the parent is kept in ThrParent. Items whose parent is unknown start a new
// thread.
func (i *Items) Store(item *Item) (stored *Item, created bool, err error) {
	err = i.db.Transaction(func(tx *gorm.DB) error {
		existing, err := NewItems(tx).FindByURI(item.UID, item.URI)
		switch {
		case err == nil:
			stored = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if item.ThrParent == "" {
			item.ThrParent = item.ParentURI
		}
		if item.ParentURI != "" && item.ParentURI != item.URI {
			parent, err := NewItems(tx).FindByURI(item.UID, item.ParentURI)
			switch {
			case err == nil:
				item.ParentID = parent.ParentID
				item.ParentURI = parent.ParentURI
				item.AllowCID, item.AllowGID = parent.AllowCID, parent.AllowGID
				item.DenyCID, item.DenyGID = parent.DenyCID, parent.DenyGID
				item.Private = parent.Private
				item.ForumMode = parent.ForumMode
			case errors.Is(err, gorm.ErrRecordNotFound):
				item.ParentID = 0
				item.ParentURI = item.URI
			default:
				return err
			}
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(item)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a race with a concurrent store of the same URI
			stored, err = NewItems(tx).FindByURI(item.UID, item.URI)
			return err
		}
		stored, created = item, true
		return nil
	})
	return stored, created, err
}

// Reparent moves every item of the thread rooted at oldRootID into the
// thread of newRoot. It returns the number of items moved.
func (i *Items) Reparent(oldRootID snowflake.ID, newRoot *Item) (int64, error) {
	if oldRootID == newRoot.ParentID {
		return 0, nil
	}
	var moved int64
	err := i.db.Transaction(func(tx *gorm.DB) error {
		// the old root now replies to the new one
		err := tx.Model(&Item{}).Where("parent_id = ? AND uri = thr_parent", oldRootID).
			Update("thr_parent", newRoot.ParentURI).Error
		if err != nil {
			return err
		}
		res := tx.Model(&Item{}).Where("parent_id = ?", oldRootID).Updates(map[string]interface{}{
			"parent_id":  newRoot.ParentID,
			"parent_uri": newRoot.ParentURI,
		})
		moved = res.RowsAffected
		return res.Error
	})
	return moved, err
}

// PublicWall returns the newest public, top-level posts on uid's wall.
func (i *Items) PublicWall(uid snowflake.ID, limit int) ([]*Item, error) {
	var items []*Item
	err := i.db.Where("uid = ? AND wall = ? AND deleted = ? AND private = ? AND parent_id = id", uid, true, false, false).
		Where("COALESCE(allow_cid, '') = '' AND COALESCE(allow_gid, '') = '' AND COALESCE(deny_cid, '') = '' AND COALESCE(deny_gid, '') = ''").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// SetThrParent records the item which id replies to.
func (i *Items) SetThrParent(id snowflake.ID, thrParent string) error {
	return i.db.Model(&Item{}).Where("id = ? AND thr_parent <> ?", id, thrParent).
		Update("thr_parent", thrParent).Error
}

// Conversants returns the distinct contacts which authored items in the
// thread rooted at parentID.
func (i *Items) Conversants(parentID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := i.db.Model(&Item{}).
		Distinct("contact_id").
		Where("parent_id = ? AND contact_id <> 0", parentID).
		Order("contact_id").
		Pluck("contact_id", &ids).Error
	return ids, err
}
