package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"gorm.io/gorm"
)

// A Group is a named set of a user's contacts used in ACLs.
type Group struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UID       snowflake.ID   `gorm:"column:uid;not null;index"`
	Name      string         `gorm:"size:255;not null"`
	Deleted   bool           `gorm:"not null;default:false"`
	Members   []*GroupMember `gorm:"constraint:OnDelete:CASCADE;"`
}

func (Group) TableName() string {
	return "contact_groups"
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == 0 {
		g.ID = snowflake.Now()
	}
	return nil
}

type GroupMember struct {
	GroupID   snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	ContactID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
}

func (GroupMember) TableName() string {
	return "contact_group_members"
}

type Groups struct {
	db *gorm.DB
}

func NewGroups(db *gorm.DB) *Groups {
	return &Groups{
		db: db,
	}
}

// Expand returns the ids of the contacts in uid's groups gids. If
// skipArchived is set archived contacts are left out.
func (g *Groups) Expand(uid snowflake.ID, gids []snowflake.ID, skipArchived bool) ([]snowflake.ID, error) {
	if len(gids) == 0 {
		return nil, nil
	}
	q := g.db.Model(&GroupMember{}).
		Distinct("contact_group_members.contact_id").
		Joins("JOIN contact_groups ON contact_groups.id = contact_group_members.group_id").
		Where("contact_groups.uid = ? AND contact_groups.id IN ? AND contact_groups.deleted = ?", uid, gids, false)
	if skipArchived {
		q = q.Joins("JOIN contacts ON contacts.id = contact_group_members.contact_id").
			Where("contacts.archived = ?", false)
	}
	var ids []snowflake.ID
	err := q.Order("contact_group_members.contact_id").Pluck("contact_group_members.contact_id", &ids).Error
	return ids, err
}
