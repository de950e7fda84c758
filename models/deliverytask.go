package models

import (
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Command names the kind of event being federated.
type Command string

const (
	WallNew       Command = "wall-new"
	CommentNew    Command = "comment-new"
	CommentImport Command = "comment-import"
	EditPost      Command = "edit_post"
	Drop          Command = "drop"
	Like          Command = "like"
	Tag           Command = "tag"
	// Uplink is the secondary pass which forwards a forum comment to the
	// forum's owner.
	Uplink Command = "uplink"

	// The following commands deliver to a fixed recipient set.
	SendMail Command = "mail"
	Expire   Command = "expire"
	Suggest  Command = "suggest"
	Relocate Command = "relocate"
	RemoveMe Command = "removeme"
)

// Commands lists every known command.
var Commands = []Command{WallNew, CommentNew, CommentImport, EditPost, Drop, Like, Tag, Uplink, SendMail, Expire, Suggest, Relocate, RemoveMe}

// A DeliveryTask records that the item must be delivered to the contact for
// the command. Tasks are created by the orchestrator and deleted by the
// executor which claims them.
type DeliveryTask struct {
	Command   Command      `gorm:"primarykey;size:32"`
	ItemID    snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	ContactID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time    `gorm:"index"`
}

type Tasks struct {
	db *gorm.DB
}

func NewTasks(db *gorm.DB) *Tasks {
	return &Tasks{
		db: db,
	}
}

// Enqueue records a task for each contact. Existing tasks are left alone.
func (t *Tasks) Enqueue(cmd Command, itemID snowflake.ID, contactIDs ...snowflake.ID) error {
	if len(contactIDs) == 0 {
		return nil
	}
	tasks := make([]*DeliveryTask, 0, len(contactIDs))
	for _, id := range contactIDs {
		tasks = append(tasks, &DeliveryTask{Command: cmd, ItemID: itemID, ContactID: id})
	}
	return t.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(tasks, 100).Error
}

// Claim removes the task and reports whether this caller removed it. Only
// the caller which receives true may deliver.
func (t *Tasks) Claim(cmd Command, itemID, contactID snowflake.ID) (bool, error) {
	var task DeliveryTask
	err := t.db.Where("command = ? AND item_id = ? AND contact_id = ?", cmd, itemID, contactID).Take(&task).Error
	switch {
	case IsNotFound(err):
		return false, nil
	case err != nil:
		return false, err
	}
	res := t.db.Where("command = ? AND item_id = ? AND contact_id = ?", cmd, itemID, contactID).Delete(&DeliveryTask{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Abandoned returns tasks created before the cutoff, grouped by command and item.
func (t *Tasks) Abandoned(before time.Time, limit int) ([]*DeliveryTask, error) {
	var tasks []*DeliveryTask
	err := t.db.Where("created_at < ?", before).
		Order("command, item_id, contact_id").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// Pending returns the contact ids still awaiting delivery of the item.
func (t *Tasks) Pending(cmd Command, itemID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := t.db.Model(&DeliveryTask{}).
		Where("command = ? AND item_id = ?", cmd, itemID).
		Order("contact_id").
		Pluck("contact_id", &ids).Error
	return ids, err
}
