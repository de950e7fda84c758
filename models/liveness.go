package models

import (
	"time"
)

// Liveness is the delivery health of a contact.
type Liveness int

const (
	Alive Liveness = iota
	// Suspect contacts have failed at least once since their last success.
	Suspect
	// Archived contacts stayed Suspect for longer than the archive window
	// and are no longer offered as recipients.
	Archived
)

// DefaultArchiveAfter is how long a contact may stay Suspect.
const DefaultArchiveAfter = 32 * 24 * time.Hour

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Suspect:
		return "suspect"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// Liveness returns the contact's current state.
func (c *Contact) Liveness() Liveness {
	switch {
	case c.Archived:
		return Archived
	case c.TermDate != nil && !c.TermDate.IsZero():
		return Suspect
	default:
		return Alive
	}
}

// MarkFailure records a failed delivery at now. It reports whether the
// contact changed.
func (c *Contact) MarkFailure(now time.Time, archiveAfter time.Duration) bool {
	switch c.Liveness() {
	case Archived:
		return false
	case Alive:
		ts := now.UTC()
		c.TermDate = &ts
		return true
	default:
		if now.Sub(*c.TermDate) < archiveAfter {
			return false
		}
		c.Archived = true
		return true
	}
}

// MarkSuccess records a successful delivery or inbound message. It reports
// whether the contact changed.
func (c *Contact) MarkSuccess() bool {
	if c.Liveness() == Alive {
		return false
	}
	c.TermDate = nil
	c.Archived = false
	return true
}

// MarkForDeath applies a delivery failure to contact and persists the
// transition, if any.
func (c *Contacts) MarkForDeath(contact *Contact, now time.Time, archiveAfter time.Duration) error {
	if archiveAfter <= 0 {
		archiveAfter = DefaultArchiveAfter
	}
	if !contact.MarkFailure(now, archiveAfter) {
		return nil
	}
	return c.db.Model(contact).Select("term_date", "archived").Updates(contact).Error
}

// Unmark revives contact after a successful exchange.
func (c *Contacts) Unmark(contact *Contact) error {
	if !contact.MarkSuccess() {
		return nil
	}
	return c.db.Model(contact).Select("term_date", "archived").Updates(contact).Error
}
