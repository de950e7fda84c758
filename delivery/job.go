package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
)

// errVanished is returned when the subject of a command, or the local user
// who owns it, no longer exists.
var errVanished = errors.New("delivery: subject vanished")

// expireWindow is how far back an expire pass looks for deleted wall items.
const expireWindow = 10 * time.Minute

// A job is a command together with everything needed to address and
// render it. The Notifier and the Executor load the same job independently.
type job struct {
	cmd   models.Command
	id    snowflake.ID
	owner *models.Owner

	// target is the item the command is about; nil for commands which are
	// not about an item.
	target *models.Item
	// parent is the root of target's thread.
	parent *models.Item
	thread []*models.Item
	// items are the entries carried by a DFRN envelope.
	items []*models.Item

	mail       *models.PrivateMail
	suggestion *models.Suggestion

	topLevel bool
	// followup is set when a locally written reply is relayed to the
	// remote owner of the thread, who forwards it to everybody else.
	followup bool
	public   bool
}

func loadJob(ctx context.Context, env *models.Env, cmd models.Command, id snowflake.ID) (*job, error) {
	db := env.DB.WithContext(ctx)
	j := &job{cmd: cmd, id: id}

	var uid snowflake.ID
	var err error
	switch cmd {
	case models.SendMail:
		if j.mail, err = models.NewMailboxes(db).FindMail(id); err != nil {
			return nil, vanished(err)
		}
		uid = j.mail.UID
	case models.Suggest:
		if j.suggestion, err = models.NewMailboxes(db).FindSuggestion(id); err != nil {
			return nil, vanished(err)
		}
		uid = j.suggestion.UID
	case models.Relocate, models.RemoveMe, models.Expire:
		uid = id
	default:
		items := models.NewItems(db)
		if j.target, err = items.FindByID(id); err != nil {
			return nil, vanished(err)
		}
		if j.thread, err = items.Thread(j.target.ParentID); err != nil {
			return nil, err
		}
		for _, item := range j.thread {
			if item.ID == j.target.ParentID {
				j.parent = item
			}
		}
		if j.parent == nil {
			// orphaned; treat the target as its own thread
			j.parent = j.target
			j.thread = append(j.thread, j.target)
		}
		uid = j.target.UID
	}

	if j.owner, err = models.NewUsers(db).FindOwner(uid); err != nil {
		return nil, vanished(err)
	}

	switch {
	case cmd == models.Expire:
		j.items, err = models.NewItems(db).ExpiredWallItems(uid, time.Now().Add(-expireWindow))
		if err != nil {
			return nil, err
		}
	case j.target != nil:
		j.classify(env.Config.LocalHost())
	}
	return j, nil
}

func vanished(err error) error {
	if models.IsNotFound(err) {
		return errVanished
	}
	return err
}

// classify decides whether the target is relayed to the thread's owner or
// distributed by this node, and whether the distribution is public.
func (j *job) classify(localHost string) {
	t, p := j.target, j.parent
	j.topLevel = t.IsTopLevel()

	relay := !j.topLevel && !p.Wall && strings.Contains(strings.ToLower(t.URI), localHost)
	if j.cmd == models.Uplink && p.ForumMode == models.PublicForum && !j.topLevel {
		relay = true
	}
	// only items written here are relayed, and never back to their origin
	if !t.Origin || p.Origin {
		relay = false
	}
	j.followup = relay
	j.public = !relay && p.IsPublic()

	switch {
	case j.followup || j.topLevel:
		j.items = []*models.Item{t}
	default:
		// the thread root travels with the reply so the recipient can
		// attach it
		j.items = []*models.Item{p, t}
	}
	if j.public {
		items := j.items[:0:0]
		for _, item := range j.items {
			if !item.Private {
				items = append(items, item)
			}
		}
		j.items = items
	}
}

// thrParent returns the item target directly replies to, if it is known.
func (j *job) thrParent() *models.Item {
	for _, item := range j.thread {
		if item.URI == j.target.ThrParent {
			return item
		}
	}
	return nil
}

// ostatusThread reports whether the thread, or the item replied to, came
// from an OStatus node.
func (j *job) ostatusThread() bool {
	if j.target == nil {
		return false
	}
	if thr := j.thrParent(); thr != nil && thr.Network == models.OStatus {
		return true
	}
	return j.parent.Network == models.OStatus
}

// uid returns the owning local user.
func (j *job) uid() snowflake.ID {
	return j.owner.ID
}
