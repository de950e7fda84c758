package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/resolver"
	"gorm.io/gorm"
)

// Resolver re-resolves contact identities, bypassing any cache.
type Resolver interface {
	Refresh(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *resolver.Record
}

// Refresher keeps contact identities current.
type Refresher struct {
	env      *models.Env
	resolver Resolver
	// batch bounds the stale contacts scheduled per pass.
	batch int
}

func NewRefresher(env *models.Env, res Resolver) *Refresher {
	return &Refresher{
		env:      env,
		resolver: res,
		batch:    100,
	}
}

// NewContactRefreshProcessor schedules stale contacts for refresh and
// processes the refresh requests every interval.
func NewContactRefreshProcessor(r *Refresher, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := r.env.Log().With("worker", "refresh")
		log.Info("started")
		defer log.Info("stopped")
		return every(ctx, interval, func(ctx context.Context) error {
			scheduled, err := r.Schedule(ctx)
			if err != nil {
				return err
			}
			done, failed, err := r.Run(ctx)
			if scheduled+done+failed > 0 {
				log.Info("refresh pass", "scheduled", scheduled, "refreshed", done, "failed", failed)
			}
			return err
		})
	}
}

// Schedule queues a refresh request for each contact not refreshed within
// the refresh interval.
func (r *Refresher) Schedule(ctx context.Context) (int, error) {
	contacts := models.NewContacts(r.env.DB.WithContext(ctx))
	stale, err := contacts.FindStale(time.Now().Add(-r.env.Config.Resolver.RefreshInterval), r.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range stale {
		if err := contacts.Refresh(c); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Run processes the pending refresh requests.
func (r *Refresher) Run(ctx context.Context) (done, failed int, err error) {
	return process(r.env.DB.WithContext(ctx), refreshScope, r.refresh)
}

func refreshScope(db *gorm.DB) *gorm.DB {
	return db.Preload("Contact").Where("attempts < 3")
}

func (r *Refresher) refresh(db *gorm.DB, request *models.ContactRefreshRequest) error {
	c := request.Contact
	if c == nil || c.Self {
		return nil
	}
	rec := r.resolver.Refresh(db.Statement.Context, c.URL, c.Protocol, c.UID)
	if rec.Protocol == models.Phantom {
		return fmt.Errorf("refresh %s: unresolvable", c.URL)
	}
	if rec.Protocol != c.Protocol {
		// a contact does not change protocol under us
		return fmt.Errorf("refresh %s: resolved as %s, not %s", c.URL, rec.Protocol, c.Protocol)
	}
	return models.NewContacts(db).UpdateIdentity(c, rec.Contact())
}
