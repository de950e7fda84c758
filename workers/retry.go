package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/diaspora"
	"github.com/fedinode/fedinode/email"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/salmon"
	"gorm.io/gorm"
)

// Retrier re-posts envelopes from the retry queue.
type Retrier struct {
	env     *models.Env
	client  *http.Client
	mailer  email.Sender
	metrics metrics.Recorder
	now     func() time.Time
}

func NewRetrier(env *models.Env, client *http.Client, mailer email.Sender, m metrics.Recorder) *Retrier {
	if m == nil {
		m = metrics.Discard
	}
	return &Retrier{
		env:     env,
		client:  client,
		mailer:  mailer,
		metrics: m,
		now:     time.Now,
	}
}

// NewRetryProcessor drains the retry queue every interval.
func NewRetryProcessor(r *Retrier, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := r.env.Log().With("worker", "retry")
		log.Info("started")
		defer log.Info("stopped")
		return every(ctx, interval, func(ctx context.Context) error {
			done, failed, err := r.Run(ctx)
			if done+failed > 0 {
				log.Info("retry pass", "delivered", done, "failed", failed)
			}
			return err
		})
	}
}

// Run makes one pass through the retry queue.
func (r *Retrier) Run(ctx context.Context) (done, failed int, err error) {
	return process(r.env.DB.WithContext(ctx), r.scope, r.retry)
}

func (r *Retrier) scope(db *gorm.DB) *gorm.DB {
	return db.Preload("Contact").Where("attempts < ?", r.env.Config.Delivery.RetryAttempts)
}

// retry re-posts one envelope. Envelopes for contacts which are gone,
// blocked or archived are dropped.
func (r *Retrier) retry(db *gorm.DB, e *models.RetryEntry) error {
	c := e.Contact
	if c == nil || c.Blocked || c.Archived {
		return nil
	}
	ctx, cancel := context.WithTimeout(db.Statement.Context, r.timeout())
	defer cancel()

	contacts := models.NewContacts(db)
	err := r.send(ctx, db, e)
	var rejected *dfrn.StatusError
	switch {
	case errors.As(err, &rejected):
		r.metrics.RecordDelivery(string(e.Protocol), "rejected")
		return contacts.Unmark(c)
	case err != nil:
		r.metrics.RecordDelivery(string(e.Protocol), "failed")
		if err := contacts.MarkForDeath(c, r.now(), r.env.Config.Liveness.ArchiveAfter); err != nil {
			return err
		}
		return err
	}
	r.metrics.RecordDelivery(string(e.Protocol), "ok")
	return contacts.Unmark(c)
}

func (r *Retrier) send(ctx context.Context, db *gorm.DB, e *models.RetryEntry) error {
	switch e.Protocol {
	case models.DFRN:
		owner, err := models.NewUsers(db).FindOwner(e.UID)
		if err != nil {
			return fmt.Errorf("retry: owner %d: %w", e.UID, err)
		}
		return dfrn.Post(ctx, r.client, owner, e.Endpoint, e.Body)
	case models.Diaspora:
		return diaspora.Post(ctx, r.client, e.Endpoint, e.Body)
	case models.OStatus:
		return salmon.Post(ctx, r.client, e.Endpoint, e.Body)
	case models.Mail:
		from, err := email.EnvelopeFrom(e.Body)
		if err != nil {
			return err
		}
		return r.mailer.Send(ctx, from, []string{strings.TrimPrefix(e.Endpoint, "mailto:")}, e.Body)
	default:
		return fmt.Errorf("retry: unsupported protocol %q", e.Protocol)
	}
}

func (r *Retrier) timeout() time.Duration {
	if t := r.env.Config.Delivery.Timeout; t > 0 {
		return t
	}
	return 20 * time.Second
}
