package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/email"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/safehttp"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
)

// delayWindow is how recently a contact must have had an envelope queued
// for new envelopes to be queued without an attempt.
const delayWindow = 15 * time.Minute

// An envelope is a rendered command ready for transmission.
type envelope struct {
	endpoint    string
	contentType string
	body        []byte
	// local envelopes are imported in-process.
	local bool
}

// A strategy renders and transmits commands in one protocol. build returns
// ErrSkipped when the protocol cannot express the command, and a nil
// envelope when nothing needs to be sent.
type strategy struct {
	build    func(ctx context.Context, j *job, c *models.Contact) (*envelope, error)
	transmit func(ctx context.Context, j *job, c *models.Contact, env *envelope) error
}

// Executor delivers claimed tasks.
type Executor struct {
	env        *models.Env
	client     *http.Client
	importer   *dfrn.Importer
	mailer     email.Sender
	metrics    metrics.Recorder
	strategies map[models.Protocol]strategy
	now        func() time.Time
}

type ExecutorOption func(*Executor)

// WithHTTPClient sets the client used for remote deliveries.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// WithMailer sets the gateway used for mail contacts.
func WithMailer(s email.Sender) ExecutorOption {
	return func(e *Executor) {
		e.mailer = s
	}
}

func WithRecorder(m metrics.Recorder) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// RelayImports makes deliveries to local recipients forward replies on
// their threads through r, as the notify endpoint does.
func (e *Executor) RelayImports(r dfrn.Relayer) {
	e.importer = dfrn.NewImporter(e.env, dfrn.WithRelay(r))
}

func NewExecutor(env *models.Env, opts ...ExecutorOption) *Executor {
	e := &Executor{
		env:      env,
		importer: dfrn.NewImporter(env),
		metrics:  metrics.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = safehttp.NewClient(env.Config.Delivery.Timeout, env.Config.Resolver.AllowPrivateNetworks)
	}
	if e.mailer == nil {
		m := env.Config.Mail
		e.mailer = &email.SMTP{Addr: m.SMTPAddr, Username: m.Username, Password: m.Password}
	}
	e.strategies = map[models.Protocol]strategy{
		models.DFRN:     {build: e.buildDFRN, transmit: e.transmitDFRN},
		models.Diaspora: {build: e.buildDiaspora, transmit: e.post},
		models.OStatus:  {build: e.buildOStatus},
		models.Mail:     {build: e.buildMail, transmit: e.transmitMail},
	}
	return e
}

// Execute delivers cmd to each recipient of the batch whose task it can
// claim. A failed delivery never aborts the batch.
func (e *Executor) Execute(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID) error {
	j, err := loadJob(ctx, e.env, cmd, id)
	switch {
	case errors.Is(err, errVanished):
		// nothing left to send; drop the tasks
		tasks := models.NewTasks(e.env.DB.WithContext(ctx))
		for _, cid := range batch {
			if _, err := tasks.Claim(cmd, id, cid); err != nil {
				return err
			}
		}
		return nil
	case err != nil:
		return fmt.Errorf("execute %s %d: %w", cmd, id, err)
	}
	for _, cid := range batch {
		if err := e.deliver(ctx, j, cid); err != nil {
			e.env.Log().Warn("delivery failed", "cmd", cmd, "id", id, "contact", cid, "err", err)
		}
	}
	return nil
}

func (e *Executor) deliver(ctx context.Context, j *job, contactID snowflake.ID) error {
	db := e.env.DB.WithContext(ctx)
	claimed, err := models.NewTasks(db).Claim(j.cmd, j.id, contactID)
	if err != nil {
		return err
	}
	if !claimed {
		e.metrics.RecordClaimLost()
		return nil
	}
	contacts := models.NewContacts(db)
	contact, err := contacts.FindByID(contactID)
	if err != nil {
		return err
	}
	if contact.Blocked {
		return nil
	}
	log := e.env.Log().With("cmd", j.cmd, "id", j.id, "contact", contact.ID, "protocol", contact.Protocol)

	s, ok := e.strategies[contact.Protocol]
	if !ok {
		e.metrics.RecordDelivery(string(contact.Protocol), "skipped")
		return nil
	}
	env, err := s.build(ctx, j, contact)
	switch {
	case errors.Is(err, ErrSkipped):
		log.Debug("delivery skipped")
		e.metrics.RecordDelivery(string(contact.Protocol), "skipped")
		return nil
	case err != nil:
		return err
	case env == nil:
		return nil
	}

	queue := models.NewRetryQueue(db)
	if !env.local {
		delayed, err := queue.RecentlyDelayed(contact.ID, e.now().Add(-delayWindow))
		if err != nil {
			return err
		}
		if delayed {
			log.Debug("recently delayed, queued")
			e.metrics.RecordDelivery(string(contact.Protocol), "queued")
			return queue.Add(retryEntry(j, contact, env))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	err = s.transmit(ctx, j, contact, env)
	var rejected *dfrn.StatusError
	switch {
	case errors.As(err, &rejected):
		// the recipient is alive, it just did not want this
		log.Info("delivery rejected", "err", err)
		e.metrics.RecordDelivery(string(contact.Protocol), "rejected")
		return contacts.Unmark(contact)
	case err != nil:
		log.Info("delivery failed, queued", "err", err)
		e.metrics.RecordDelivery(string(contact.Protocol), "failed")
		if err := contacts.MarkForDeath(contact, e.now(), e.env.Config.Liveness.ArchiveAfter); err != nil {
			return err
		}
		return queue.Add(retryEntry(j, contact, env))
	}
	log.Debug("delivered")
	e.metrics.RecordDelivery(string(contact.Protocol), "ok")
	return contacts.Unmark(contact)
}

func retryEntry(j *job, c *models.Contact, env *envelope) *models.RetryEntry {
	return &models.RetryEntry{
		ContactID:   c.ID,
		UID:         j.uid(),
		Protocol:    c.Protocol,
		Endpoint:    env.endpoint,
		ContentType: env.contentType,
		Body:        env.body,
	}
}

func (e *Executor) timeout() time.Duration {
	if t := e.env.Config.Delivery.Timeout; t > 0 {
		return t
	}
	return 20 * time.Second
}
