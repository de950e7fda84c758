// Package delivery fans content events out to remote contacts.
//
// A Notifier computes the recipients of a command, records one
// DeliveryTask per recipient and hands the recipients, in batches, to a
// Spawner. An Executor claims each task and delivers it in the recipient's
// protocol. Claiming deletes the task, so a recipient is delivered to at
// most once per task however many executors race for it.
package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"golang.org/x/exp/slog"
)

// ErrSkipped is returned by a protocol when it cannot express a command
// for a recipient. The recipient is dropped; its liveness is unchanged.
var ErrSkipped = errors.New("delivery: not expressible in protocol")

// A Spawner runs one batch of deliveries as an independent unit of work.
type Spawner interface {
	Spawn(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID)
}

// Inline runs each batch to completion before Spawn returns.
type Inline struct {
	Executor *Executor
}

func (i *Inline) Spawn(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID) {
	if err := i.Executor.Execute(ctx, cmd, id, batch); err != nil {
		i.Executor.env.Log().Warn("delivery: execute", "cmd", cmd, "id", id, "err", err)
	}
}

// Pool runs batches on background goroutines, at most size at a time.
type Pool struct {
	exec *Executor
	log  *slog.Logger
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewPool(exec *Executor, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		exec: exec,
		log:  exec.env.Log(),
		sem:  make(chan struct{}, size),
	}
}

// Spawn starts the batch in the background. The batch runs under a
// context detached from ctx's cancellation so a finished Notify run does
// not abort its deliveries.
func (p *Pool) Spawn(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		if err := p.exec.Execute(ctx, cmd, id, batch); err != nil {
			p.log.Warn("delivery: execute", "cmd", cmd, "id", id, "err", err)
		}
	}()
}

// Wait blocks until every spawned batch has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
