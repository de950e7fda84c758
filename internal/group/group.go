// package group runs the long lived members of a process, the HTTP server
// and the background workers, under one context.
package group

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slog"
)

// A G manages the lifetime of a set of named goroutines from a common
// context. The first member to return cancels the context, stopping the
// others.
type G struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	done   sync.WaitGroup

	errOnce sync.Once
	err     error
}

// New returns a group whose members run under ctx. Member starts and stops
// are logged to log.
func New(ctx context.Context, log *slog.Logger) *G {
	ctx, cancel := context.WithCancel(ctx)
	return &G{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Go starts fn as the member name. fn should return when its context is
// canceled.
func (g *G) Go(name string, fn func(context.Context) error) {
	g.done.Add(1)
	go func() {
		defer g.done.Done()
		defer g.cancel()
		g.log.Info("started", "member", name)
		err := fn(g.ctx)
		g.log.Info("stopped", "member", name, "err", err)
		if err != nil {
			g.errOnce.Do(func() { g.err = fmt.Errorf("%s: %w", name, err) })
		}
	}()
}

// Wait waits for every member to return. It returns the error of the first
// member which failed, if any.
func (g *G) Wait() error {
	g.done.Wait()
	g.errOnce.Do(func() {
		// noop, required to synchronise on the errOnce mutex.
	})
	return g.err
}
