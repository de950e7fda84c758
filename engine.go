package main

import (
	"github.com/fedinode/fedinode/conversation"
	"github.com/fedinode/fedinode/delivery"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/resolver"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// env opens the database and returns the environment handed to every
// component.
func (c *Context) env() (*models.Env, error) {
	db, err := gorm.Open(c.Dialector, &c.Config)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		return nil, err
	}
	return &models.Env{
		DB:     db,
		Logger: c.Logger,
		Config: c.Node,
	}, nil
}

// engine is the federation engine wired to one environment.
type engine struct {
	env        *models.Env
	resolver   *resolver.Resolver
	executor   *delivery.Executor
	notifier   *delivery.Notifier
	reconciler *conversation.Reconciler
	// pool is nil when batches run inline.
	pool *delivery.Pool
}

// newEngine wires the components. With background set, delivery batches
// run on a bounded pool; otherwise each batch completes before the next
// is launched.
func newEngine(env *models.Env, m metrics.Recorder, background bool) *engine {
	opts := []resolver.Option{
		resolver.WithMetrics(m),
		resolver.WithMailbox(resolver.NewMailArchive(env.DB)),
	}
	if r := env.Config.Redis; r.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		opts = append(opts, resolver.WithCache(resolver.NewRedisCache(rdb)))
	}
	e := &engine{
		env:      env,
		resolver: resolver.New(env, opts...),
		executor: delivery.NewExecutor(env, delivery.WithRecorder(m)),
	}
	var spawner delivery.Spawner = &delivery.Inline{Executor: e.executor}
	if background {
		e.pool = delivery.NewPool(e.executor, env.Config.Delivery.Concurrency)
		spawner = e.pool
	}
	e.notifier = delivery.NewNotifier(env, spawner, e.resolver)
	e.executor.RelayImports(e.notifier)
	e.reconciler = conversation.New(env, e.resolver, conversation.WithMetrics(m))
	return e
}

// wait blocks until background deliveries have finished.
func (e *engine) wait() {
	if e.pool != nil {
		e.pool.Wait()
	}
}
