package workers

import (
	"context"
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
)

// Executor delivers a batch of tasks for one command and item.
type Executor interface {
	Execute(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID) error
}

// Sweeper hands delivery tasks which no executor claimed back to an
// executor, as happens when the process stops between scheduling and
// delivery.
type Sweeper struct {
	env  *models.Env
	exec Executor
	// grace is how old a task must be to count as abandoned.
	grace time.Duration
	limit int
	now   func() time.Time
}

func NewSweeper(env *models.Env, exec Executor) *Sweeper {
	return &Sweeper{
		env:   env,
		exec:  exec,
		grace: 10 * time.Minute,
		limit: 1000,
		now:   time.Now,
	}
}

// NewDeliverySweepProcessor sweeps abandoned tasks every interval.
func NewDeliverySweepProcessor(s *Sweeper, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := s.env.Log().With("worker", "sweep")
		log.Info("started")
		defer log.Info("stopped")
		return every(ctx, interval, func(ctx context.Context) error {
			n, err := s.Run(ctx)
			if n > 0 {
				log.Info("swept abandoned tasks", "tasks", n)
			}
			return err
		})
	}
}

// Run executes the abandoned tasks, one batch per command and item. It
// returns the number of tasks handed over.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	tasks, err := models.NewTasks(s.env.DB.WithContext(ctx)).Abandoned(s.now().Add(-s.grace), s.limit)
	if err != nil {
		return 0, err
	}
	n := len(tasks)
	for len(tasks) > 0 {
		cmd, id := tasks[0].Command, tasks[0].ItemID
		var batch []snowflake.ID
		for len(tasks) > 0 && tasks[0].Command == cmd && tasks[0].ItemID == id {
			batch = append(batch, tasks[0].ContactID)
			tasks = tasks[1:]
		}
		if err := s.exec.Execute(ctx, cmd, id, batch); err != nil {
			s.env.Log().Warn("sweep: execute", "cmd", cmd, "id", id, "err", err)
		}
	}
	return n, nil
}
