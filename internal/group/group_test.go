package group

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGroupFirstErrorStopsTheOthers(t *testing.T) {
	require := require.New(t)

	boom := errors.New("boom")
	g := New(context.Background(), discard())
	g.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Go("server", func(ctx context.Context) error {
		return boom
	})

	err := g.Wait()
	require.ErrorIs(err, boom)
	require.Contains(err.Error(), "server")
}

func TestGroupParentCancel(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	g := New(ctx, discard())
	for _, name := range []string{"a", "b"} {
		g.Go(name, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	}
	time.AfterFunc(10*time.Millisecond, cancel)
	require.NoError(g.Wait())
}
