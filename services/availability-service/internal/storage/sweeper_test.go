package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) DeleteExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, c.err
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	repo := &countingExpirer{}
	s := NewSweeper(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweepToleratesErrors(t *testing.T) {
	repo := &countingExpirer{err: errors.New("db down")}
	s := NewSweeper(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	assert.Equal(t, 5*time.Minute, s.interval)

	s.sweep(context.Background())
	assert.EqualValues(t, 1, repo.calls.Load())
}
