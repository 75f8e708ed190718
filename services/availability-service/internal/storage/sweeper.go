package storage

import (
	"context"
	"log/slog"
	"time"
)

type expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired quotes.
type Sweeper struct {
	repo     expirer
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(repo expirer, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{repo: repo, logger: logger, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("quote sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired quotes deleted", "deleted", n)
	}
}
