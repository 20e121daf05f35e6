package gallery

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Janitor periodically removes previews nobody saved.
type Janitor struct {
	service      GalleryService
	logger       *slog.Logger
	maxAge       time.Duration
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewJanitor(service GalleryService, maxAge time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		service:      service,
		logger:       logger,
		maxAge:       maxAge,
		pollInterval: time.Minute,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.running.Swap(true) {
		return
	}

	j.logger.Info("preview janitor started", "max_age", j.maxAge.String())

	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("preview janitor stopping")
			j.running.Store(false)
			return
		case <-ticker.C:
			if !j.paused.Load() {
				j.Sweep(ctx)
			}
		}
	}
}

// Sweep runs one expiry pass and returns how many previews it removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	n, err := j.service.ExpirePreviews(ctx, j.maxAge)
	if err != nil {
		j.logger.Error("failed to expire previews", "error", err)
	}
	if n > 0 {
		j.logger.Info("expired previews removed", "count", n)
	}
	return n
}

func (j *Janitor) Pause() {
	j.paused.Store(true)
	j.logger.Info("preview janitor paused")
}

func (j *Janitor) Resume() {
	j.paused.Store(false)
	j.logger.Info("preview janitor resumed")
}

func (j *Janitor) IsPaused() bool {
	return j.paused.Load()
}

func (j *Janitor) IsRunning() bool {
	return j.running.Load()
}
