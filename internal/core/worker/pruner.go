package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/gramo/internal/infra/storage"
)

// Pruner deletes old analyses based on retention policy.
type Pruner struct {
	retention time.Duration
	history   storage.AnalysisRepository
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. A retention of zero disables it.
func NewPruner(retention time.Duration, history storage.AnalysisRepository) *Pruner {
	return &Pruner{
		retention: retention,
		history:   history,
		now:       time.Now,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx ends.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 || p.history == nil {
		return
	}

	// 10% of retention, between one minute and one hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes every analysis older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := p.now().Add(-p.retention)

	n, err := p.history.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune analyses", "before", threshold, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned analyses", "count", n, "before", threshold)
	}
	return n
}
