package runner

import (
	"context"
	"fmt"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// LaneStats is the backlog of one queue
type LaneStats struct {
	Source   domain.Source `json:"source"`
	Queue    string        `json:"queue"`
	Ready    int64         `json:"ready"`
	InFlight int64         `json:"in_flight"`
	Total    int64         `json:"total"`
	Archived int64         `json:"archived"`
}

// Stats is a snapshot of every lane, optionally with one request's ledger counts
type Stats struct {
	Lanes   []LaneStats          `json:"lanes"`
	Backlog int64                `json:"backlog"`
	Warning bool                 `json:"warning"`
	Request *domain.ResultCounts `json:"request,omitempty"`
}

// Stats reports queue depths. Warning is set when the pending backlog
// exceeds the configured threshold.
func (r *Runner) Stats(ctx context.Context, requestID string) (*Stats, error) {
	stats := &Stats{Lanes: []LaneStats{}}
	for _, src := range domain.AllSources() {
		for _, name := range domain.Lanes(src) {
			size, err := r.queue.Size(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("size of %s: %w", name, err)
			}
			stats.Lanes = append(stats.Lanes, LaneStats{
				Source:   src,
				Queue:    name,
				Ready:    size.Ready,
				InFlight: size.InFlight,
				Total:    size.Total,
				Archived: size.Archived,
			})
			stats.Backlog += size.Total
		}
	}
	stats.Warning = r.cfg.BacklogWarning > 0 && stats.Backlog > r.cfg.BacklogWarning

	if requestID != "" {
		counts, err := r.store.CountResults(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("count results: %w", err)
		}
		stats.Request = &counts
	}
	return stats, nil
}
