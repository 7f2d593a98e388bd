// graph_refresh.go implements the GraphRefreshJob background job, which
// periodically asks the membership graph to compare its checkpoint against the
// database's updates counter and rebuild itself when the counter moved. The
// comparison is one cheap SELECT, so the interval can be short; the expensive
// full reload only happens after an actual write.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/groupkeeper/groupkeeper/internal/graph"
)

// GraphRefreshJob keeps the in-memory membership graph in sync with the
// database.
type GraphRefreshJob struct {
	graph    *graph.Graph
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewGraphRefreshJob creates a new GraphRefreshJob. interval controls how
// often the checkpoint is polled (default 10s).
func NewGraphRefreshJob(g *graph.Graph, interval time.Duration, logger *slog.Logger) *GraphRefreshJob {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &GraphRefreshJob{
		graph:    g,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background refresh loop. The loop exits when ctx is
// cancelled or Stop() is called.
func (j *GraphRefreshJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("graph refresh job started", "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			rebuilt, err := j.graph.RefreshFromDB(ctx)
			if err != nil {
				j.logger.Error("graph refresh failed", "error", err)
				continue
			}
			if rebuilt {
				j.logger.Info("membership graph rebuilt", "checkpoint", j.graph.Checkpoint())
			}
		case <-j.stopChan:
			j.logger.Info("graph refresh job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("graph refresh job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *GraphRefreshJob) Stop() {
	close(j.stopChan)
}
