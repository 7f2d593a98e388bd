// edge_expiry.go implements the EdgeExpiryJob background job, which periodically
// deactivates membership edges whose expiration has passed. Each sweep that
// removes at least one edge bumps the updates counter so every server's
// membership graph rebuilds on its next refresh, writes an audit row per edge,
// and emails the member who lost access. The deactivating UPDATE only matches
// still-active rows, so when several servers sweep concurrently, exactly one
// of them audits and notifies for each edge.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
	"github.com/groupkeeper/groupkeeper/internal/mail"
	"github.com/groupkeeper/groupkeeper/internal/telemetry"
)

// EdgeExpiryJob sweeps expired membership edges out of the active set.
type EdgeExpiryJob struct {
	edgeRepo    *repositories.EdgeRepository
	counterRepo *repositories.CounterRepository
	auditRepo   *repositories.AuditRepository
	graph       *graph.Graph
	sender      mail.Sender
	publicURL   string
	interval    time.Duration
	logger      *slog.Logger
	stopChan    chan struct{}
}

// NewEdgeExpiryJob creates a new EdgeExpiryJob. interval controls how often
// the sweep runs (default 1m).
func NewEdgeExpiryJob(
	edgeRepo *repositories.EdgeRepository,
	counterRepo *repositories.CounterRepository,
	auditRepo *repositories.AuditRepository,
	g *graph.Graph,
	sender mail.Sender,
	publicURL string,
	interval time.Duration,
	logger *slog.Logger,
) *EdgeExpiryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &EdgeExpiryJob{
		edgeRepo:    edgeRepo,
		counterRepo: counterRepo,
		auditRepo:   auditRepo,
		graph:       g,
		sender:      sender,
		publicURL:   publicURL,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (j *EdgeExpiryJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("edge expiry job started", "interval", j.interval)

	j.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSweep(ctx)
		case <-j.stopChan:
			j.logger.Info("edge expiry job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("edge expiry job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *EdgeExpiryJob) Stop() {
	close(j.stopChan)
}

// runSweep deactivates every active edge whose expiry has passed. The updates
// counter is bumped once per sweep, not per edge, so a large batch of
// expirations triggers a single graph rebuild.
func (j *EdgeExpiryJob) runSweep(ctx context.Context) {
	edges, err := j.edgeRepo.ListExpiredEdges(ctx, time.Now())
	if err != nil {
		j.logger.Error("edge expiry sweep failed to list expired edges", "error", err)
		return
	}

	if len(edges) == 0 {
		return
	}

	j.logger.Info("edge expiry sweep found expired memberships", "count", len(edges))

	removed := 0
	for _, edge := range edges {
		won, err := j.edgeRepo.DeactivateEdge(ctx, edge.ID)
		if err != nil {
			j.logger.Error("failed to deactivate expired edge",
				"edge_id", edge.ID, "group", edge.GroupName, "error", err)
			continue
		}
		if !won {
			// Another server's sweep already deactivated this edge and
			// handled the audit row and notification.
			continue
		}
		removed++
		telemetry.ExpiredEdgesTotal.Inc()

		if j.auditRepo != nil {
			auditLog := &models.AuditLog{
				Actor:        "system",
				Action:       "edge.expire",
				ResourceType: "group_edge",
				ResourceID:   edge.ID,
				Details: map[string]interface{}{
					"group":  edge.GroupName,
					"member": edge.MemberName,
				},
				CreatedAt: time.Now(),
			}
			if err := j.auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
				j.logger.Error("failed to write expiry audit log", "edge_id", edge.ID, "error", err)
			}
		}

		j.notifyExpiredMember(edge)
	}

	if removed > 0 {
		if err := j.counterRepo.IncrementCounter(ctx, models.CounterUpdates); err != nil {
			j.logger.Error("failed to bump updates counter after expiry sweep", "error", err)
		}
	}
}

// notifyExpiredMember emails the user whose membership expired. When the
// expired member is a nested group there is no single address, so the group's
// approvers get the notice instead. Failures are logged and swallowed; the
// edge is already deactivated and the sweep must go on.
func (j *EdgeExpiryJob) notifyExpiredMember(edge *models.GroupEdge) {
	if j.sender == nil {
		return
	}

	var to []string
	if edge.MemberEmail != "" {
		to = []string{edge.MemberEmail}
	} else if j.graph != nil {
		to = j.graph.ApproverEmails(edge.GroupName)
	}
	if len(to) == 0 {
		return
	}

	expiredAt := time.Now()
	if edge.ExpiresAt != nil {
		expiredAt = *edge.ExpiresAt
	}

	subject, body, err := mail.RenderEdgeExpired(mail.EdgeExpiredData{
		Member:    edge.MemberName,
		GroupName: edge.GroupName,
		ExpiredAt: expiredAt,
		URL:       j.publicURL,
	})
	if err != nil {
		j.logger.Error("failed to render expiry email", "edge_id", edge.ID, "error", err)
		return
	}

	if err := j.sender.Send("edge_expired", to, subject, body); err != nil {
		j.logger.Error("failed to send expiry email", "group", edge.GroupName, "error", err)
	}
}
