package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-admin/aegis/internal/shared"
)

// SessionPurger deletes sessions whose expiry or revocation predates a cutoff.
type SessionPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ViolationTrimmer deletes violation rows older than a cutoff.
type ViolationTrimmer interface {
	TrimBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionReaperJob processes TaskSessionReap.
type SessionReaperJob struct {
	purger SessionPurger
	logger *slog.Logger
	clock  shared.Clock
}

// NewSessionReaperJob constructs a SessionReaperJob.
func NewSessionReaperJob(purger SessionPurger, logger *slog.Logger, clock shared.Clock) *SessionReaperJob {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &SessionReaperJob{purger: purger, logger: logger, clock: clock}
}

// Handle purges sessions dead for longer than the payload retention.
func (j *SessionReaperJob) Handle(ctx context.Context, t *asynq.Task) error {
	retention, err := retentionFromPayload(t)
	if err != nil {
		return err
	}
	cutoff := j.clock.Now().Add(-retention)
	purged, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("session reap complete",
			slog.Int64("purged", purged), slog.Time("cutoff", cutoff))
	}
	return nil
}

// ViolationTrimJob processes TaskViolationTrim.
type ViolationTrimJob struct {
	trimmer ViolationTrimmer
	logger  *slog.Logger
	clock   shared.Clock
}

// NewViolationTrimJob constructs a ViolationTrimJob.
func NewViolationTrimJob(trimmer ViolationTrimmer, logger *slog.Logger, clock shared.Clock) *ViolationTrimJob {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &ViolationTrimJob{trimmer: trimmer, logger: logger, clock: clock}
}

// Handle trims violation rows older than the payload retention.
func (j *ViolationTrimJob) Handle(ctx context.Context, t *asynq.Task) error {
	retention, err := retentionFromPayload(t)
	if err != nil {
		return err
	}
	cutoff := j.clock.Now().Add(-retention)
	trimmed, err := j.trimmer.TrimBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("violation trim complete",
			slog.Int64("trimmed", trimmed), slog.Time("cutoff", cutoff))
	}
	return nil
}

// Rebuilder rebuilds the route graph snapshot.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Reloader reloads the policy set.
type Reloader interface {
	Reload(ctx context.Context) error
}

// AuthzWarmupJob processes TaskAuthzWarmup. Scheduled rebuilds put a bound on
// how long a missed invalidation can leave the snapshots stale.
type AuthzWarmupJob struct {
	graph    Rebuilder
	policies Reloader
	logger   *slog.Logger
}

// NewAuthzWarmupJob constructs an AuthzWarmupJob.
func NewAuthzWarmupJob(graph Rebuilder, policies Reloader, logger *slog.Logger) *AuthzWarmupJob {
	return &AuthzWarmupJob{graph: graph, policies: policies, logger: logger}
}

// Handle rebuilds both snapshots.
func (j *AuthzWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if err := j.graph.Rebuild(ctx); err != nil {
		return err
	}
	if err := j.policies.Reload(ctx); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("authz warmup complete")
	}
	return nil
}

// retentionFromPayload rejects malformed or non-positive retentions without
// retrying; a bad payload will not improve on the next attempt.
func retentionFromPayload(t *asynq.Task) (time.Duration, error) {
	var payload RetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return 0, asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		return 0, asynq.SkipRetry
	}
	return time.Duration(payload.RetentionHours) * time.Hour, nil
}
