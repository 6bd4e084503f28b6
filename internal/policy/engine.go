package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/aegis-admin/aegis/internal/shared"
)

// Source loads the policy set, already persisted and priority-ordered.
type Source interface {
	LoadPolicies(ctx context.Context) ([]Policy, error)
}

// ViolationWriter appends policy_violations rows.
type ViolationWriter interface {
	Write(ctx context.Context, v Violation) error
}

// Engine evaluates policies in descending priority, first match wins. Like
// the RBAC graph, the active policy set is an immutable slice swapped
// atomically on reload so readers never block.
type Engine struct {
	source     Source
	violations ViolationWriter
	logger     *slog.Logger
	clock      shared.Clock
	policies   atomic.Pointer[[]Policy]
	group      singleflight.Group
}

// NewEngine constructs an Engine. Call Reload before serving.
func NewEngine(source Source, violations ViolationWriter, logger *slog.Logger, clock shared.Clock) *Engine {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	e := &Engine{source: source, violations: violations, logger: logger, clock: clock}
	empty := []Policy{}
	e.policies.Store(&empty)
	return e
}

// Reload fetches the policy set and swaps it in, sorted by priority
// descending with ID ascending as a stable tiebreak.
func (e *Engine) Reload(ctx context.Context) error {
	_, err, _ := e.group.Do("reload", func() (any, error) {
		policies, err := e.source.LoadPolicies(ctx)
		if err != nil {
			return nil, fmt.Errorf("policy: load: %w", err)
		}
		sorted := make([]Policy, len(policies))
		copy(sorted, policies)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Priority != sorted[j].Priority {
				return sorted[i].Priority > sorted[j].Priority
			}
			return sorted[i].ID < sorted[j].ID
		})
		e.policies.Store(&sorted)
		return nil, nil
	})
	return err
}

// Invalidate schedules a reload off the hot path.
func (e *Engine) Invalidate() {
	go func() {
		if err := e.Reload(context.Background()); err != nil && e.logger != nil {
			e.logger.Error("policy reload", slog.Any("error", err))
		}
	}()
}

// Evaluate scans policies in priority order and returns the effect of the
// first whose condition matches; no match is a deny. Every deny, explicit or
// default, records a violation before returning. The violation write is
// best-effort: its failure is logged and never converts the deny into an
// allow or blocks the decision.
func (e *Engine) Evaluate(ctx context.Context, userID int64, resource, action string) Outcome {
	for _, p := range *e.policies.Load() {
		if !p.Condition.Matches(userID, resource, action) {
			continue
		}
		outcome := Outcome{Allowed: p.Effect == EffectAllow, PolicyID: p.ID}
		if !outcome.Allowed {
			e.recordViolation(ctx, userID, &p.ID, resource, action)
		}
		return outcome
	}
	e.recordViolation(ctx, userID, nil, resource, action)
	return Outcome{}
}

// Match returns the first policy matching the request without applying the
// default deny, for callers where policies override another gate rather than
// stand alone. An explicit deny match still records a violation.
func (e *Engine) Match(ctx context.Context, userID int64, resource, action string) (Outcome, bool) {
	for _, p := range *e.policies.Load() {
		if !p.Condition.Matches(userID, resource, action) {
			continue
		}
		outcome := Outcome{Allowed: p.Effect == EffectAllow, PolicyID: p.ID}
		if !outcome.Allowed {
			e.recordViolation(ctx, userID, &p.ID, resource, action)
		}
		return outcome, true
	}
	return Outcome{}, false
}

// RecordDenied captures a violation for a deny decided outside the engine,
// such as an RBAC route denial.
func (e *Engine) RecordDenied(ctx context.Context, userID int64, resource, action string) {
	e.recordViolation(ctx, userID, nil, resource, action)
}

func (e *Engine) recordViolation(ctx context.Context, userID int64, policyID *int64, resource, action string) {
	if e.violations == nil {
		return
	}
	v := Violation{
		UserID:     userID,
		PolicyID:   policyID,
		Resource:   resource,
		Action:     action,
		OccurredAt: e.clock.Now(),
	}
	if err := e.violations.Write(ctx, v); err != nil && e.logger != nil {
		e.logger.Error("policy violation write", slog.Any("error", err),
			slog.Int64("user_id", userID), slog.String("resource", resource), slog.String("action", action))
	}
}
