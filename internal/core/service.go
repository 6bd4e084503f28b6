package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aegis-admin/aegis/internal/policy"
	"github.com/aegis-admin/aegis/internal/rbac"
	"github.com/aegis-admin/aegis/internal/resource"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Operations accepted by Perform.
const (
	OpCreate  = "create"
	OpRead    = "read"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpRestore = "restore"
)

// Decision is the route-level authorization answer handed to the transport
// layer.
type Decision struct {
	Allow           bool
	MatchedFeatures []string
	// MatchedPolicy is the policy that decided or co-decided the outcome,
	// nil when only RBAC spoke.
	MatchedPolicy *int64
}

// Input carries the payload of one Perform call.
type Input struct {
	ID             int64
	Data           resource.Row
	Query          resource.Query
	IncludeDeleted bool
}

// Result is the successful outcome of a Perform call.
type Result struct {
	Row        resource.Row
	Rows       []resource.Row
	Pagination shared.Pagination
}

// Service is the core facade the HTTP layer collaborates with.
type Service struct {
	engine   *resource.Engine
	resolver *rbac.Resolver
	policies *policy.Engine
	logger   *slog.Logger
}

// NewService constructs the facade.
func NewService(engine *resource.Engine, resolver *rbac.Resolver, policies *policy.Engine, logger *slog.Logger) *Service {
	return &Service{engine: engine, resolver: resolver, policies: policies, logger: logger}
}

// Authorize decides whether userID may call method+path. Policies constrain
// RBAC: an explicit deny policy overrides a feature grant, an explicit allow
// is recorded but cannot grant a route the user's roles do not cover, and
// with no matching policy the RBAC decision stands. Every deny leaves a
// policy violation behind.
func (s *Service) Authorize(ctx context.Context, userID int64, method, path string) Decision {
	if outcome, matched := s.policies.Match(ctx, userID, path, method); matched && !outcome.Allowed {
		return Decision{MatchedPolicy: &outcome.PolicyID}
	} else if matched {
		rbacDecision := s.resolver.Resolve(userID, method, path)
		if !rbacDecision.Allowed {
			s.policies.RecordDenied(ctx, userID, path, method)
			return Decision{MatchedPolicy: &outcome.PolicyID}
		}
		return Decision{Allow: true, MatchedFeatures: rbacDecision.MatchedFeatures, MatchedPolicy: &outcome.PolicyID}
	}

	rbacDecision := s.resolver.Resolve(userID, method, path)
	if !rbacDecision.Allowed {
		s.policies.RecordDenied(ctx, userID, path, method)
		return Decision{}
	}
	return Decision{Allow: true, MatchedFeatures: rbacDecision.MatchedFeatures}
}

// Perform routes one generic operation to the resource engine. All errors
// come back typed; the transport layer owns their user-visible form.
func (s *Service) Perform(ctx context.Context, kind, op string, input Input, actorID int64) (Result, error) {
	switch op {
	case OpCreate:
		row, err := s.engine.Create(ctx, kind, input.Data, actorID)
		if err != nil {
			return Result{}, err
		}
		return Result{Row: row}, nil
	case OpRead:
		row, err := s.engine.Read(ctx, kind, input.ID, input.IncludeDeleted)
		if err != nil {
			return Result{}, err
		}
		return Result{Row: row}, nil
	case OpUpdate:
		row, err := s.engine.Update(ctx, kind, input.ID, input.Data, actorID)
		if err != nil {
			return Result{}, err
		}
		return Result{Row: row}, nil
	case OpDelete:
		if err := s.engine.Delete(ctx, kind, input.ID, actorID); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	case OpRestore:
		row, err := s.engine.Restore(ctx, kind, input.ID, actorID)
		if err != nil {
			return Result{}, err
		}
		return Result{Row: row}, nil
	case OpList:
		rows, pagination, err := s.engine.List(ctx, kind, input.Query)
		if err != nil {
			return Result{}, err
		}
		return Result{Rows: rows, Pagination: pagination}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", errUnknownOperation, op)
	}
}
