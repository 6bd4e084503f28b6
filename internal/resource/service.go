package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/aegis-admin/aegis/internal/history"
	"github.com/aegis-admin/aegis/internal/policy"
	"github.com/aegis-admin/aegis/internal/shared"
)

// FeatureChecker answers whether an actor currently holds a feature.
type FeatureChecker interface {
	HasFeature(userID int64, key string) bool
}

// PolicyGate evaluates policies and records denials decided elsewhere.
type PolicyGate interface {
	Evaluate(ctx context.Context, userID int64, resource, action string) policy.Outcome
	RecordDenied(ctx context.Context, userID int64, resource, action string)
}

// Invalidator is notified after mutations that stale a cached snapshot.
type Invalidator interface {
	Invalidate()
}

// Engine is the shared CRUD service every entity kind runs through. Each
// mutation is gated by RBAC and policy, validated as a whole, and committed
// in one transaction with its change-history row.
type Engine struct {
	store     Store
	features  FeatureChecker
	policies  PolicyGate
	validate  *validator.Validate
	logger    *slog.Logger
	entities  map[string]EntityConfig
	graphInv  Invalidator
	policyInv Invalidator
}

// EngineParams collects the engine's collaborators.
type EngineParams struct {
	Store             Store
	Features          FeatureChecker
	Policies          PolicyGate
	Logger            *slog.Logger
	Entities          []EntityConfig
	GraphInvalidator  Invalidator
	PolicyInvalidator Invalidator
}

// NewEngine constructs an Engine from per-entity configs.
func NewEngine(params EngineParams) (*Engine, error) {
	entities := make(map[string]EntityConfig, len(params.Entities))
	for _, cfg := range params.Entities {
		if cfg.Kind == "" || cfg.Table == "" {
			return nil, fmt.Errorf("resource: entity config missing kind or table (%+v)", cfg)
		}
		if _, dup := entities[cfg.Kind]; dup {
			return nil, fmt.Errorf("resource: duplicate entity kind %q", cfg.Kind)
		}
		entities[cfg.Kind] = cfg
	}
	return &Engine{
		store:     params.Store,
		features:  params.Features,
		policies:  params.Policies,
		validate:  validator.New(),
		logger:    params.Logger,
		entities:  entities,
		graphInv:  params.GraphInvalidator,
		policyInv: params.PolicyInvalidator,
	}, nil
}

// Config returns the registered config for a kind.
func (e *Engine) Config(kind string) (EntityConfig, bool) {
	cfg, ok := e.entities[kind]
	return cfg, ok
}

// Create validates, gates and inserts a new row, recording the change in the
// same transaction.
func (e *Engine) Create(ctx context.Context, kind string, input Row, actorID int64) (Row, error) {
	cfg, err := e.mutableConfig(kind, false)
	if err != nil {
		return nil, err
	}

	row, hookViolations, err := e.prepare(ctx, cfg, cfg.allowedFields(input))
	if err != nil {
		return nil, err
	}
	if err := e.validateRow(cfg, row, hookViolations...); err != nil {
		return nil, err
	}
	if err := e.precheckUnique(ctx, cfg, row, 0); err != nil {
		return nil, err
	}
	if err := e.gate(ctx, cfg, actorID, history.ActionCreate); err != nil {
		return nil, err
	}

	var created Row
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		created, err = tx.Insert(ctx, cfg.Table, row)
		if err != nil {
			return err
		}
		return tx.RecordChange(ctx, history.Change{
			ActorUserID: actorRef(actorID),
			TableName:   cfg.Table,
			RecordID:    created.ID(),
			Action:      history.ActionCreate,
			NewValues:   created,
		})
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(cfg)
	return cfg.redacted(created), nil
}

// Update merges the patch over the stored row, re-validates the result and
// persists it with both snapshots recorded atomically.
func (e *Engine) Update(ctx context.Context, kind string, id int64, patch Row, actorID int64) (Row, error) {
	cfg, err := e.mutableConfig(kind, true)
	if err != nil {
		return nil, err
	}

	existing, err := e.fetch(ctx, cfg, id, false)
	if err != nil {
		return nil, err
	}

	merged := existing.Clone()
	for field, value := range cfg.allowedFields(patch) {
		merged[field] = value
	}
	merged, hookViolations, err := e.prepare(ctx, cfg, merged)
	if err != nil {
		return nil, err
	}
	if err := e.validateRow(cfg, merged, hookViolations...); err != nil {
		return nil, err
	}
	if err := e.precheckUnique(ctx, cfg, merged, id); err != nil {
		return nil, err
	}
	if err := e.gate(ctx, cfg, actorID, history.ActionUpdate); err != nil {
		return nil, err
	}

	delete(merged, "id")
	var updated Row
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		updated, err = tx.Update(ctx, cfg.Table, id, merged)
		if err != nil {
			if errors.Is(err, ErrRowNotFound) {
				return &shared.NotFoundError{Kind: kind, ID: id}
			}
			return err
		}
		return tx.RecordChange(ctx, history.Change{
			ActorUserID: actorRef(actorID),
			TableName:   cfg.Table,
			RecordID:    id,
			Action:      history.ActionUpdate,
			OldValues:   existing,
			NewValues:   updated,
		})
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(cfg)
	return cfg.redacted(updated), nil
}

// Delete soft-deletes when the entity declares it, hard-deletes otherwise.
// Either way the pre-delete snapshot is recorded with the mutation.
func (e *Engine) Delete(ctx context.Context, kind string, id int64, actorID int64) error {
	cfg, err := e.mutableConfig(kind, true)
	if err != nil {
		return err
	}

	existing, err := e.fetch(ctx, cfg, id, false)
	if err != nil {
		return err
	}
	if err := e.gate(ctx, cfg, actorID, history.ActionDelete); err != nil {
		return err
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if cfg.SoftDelete {
			if _, err := tx.SoftDelete(ctx, cfg.Table, id); err != nil {
				if errors.Is(err, ErrRowNotFound) {
					return &shared.NotFoundError{Kind: kind, ID: id}
				}
				return err
			}
		} else if err := tx.Delete(ctx, cfg.Table, id); err != nil {
			if errors.Is(err, ErrRowNotFound) {
				return &shared.NotFoundError{Kind: kind, ID: id}
			}
			return err
		}
		return tx.RecordChange(ctx, history.Change{
			ActorUserID: actorRef(actorID),
			TableName:   cfg.Table,
			RecordID:    id,
			Action:      history.ActionDelete,
			OldValues:   existing,
		})
	})
	if err != nil {
		return err
	}

	e.invalidate(cfg)
	return nil
}

// Restore clears deleted_at on a soft-deleted row.
func (e *Engine) Restore(ctx context.Context, kind string, id int64, actorID int64) (Row, error) {
	cfg, err := e.mutableConfig(kind, true)
	if err != nil {
		return nil, err
	}
	if !cfg.SoftDelete {
		return nil, fmt.Errorf("%w: %s does not support restore", ErrMutationNotAllowed, kind)
	}

	existing, err := e.fetch(ctx, cfg, id, true)
	if err != nil {
		return nil, err
	}
	if existing["deleted_at"] == nil {
		return cfg.redacted(existing), nil
	}
	if err := e.gate(ctx, cfg, actorID, history.ActionUpdate); err != nil {
		return nil, err
	}

	var restored Row
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		restored, err = tx.Restore(ctx, cfg.Table, id)
		if err != nil {
			if errors.Is(err, ErrRowNotFound) {
				return &shared.NotFoundError{Kind: kind, ID: id}
			}
			return err
		}
		return tx.RecordChange(ctx, history.Change{
			ActorUserID: actorRef(actorID),
			TableName:   cfg.Table,
			RecordID:    id,
			Action:      history.ActionUpdate,
			OldValues:   existing,
			NewValues:   restored,
		})
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(cfg)
	return cfg.redacted(restored), nil
}

// Read fetches one row.
func (e *Engine) Read(ctx context.Context, kind string, id int64, includeDeleted bool) (Row, error) {
	cfg, ok := e.entities[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	row, err := e.fetch(ctx, cfg, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	return cfg.redacted(row), nil
}

// List returns a filtered, sorted page. Soft-deleted rows are excluded
// unless the query asks for them.
func (e *Engine) List(ctx context.Context, kind string, q Query) ([]Row, shared.Pagination, error) {
	cfg, ok := e.entities[kind]
	if !ok {
		return nil, shared.Pagination{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !cfg.SoftDelete {
		q.IncludeDeleted = true
	}
	if q.SortBy != "" && !e.sortable(cfg, q.SortBy) {
		return nil, shared.Pagination{}, &shared.ValidationError{Fields: []shared.FieldViolation{
			{Field: q.SortBy, Rule: "sortable", Detail: "unknown sort field"},
		}}
	}

	rows, total, err := e.store.List(ctx, cfg.Table, q)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i, row := range rows {
		rows[i] = cfg.redacted(row)
	}
	return rows, shared.NewPagination(q.Page, q.PerPage, total), nil
}

func (e *Engine) mutableConfig(kind string, forUpdate bool) (EntityConfig, error) {
	cfg, ok := e.entities[kind]
	if !ok {
		return EntityConfig{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if cfg.ReadOnly {
		return EntityConfig{}, fmt.Errorf("%w: %s is read-only", ErrMutationNotAllowed, kind)
	}
	if forUpdate && cfg.AppendOnly {
		return EntityConfig{}, fmt.Errorf("%w: %s is append-only", ErrMutationNotAllowed, kind)
	}
	return cfg, nil
}

func (e *Engine) fetch(ctx context.Context, cfg EntityConfig, id int64, includeDeleted bool) (Row, error) {
	if !cfg.SoftDelete {
		includeDeleted = true
	}
	row, err := e.store.Get(ctx, cfg.Table, id, includeDeleted)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return nil, &shared.NotFoundError{Kind: cfg.Kind, ID: id}
		}
		return nil, err
	}
	return row, nil
}

// prepare runs the entity's BeforeWrite hook. Field complaints from the hook
// are returned separately so validateRow reports them together with the rule
// violations instead of letting them mask each other.
func (e *Engine) prepare(ctx context.Context, cfg EntityConfig, row Row) (Row, []shared.FieldViolation, error) {
	if cfg.BeforeWrite == nil {
		return row, nil, nil
	}
	prepared, err := cfg.BeforeWrite(ctx, row)
	if err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			return row, verr.Fields, nil
		}
		return nil, nil, err
	}
	return prepared, nil, nil
}

// gate checks the actor's feature grant and then policies. Either denial
// aborts with AuthorizationError and leaves a violation row behind.
func (e *Engine) gate(ctx context.Context, cfg EntityConfig, actorID int64, action string) error {
	if cfg.Feature != "" && !e.features.HasFeature(actorID, cfg.Feature) {
		e.policies.RecordDenied(ctx, actorID, cfg.Kind, action)
		return &shared.AuthorizationError{RequiredFeature: cfg.Feature}
	}
	outcome := e.policies.Evaluate(ctx, actorID, cfg.Kind, action)
	if !outcome.Allowed {
		return &shared.AuthorizationError{PolicyID: outcome.PolicyID}
	}
	return nil
}

// precheckUnique produces friendly conflicts before the transaction opens.
// The storage constraint remains the authority for the race two concurrent
// creates can hit.
func (e *Engine) precheckUnique(ctx context.Context, cfg EntityConfig, row Row, excludeID int64) error {
	for _, tuple := range cfg.Unique {
		fields := make(map[string]any, len(tuple))
		complete := true
		for _, field := range tuple {
			value, ok := row[field]
			if !ok || value == nil {
				complete = false
				break
			}
			fields[field] = value
		}
		if !complete {
			continue
		}
		exists, err := e.store.Exists(ctx, cfg.Table, fields, excludeID)
		if err != nil {
			return err
		}
		if exists {
			field := tuple[0]
			return &shared.ConflictError{Field: field, Value: row[field]}
		}
	}
	return nil
}

func (e *Engine) invalidate(cfg EntityConfig) {
	if cfg.InvalidatesGraph && e.graphInv != nil {
		e.graphInv.Invalidate()
	}
	if cfg.InvalidatesPolicies && e.policyInv != nil {
		e.policyInv.Invalidate()
	}
}

func (e *Engine) sortable(cfg EntityConfig, field string) bool {
	if field == "id" || field == "created_at" || field == "updated_at" {
		return true
	}
	_, ok := cfg.Rules[field]
	return ok
}

func actorRef(actorID int64) *int64 {
	if actorID == 0 {
		return nil
	}
	return &actorID
}
