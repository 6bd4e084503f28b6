package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource loads policies from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// LoadPolicies fetches all policies with their JSONB conditions.
func (s *PGSource) LoadPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, priority, effect, condition FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("policy: query: %w", err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var p Policy
		var condition []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Priority, &p.Effect, &condition); err != nil {
			return nil, fmt.Errorf("policy: scan: %w", err)
		}
		if len(condition) > 0 {
			if err := json.Unmarshal(condition, &p.Condition); err != nil {
				return nil, fmt.Errorf("policy: decode condition for %d: %w", p.ID, err)
			}
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// PGViolations appends policy_violations rows.
type PGViolations struct {
	pool *pgxpool.Pool
}

// NewPGViolations constructs a PGViolations writer.
func NewPGViolations(pool *pgxpool.Pool) *PGViolations {
	return &PGViolations{pool: pool}
}

// TrimBefore deletes violation rows older than cutoff.
func (w *PGViolations) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := w.pool.Exec(ctx, `DELETE FROM policy_violations WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("policy: trim violations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Write inserts one violation row.
func (w *PGViolations) Write(ctx context.Context, v Violation) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO policy_violations (user_id, policy_id, resource, action, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		v.UserID, v.PolicyID, v.Resource, v.Action, v.OccurredAt)
	if err != nil {
		return fmt.Errorf("policy: insert violation: %w", err)
	}
	return nil
}
