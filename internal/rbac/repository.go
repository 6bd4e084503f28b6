package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource loads graph edges from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// LoadGraphData fetches every edge the snapshot needs in one round of reads.
func (s *PGSource) LoadGraphData(ctx context.Context) (GraphData, error) {
	var data GraphData

	features, err := collect(ctx, s.pool,
		`SELECT id, key, category_id FROM features`,
		func(rows pgx.Rows) (Feature, error) {
			var f Feature
			err := rows.Scan(&f.ID, &f.Key, &f.CategoryID)
			return f, err
		})
	if err != nil {
		return data, fmt.Errorf("rbac: load features: %w", err)
	}

	roleFeatures, err := collect(ctx, s.pool,
		`SELECT role_id, feature_id FROM role_features`,
		func(rows pgx.Rows) (RoleFeature, error) {
			var rf RoleFeature
			err := rows.Scan(&rf.RoleID, &rf.FeatureID)
			return rf, err
		})
	if err != nil {
		return data, fmt.Errorf("rbac: load role features: %w", err)
	}

	userRoles, err := collect(ctx, s.pool,
		`SELECT user_id, role_id FROM user_roles`,
		func(rows pgx.Rows) (UserRole, error) {
			var ur UserRole
			err := rows.Scan(&ur.UserID, &ur.RoleID)
			return ur, err
		})
	if err != nil {
		return data, fmt.Errorf("rbac: load user roles: %w", err)
	}

	routes, err := collect(ctx, s.pool,
		`SELECT id, method, pattern, COALESCE(feature_id, 0), public FROM route_features`,
		func(rows pgx.Rows) (RouteFeature, error) {
			var rf RouteFeature
			err := rows.Scan(&rf.ID, &rf.Method, &rf.Pattern, &rf.FeatureID, &rf.Public)
			return rf, err
		})
	if err != nil {
		return data, fmt.Errorf("rbac: load route features: %w", err)
	}

	data.Features = features
	data.RoleFeatures = roleFeatures
	data.UserRoles = userRoles
	data.Routes = routes
	return data, nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
