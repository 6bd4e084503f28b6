package core

import (
	"context"
	"errors"

	"github.com/aegis-admin/aegis/internal/resource"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Hasher is the credential collaborator. Password hashing itself lives in
// internal/auth; the engine only consumes digests.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Entity kinds served by Perform.
const (
	KindUsers             = "users"
	KindDepartments       = "departments"
	KindRoles             = "roles"
	KindFeatureCategories = "feature_categories"
	KindFeatures          = "features"
	KindRoleFeatures      = "role_features"
	KindRouteFeatures     = "route_features"
	KindUserRoles         = "user_roles"
	KindPolicies          = "policies"
	KindSessions          = "sessions"
	KindPolicyViolations  = "policy_violations"
	KindChangeHistories   = "change_histories"
)

// Feature keys guarding entity mutations.
const (
	FeatureUsersManage       = "users.manage"
	FeatureDepartmentsManage = "departments.manage"
	FeatureRolesManage       = "roles.manage"
	FeatureFeaturesManage    = "features.manage"
	FeaturePoliciesManage    = "policies.manage"
)

// Entities declares the full per-entity configuration the engine runs on.
// Uniqueness listed here is a friendly pre-check; the matching uq_* database
// constraints are the authority.
func Entities(hasher Hasher) []resource.EntityConfig {
	return []resource.EntityConfig{
		{
			Kind:       KindUsers,
			Table:      "users",
			Feature:    FeatureUsersManage,
			Rules: map[string]any{
				"name":          "required,min=1,max=120",
				"email":         "required,email",
				"password":      "omitempty,min=8",
				"department_id": "omitempty,min=1",
				"status":        "required,oneof=active disabled",
			},
			Unique:      [][]string{{"email"}},
			BeforeWrite: hashPassword(hasher),
			Redact:      []string{"password_hash"},
		},
		{
			Kind:       KindDepartments,
			Table:      "departments",
			SoftDelete: true,
			Feature:    FeatureDepartmentsManage,
			Rules: map[string]any{
				"name": "required,min=1,max=120",
			},
			Unique: [][]string{{"name"}},
		},
		{
			Kind:    KindRoles,
			Table:   "roles",
			Feature: FeatureRolesManage,
			Rules: map[string]any{
				"name": "required,min=1,max=120",
			},
			Unique: [][]string{{"name"}},
		},
		{
			Kind:    KindFeatureCategories,
			Table:   "feature_categories",
			Feature: FeatureFeaturesManage,
			Rules: map[string]any{
				"name": "required,min=1,max=120",
			},
			Unique: [][]string{{"name"}},
		},
		{
			Kind:    KindFeatures,
			Table:   "features",
			Feature: FeatureFeaturesManage,
			Rules: map[string]any{
				"key":         "required,min=1,max=120",
				"category_id": "required,min=1",
			},
			Unique:           [][]string{{"key"}},
			InvalidatesGraph: true,
		},
		{
			Kind:    KindRoleFeatures,
			Table:   "role_features",
			Feature: FeatureRolesManage,
			Rules: map[string]any{
				"role_id":    "required,min=1",
				"feature_id": "required,min=1",
			},
			Unique:           [][]string{{"role_id", "feature_id"}},
			InvalidatesGraph: true,
		},
		{
			Kind:    KindRouteFeatures,
			Table:   "route_features",
			Feature: FeatureFeaturesManage,
			Rules: map[string]any{
				"method":     "required,oneof=GET POST PUT PATCH DELETE",
				"pattern":    "required,startswith=/",
				"feature_id": "omitempty,min=1",
				"public":     "omitempty,boolean",
			},
			Unique:           [][]string{{"method", "pattern"}},
			InvalidatesGraph: true,
		},
		{
			Kind:    KindUserRoles,
			Table:   "user_roles",
			Feature: FeatureUsersManage,
			Rules: map[string]any{
				"user_id": "required,min=1",
				"role_id": "required,min=1",
			},
			Unique:           [][]string{{"user_id", "role_id"}},
			InvalidatesGraph: true,
		},
		{
			Kind:    KindPolicies,
			Table:   "policies",
			Feature: FeaturePoliciesManage,
			Rules: map[string]any{
				"name":      "required,min=1,max=120",
				"priority":  "required",
				"effect":    "required,oneof=allow deny",
				"condition": "omitempty",
			},
			Unique:              [][]string{{"name"}},
			InvalidatesPolicies: true,
		},
		{
			// Issue and revoke go through the session manager; through
			// Perform sessions are inspectable but never mutable, and the
			// stored credential stays hidden.
			Kind:     KindSessions,
			Table:    "sessions",
			ReadOnly: true,
			Redact:   []string{"token_hash"},
		},
		{
			// Violations are written by the policy engine; through Perform
			// they are read-only history.
			Kind:     KindPolicyViolations,
			Table:    "policy_violations",
			ReadOnly: true,
		},
		{
			// The audit log is immutable: no mutation path exists here.
			Kind:     KindChangeHistories,
			Table:    "change_histories",
			ReadOnly: true,
		},
	}
}

// hashPassword swaps a plaintext password field for its digest before the
// row reaches validation-independent storage. A user row must end up with a
// digest from either the incoming payload or the stored row being merged.
func hashPassword(hasher Hasher) func(ctx context.Context, row resource.Row) (resource.Row, error) {
	return func(ctx context.Context, row resource.Row) (resource.Row, error) {
		if plaintext, ok := row["password"].(string); ok && plaintext != "" {
			if len(plaintext) < 8 {
				return nil, &shared.ValidationError{Fields: []shared.FieldViolation{
					{Field: "password", Rule: "min", Detail: "password must be at least 8 characters"},
				}}
			}
			digest, err := hasher.Hash(plaintext)
			if err != nil {
				return nil, err
			}
			row = row.Clone()
			delete(row, "password")
			row["password_hash"] = digest
			return row, nil
		}
		delete(row, "password")
		if _, ok := row["password_hash"]; !ok {
			return nil, &shared.ValidationError{Fields: []shared.FieldViolation{
				{Field: "password", Rule: "required"},
			}}
		}
		return row, nil
	}
}

var errUnknownOperation = errors.New("core: unknown operation")
