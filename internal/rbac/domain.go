package rbac

import "time"

// Role represents a high-level grouping of granted features.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeatureCategory groups features for administration.
type FeatureCategory struct {
	ID   int64
	Name string
}

// Feature is the smallest grantable capability.
type Feature struct {
	ID         int64
	Key        string
	CategoryID int64
}

// RoleFeature is a grant edge tying a feature to a role.
type RoleFeature struct {
	RoleID    int64
	FeatureID int64
}

// UserRole links a user to a role.
type UserRole struct {
	UserID int64
	RoleID int64
}

// RouteFeature gates a method+path pattern behind one or more features.
// Pattern segments wrapped in braces match any single path segment. A route
// marked Public requires no feature at all.
type RouteFeature struct {
	ID        int64
	Method    string
	Pattern   string
	FeatureID int64
	Public    bool
}

// Decision is the outcome of resolving (user, method, path) against the
// graph snapshot. It is a value; acting on it is the caller's job.
type Decision struct {
	Allowed          bool
	Public           bool
	RouteMatched     bool
	RequiredFeatures []string
	MatchedFeatures  []string
}
