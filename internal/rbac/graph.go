package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Source loads the raw grant and gate edges a snapshot is built from.
type Source interface {
	LoadGraphData(ctx context.Context) (GraphData, error)
}

// GraphData is everything needed to build one snapshot.
type GraphData struct {
	Features     []Feature
	RoleFeatures []RoleFeature
	UserRoles    []UserRole
	Routes       []RouteFeature
}

// Graph holds the current read-mostly snapshot. Snapshots are immutable;
// rebuilds produce a fresh one and swap the pointer, so concurrent readers
// never observe a partially updated graph and never block on a rebuild.
type Graph struct {
	source Source
	logger *slog.Logger
	snap   atomic.Pointer[Snapshot]
	group  singleflight.Group
	gen    atomic.Int64
}

// NewGraph constructs an empty Graph. Call Rebuild before serving.
func NewGraph(source Source, logger *slog.Logger) *Graph {
	g := &Graph{source: source, logger: logger}
	g.snap.Store(emptySnapshot())
	return g
}

// Current returns the active snapshot.
func (g *Graph) Current() *Snapshot {
	return g.snap.Load()
}

// Rebuild loads fresh edges and swaps in a new snapshot. Concurrent calls
// coalesce into a single load. An invalidation arriving while the load is in
// flight repeats the load, so a mutation committed mid-rebuild cannot be
// missed by the snapshot that ends up active.
func (g *Graph) Rebuild(ctx context.Context) error {
	_, err, _ := g.group.Do("rebuild", func() (any, error) {
		for {
			gen := g.gen.Load()
			data, err := g.source.LoadGraphData(ctx)
			if err != nil {
				return nil, fmt.Errorf("rbac: load graph data: %w", err)
			}
			snap, err := BuildSnapshot(data)
			if err != nil {
				return nil, err
			}
			g.snap.Store(snap)
			if g.gen.Load() == gen {
				return nil, nil
			}
		}
	})
	return err
}

// Invalidate schedules a rebuild off the hot path. The stale snapshot keeps
// serving reads until the replacement is ready; a failed rebuild is logged
// and leaves the previous snapshot in place.
func (g *Graph) Invalidate() {
	g.gen.Add(1)
	go func() {
		if err := g.Rebuild(context.Background()); err != nil && g.logger != nil {
			g.logger.Error("rbac graph rebuild", slog.Any("error", err))
		}
	}()
}

// Snapshot is an immutable view of user→features and route→features.
type Snapshot struct {
	userFeatures map[int64]map[string]struct{}
	routes       []compiledRoute
}

type compiledRoute struct {
	method       string
	segments     []string // "{" marks a placeholder segment
	placeholders int
	public       bool
	features     []string
}

func emptySnapshot() *Snapshot {
	return &Snapshot{userFeatures: map[int64]map[string]struct{}{}}
}

// BuildSnapshot compiles raw edges into an immutable snapshot. Ambiguous
// route patterns (same method, overlapping shape, equal placeholder count)
// are a configuration error and fail the build.
func BuildSnapshot(data GraphData) (*Snapshot, error) {
	featureKeys := make(map[int64]string, len(data.Features))
	for _, f := range data.Features {
		featureKeys[f.ID] = f.Key
	}

	roleFeatures := make(map[int64][]string)
	for _, rf := range data.RoleFeatures {
		key, ok := featureKeys[rf.FeatureID]
		if !ok {
			continue
		}
		roleFeatures[rf.RoleID] = append(roleFeatures[rf.RoleID], key)
	}

	userFeatures := make(map[int64]map[string]struct{})
	for _, ur := range data.UserRoles {
		set, ok := userFeatures[ur.UserID]
		if !ok {
			set = make(map[string]struct{})
			userFeatures[ur.UserID] = set
		}
		for _, key := range roleFeatures[ur.RoleID] {
			set[key] = struct{}{}
		}
	}

	routes, err := compileRoutes(data.Routes, featureKeys)
	if err != nil {
		return nil, err
	}

	return &Snapshot{userFeatures: userFeatures, routes: routes}, nil
}

func compileRoutes(raw []RouteFeature, featureKeys map[int64]string) ([]compiledRoute, error) {
	// Multiple RouteFeature rows for the same method+pattern accumulate into
	// one entry with an ANY-of feature set.
	index := make(map[string]int)
	var routes []compiledRoute
	for _, rf := range raw {
		method := strings.ToUpper(strings.TrimSpace(rf.Method))
		pattern := strings.TrimSpace(rf.Pattern)
		if method == "" || pattern == "" {
			return nil, fmt.Errorf("rbac: route %d has empty method or pattern", rf.ID)
		}
		key := method + " " + pattern
		i, ok := index[key]
		if !ok {
			segments, placeholders := compilePattern(pattern)
			routes = append(routes, compiledRoute{
				method:       method,
				segments:     segments,
				placeholders: placeholders,
				public:       rf.Public,
			})
			i = len(routes) - 1
			index[key] = i
		}
		if rf.Public {
			routes[i].public = true
		}
		if fk, ok := featureKeys[rf.FeatureID]; ok && fk != "" {
			routes[i].features = append(routes[i].features, fk)
		}
	}

	if err := detectAmbiguity(routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func compilePattern(pattern string) ([]string, int) {
	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	segments := make([]string, len(parts))
	placeholders := 0
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			segments[i] = "{"
			placeholders++
			continue
		}
		segments[i] = part
	}
	return segments, placeholders
}

// detectAmbiguity rejects pairs of same-method patterns that can match a
// common path with the same placeholder count, since specificity could not
// break the tie at resolve time.
func detectAmbiguity(routes []compiledRoute) error {
	sorted := make([]compiledRoute, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].method != sorted[j].method {
			return sorted[i].method < sorted[j].method
		}
		return len(sorted[i].segments) < len(sorted[j].segments)
	})
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if a.method != b.method || len(a.segments) != len(b.segments) {
				continue
			}
			if a.placeholders != b.placeholders {
				continue
			}
			if overlap(a.segments, b.segments) {
				return fmt.Errorf("rbac: ambiguous route patterns %s %s and %s %s",
					a.method, joinSegments(a.segments), b.method, joinSegments(b.segments))
			}
		}
	}
	return nil
}

// overlap reports whether two same-length patterns can match a common path:
// at every position where both are literals the literals must agree.
// Byte-identical patterns were merged into one entry before this runs.
func overlap(a, b []string) bool {
	for i := range a {
		if a[i] == "{" || b[i] == "{" {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinSegments(segments []string) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		if s == "{" {
			parts[i] = "{*}"
			continue
		}
		parts[i] = s
	}
	return "/" + strings.Join(parts, "/")
}

// EffectiveFeatures returns the union of feature keys granted to the user
// through all assigned roles.
func (s *Snapshot) EffectiveFeatures(userID int64) map[string]struct{} {
	return s.userFeatures[userID]
}

// HasFeature reports whether the user's effective set contains the key.
func (s *Snapshot) HasFeature(userID int64, key string) bool {
	_, ok := s.userFeatures[userID][key]
	return ok
}

// matchRoute returns the most specific compiled route matching method+path.
func (s *Snapshot) matchRoute(method, path string) (compiledRoute, bool) {
	method = strings.ToUpper(method)
	parts := strings.Split(strings.Trim(path, "/"), "/")

	best := compiledRoute{placeholders: -1}
	found := false
	for _, route := range s.routes {
		if route.method != method || len(route.segments) != len(parts) {
			continue
		}
		if !segmentsMatch(route.segments, parts) {
			continue
		}
		if !found || route.placeholders < best.placeholders {
			best = route
			found = true
		}
	}
	return best, found
}

func segmentsMatch(segments, parts []string) bool {
	for i, seg := range segments {
		if seg == "{" {
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}
