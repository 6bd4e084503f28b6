package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, data GraphData) (*Resolver, *stubSource, *Graph) {
	t.Helper()
	source := &stubSource{data: data}
	graph := NewGraph(source, nil)
	require.NoError(t, graph.Rebuild(context.Background()))
	return NewResolver(graph), source, graph
}

func TestResolveAllowsIntersection(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())

	decision := resolver.Resolve(100, "GET", "/reports")
	require.True(t, decision.Allowed)
	require.True(t, decision.RouteMatched)
	require.Equal(t, []string{"reports.view"}, decision.MatchedFeatures)
}

func TestResolveDeniesWithoutFeature(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())

	decision := resolver.Resolve(200, "GET", "/reports")
	require.False(t, decision.Allowed)
	require.True(t, decision.RouteMatched)
	require.Empty(t, decision.MatchedFeatures)
}

func TestResolveUnmatchedRouteIsDenied(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())

	decision := resolver.Resolve(100, "GET", "/secrets")
	require.False(t, decision.Allowed)
	require.False(t, decision.RouteMatched)
}

func TestResolvePublicRoute(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())

	decision := resolver.Resolve(0, "GET", "/health")
	require.True(t, decision.Allowed)
	require.True(t, decision.Public)
}

func TestResolveMostSpecificPatternWins(t *testing.T) {
	data := baseData()
	// Literal /reports/summary requires users.manage; /reports/{id} requires
	// reports.view. User 100 only has the latter.
	data.Routes = append(data.Routes, RouteFeature{ID: 8, Method: "GET", Pattern: "/reports/summary", FeatureID: 3})
	resolver, _, _ := newTestResolver(t, data)

	require.False(t, resolver.Resolve(100, "GET", "/reports/summary").Allowed)
	require.True(t, resolver.Resolve(200, "GET", "/reports/summary").Allowed)
	require.True(t, resolver.Resolve(100, "GET", "/reports/42").Allowed)
}

func TestResolvePlaceholderMatchesSingleSegmentOnly(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())

	require.True(t, resolver.Resolve(100, "GET", "/reports/42").RouteMatched)
	require.False(t, resolver.Resolve(100, "GET", "/reports/42/lines").RouteMatched)
}

func TestResolveReflectsRebuild(t *testing.T) {
	resolver, source, graph := newTestResolver(t, baseData())
	require.True(t, resolver.Resolve(100, "GET", "/reports").Allowed)

	source.data.UserRoles = []UserRole{{UserID: 200, RoleID: 20}}
	require.NoError(t, graph.Rebuild(context.Background()))
	require.False(t, resolver.Resolve(100, "GET", "/reports").Allowed)
}

func TestHasFeatureEmptyKeyAlwaysTrue(t *testing.T) {
	resolver, _, _ := newTestResolver(t, baseData())
	require.True(t, resolver.HasFeature(999, ""))
	require.False(t, resolver.HasFeature(999, "reports.view"))
}
