package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	data GraphData
	err  error
}

func (s *stubSource) LoadGraphData(ctx context.Context) (GraphData, error) {
	return s.data, s.err
}

func baseData() GraphData {
	return GraphData{
		Features: []Feature{
			{ID: 1, Key: "reports.view", CategoryID: 1},
			{ID: 2, Key: "reports.edit", CategoryID: 1},
			{ID: 3, Key: "users.manage", CategoryID: 2},
		},
		RoleFeatures: []RoleFeature{
			{RoleID: 10, FeatureID: 1},
			{RoleID: 10, FeatureID: 2},
			{RoleID: 20, FeatureID: 3},
		},
		UserRoles: []UserRole{
			{UserID: 100, RoleID: 10},
			{UserID: 200, RoleID: 20},
		},
		Routes: []RouteFeature{
			{ID: 1, Method: "GET", Pattern: "/reports", FeatureID: 1},
			{ID: 2, Method: "GET", Pattern: "/reports/{id}", FeatureID: 1},
			{ID: 3, Method: "POST", Pattern: "/reports", FeatureID: 2},
			{ID: 4, Method: "GET", Pattern: "/health", Public: true},
		},
	}
}

func TestBuildSnapshotEffectiveFeatures(t *testing.T) {
	snap, err := BuildSnapshot(baseData())
	require.NoError(t, err)

	require.True(t, snap.HasFeature(100, "reports.view"))
	require.True(t, snap.HasFeature(100, "reports.edit"))
	require.False(t, snap.HasFeature(100, "users.manage"))
	require.True(t, snap.HasFeature(200, "users.manage"))
	require.Empty(t, snap.EffectiveFeatures(999))
}

func TestBuildSnapshotUnionAcrossRoles(t *testing.T) {
	data := baseData()
	data.UserRoles = append(data.UserRoles, UserRole{UserID: 100, RoleID: 20})
	snap, err := BuildSnapshot(data)
	require.NoError(t, err)

	require.True(t, snap.HasFeature(100, "reports.view"))
	require.True(t, snap.HasFeature(100, "users.manage"))
}

func TestBuildSnapshotRejectsAmbiguousRoutes(t *testing.T) {
	data := baseData()
	data.Routes = append(data.Routes,
		RouteFeature{ID: 5, Method: "GET", Pattern: "/a/{id}", FeatureID: 1},
		RouteFeature{ID: 6, Method: "GET", Pattern: "/{x}/b", FeatureID: 1},
	)
	_, err := BuildSnapshot(data)
	require.ErrorContains(t, err, "ambiguous")
}

func TestBuildSnapshotMergesRepeatedPatterns(t *testing.T) {
	data := baseData()
	data.Routes = append(data.Routes, RouteFeature{ID: 7, Method: "GET", Pattern: "/reports", FeatureID: 2})
	snap, err := BuildSnapshot(data)
	require.NoError(t, err)

	route, ok := snap.matchRoute("GET", "/reports")
	require.True(t, ok)
	require.ElementsMatch(t, []string{"reports.view", "reports.edit"}, route.features)
}

func TestGraphRebuildSwapsSnapshot(t *testing.T) {
	source := &stubSource{data: baseData()}
	graph := NewGraph(source, nil)

	require.False(t, graph.Current().HasFeature(100, "reports.view"), "empty until first rebuild")
	require.NoError(t, graph.Rebuild(context.Background()))
	require.True(t, graph.Current().HasFeature(100, "reports.view"))

	// Dropping the user's only role flips the next evaluation after rebuild.
	source.data.UserRoles = nil
	require.NoError(t, graph.Rebuild(context.Background()))
	require.False(t, graph.Current().HasFeature(100, "reports.view"))
}

// trackingSource captures the data before running the hook, so a test can
// commit a mutation while a load is in flight.
type trackingSource struct {
	data   GraphData
	calls  int
	onLoad func()
}

func (s *trackingSource) LoadGraphData(ctx context.Context) (GraphData, error) {
	s.calls++
	data := s.data
	if s.onLoad != nil {
		s.onLoad()
	}
	return data, nil
}

func TestGraphRebuildRepeatsWhenInvalidatedMidLoad(t *testing.T) {
	source := &trackingSource{data: baseData()}
	graph := NewGraph(source, nil)

	bumped := false
	source.onLoad = func() {
		if bumped {
			return
		}
		bumped = true
		// A role revocation commits and bumps the generation after the first
		// load already read its joins.
		source.data.UserRoles = nil
		graph.gen.Add(1)
	}

	require.NoError(t, graph.Rebuild(context.Background()))
	require.Equal(t, 2, source.calls, "the stale load must be repeated")
	require.False(t, graph.Current().HasFeature(100, "reports.view"))
}

func TestGraphRebuildFailureKeepsOldSnapshot(t *testing.T) {
	source := &stubSource{data: baseData()}
	graph := NewGraph(source, nil)
	require.NoError(t, graph.Rebuild(context.Background()))

	source.err = context.DeadlineExceeded
	require.Error(t, graph.Rebuild(context.Background()))
	require.True(t, graph.Current().HasFeature(100, "reports.view"))
}
