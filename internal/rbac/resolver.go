package rbac

import "sort"

// Resolver answers (user, method, path) questions against the current graph
// snapshot. Resolution is read-only and never touches storage.
type Resolver struct {
	graph *Graph
}

// NewResolver constructs a Resolver.
func NewResolver(graph *Graph) *Resolver {
	return &Resolver{graph: graph}
}

// Resolve matches the request against the gated routes. The most specific
// matching pattern (fewest placeholder segments) wins. Access is granted if
// the user's effective feature set intersects the route's required set; any
// one shared feature suffices. An unmatched route is denied.
func (r *Resolver) Resolve(userID int64, method, path string) Decision {
	snap := r.graph.Current()

	route, ok := snap.matchRoute(method, path)
	if !ok {
		return Decision{}
	}
	if route.public {
		return Decision{Allowed: true, Public: true, RouteMatched: true}
	}

	decision := Decision{
		RouteMatched:     true,
		RequiredFeatures: append([]string(nil), route.features...),
	}

	effective := snap.EffectiveFeatures(userID)
	for _, required := range route.features {
		if _, ok := effective[required]; ok {
			decision.MatchedFeatures = append(decision.MatchedFeatures, required)
		}
	}
	sort.Strings(decision.MatchedFeatures)
	decision.Allowed = len(decision.MatchedFeatures) > 0
	return decision
}

// HasFeature reports whether the user currently holds the feature key. Used
// to gate entity mutations that are not tied to a route.
func (r *Resolver) HasFeature(userID int64, key string) bool {
	if key == "" {
		return true
	}
	return r.graph.Current().HasFeature(userID, key)
}
