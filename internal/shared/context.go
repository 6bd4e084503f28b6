package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor stores the authenticated user ID on the context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFromContext retrieves the authenticated user ID, if any.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorKey).(int64)
	return id, ok
}
