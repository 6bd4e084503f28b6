package history

import "time"

// Actions recorded in the change log.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Change is one immutable audit row pairing a mutation with its before and
// after snapshots. Rows are inserted once and never updated or deleted.
type Change struct {
	ID          int64
	ActorUserID *int64
	TableName   string
	RecordID    int64
	Action      string
	OldValues   map[string]any
	NewValues   map[string]any
	Reason      string
	CreatedAt   time.Time
}
