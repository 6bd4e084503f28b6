package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aegis-admin/aegis/internal/shared"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool. The recorder is always
// handed the transaction of the mutation it documents so both commit or fail
// together.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder appends change_histories rows.
type Recorder struct {
	clock shared.Clock
}

// NewRecorder constructs a Recorder.
func NewRecorder(clock shared.Clock) *Recorder {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Recorder{clock: clock}
}

// Record inserts one audit row on the supplied transaction. An error here
// must abort the caller's transaction: a mutation without its audit row is
// never allowed to commit.
func (r *Recorder) Record(ctx context.Context, tx Execer, change Change) error {
	switch change.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("history: unknown action %q", change.Action)
	}
	if change.TableName == "" || change.RecordID == 0 {
		return errors.New("history: table name and record id required")
	}

	oldJSON, err := marshalValues(change.OldValues)
	if err != nil {
		return fmt.Errorf("history: marshal old values: %w", err)
	}
	newJSON, err := marshalValues(change.NewValues)
	if err != nil {
		return fmt.Errorf("history: marshal new values: %w", err)
	}

	at := change.CreatedAt
	if at.IsZero() {
		at = r.clock.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO change_histories (actor_user_id, table_name, record_id, action, old_values, new_values, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		change.ActorUserID, change.TableName, change.RecordID, change.Action, oldJSON, newJSON, change.Reason, at)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

func marshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}
