package resource

import (
	"context"
	"errors"

	"github.com/aegis-admin/aegis/internal/history"
)

// ErrRowNotFound is the store-level miss translated by the engine into a
// typed NotFoundError.
var ErrRowNotFound = errors.New("resource: row not found")

// ErrUnknownKind reports a kind no entity config is registered for.
var ErrUnknownKind = errors.New("resource: unknown entity kind")

// ErrMutationNotAllowed reports a mutation on a read-only or append-only
// entity, or a restore on an entity without soft delete.
var ErrMutationNotAllowed = errors.New("resource: mutation not allowed")

// Query shapes a List call.
type Query struct {
	Filters        map[string]any
	SortBy         string
	SortDesc       bool
	Page           int
	PerPage        int
	IncludeDeleted bool
}

// Reader serves the read-only operations.
type Reader interface {
	// Get fetches one row by id. Soft-deleted rows are misses unless
	// includeDeleted is set.
	Get(ctx context.Context, table string, id int64, includeDeleted bool) (Row, error)
	// List returns a page of rows plus the total count for the query.
	List(ctx context.Context, table string, q Query) ([]Row, int, error)
	// Exists reports whether a row with the given field values exists,
	// ignoring the row with excludeID (zero means exclude nothing).
	Exists(ctx context.Context, table string, fields map[string]any, excludeID int64) (bool, error)
}

// Tx is the mutation surface inside one transaction. RecordChange rides the
// same transaction as the mutation so both commit or fail together.
type Tx interface {
	Reader
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, id int64, row Row) (Row, error)
	Delete(ctx context.Context, table string, id int64) error
	SoftDelete(ctx context.Context, table string, id int64) (Row, error)
	Restore(ctx context.Context, table string, id int64) (Row, error)
	RecordChange(ctx context.Context, change history.Change) error
}

// Store is the transactional storage collaborator.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
