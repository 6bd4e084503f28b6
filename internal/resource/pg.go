package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/history"
	"github.com/aegis-admin/aegis/internal/platform/db"
	"github.com/aegis-admin/aegis/internal/shared"
)

// PGStore is the PostgreSQL Store. Rows travel as jsonb so one
// implementation serves every entity table.
type PGStore struct {
	pool     *pgxpool.Pool
	recorder *history.Recorder
	clock    shared.Clock
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool, recorder *history.Recorder, clock shared.Clock) *PGStore {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &PGStore{pool: pool, recorder: recorder, clock: clock}
}

// WithTx runs fn inside one transaction; the Tx it receives shares that
// transaction with RecordChange so mutation and audit commit together.
func (s *PGStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, recorder: s.recorder, clock: s.clock})
	})
}

// Get implements Reader against the pool.
func (s *PGStore) Get(ctx context.Context, table string, id int64, includeDeleted bool) (Row, error) {
	return pgGet(ctx, s.pool, table, id, includeDeleted)
}

// List implements Reader against the pool.
func (s *PGStore) List(ctx context.Context, table string, q Query) ([]Row, int, error) {
	return pgList(ctx, s.pool, table, q)
}

// Exists implements Reader against the pool.
func (s *PGStore) Exists(ctx context.Context, table string, fields map[string]any, excludeID int64) (bool, error) {
	return pgExists(ctx, s.pool, table, fields, excludeID)
}

type pgTx struct {
	tx       pgx.Tx
	recorder *history.Recorder
	clock    shared.Clock
}

func (t *pgTx) Get(ctx context.Context, table string, id int64, includeDeleted bool) (Row, error) {
	return pgGet(ctx, t.tx, table, id, includeDeleted)
}

func (t *pgTx) List(ctx context.Context, table string, q Query) ([]Row, int, error) {
	return pgList(ctx, t.tx, table, q)
}

func (t *pgTx) Exists(ctx context.Context, table string, fields map[string]any, excludeID int64) (bool, error) {
	return pgExists(ctx, t.tx, table, fields, excludeID)
}

func (t *pgTx) Insert(ctx context.Context, table string, row Row) (Row, error) {
	cols := sortedColumns(row)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	query := fmt.Sprintf(`INSERT INTO %s AS t (%s) VALUES (%s) RETURNING to_jsonb(t.*)`,
		ident(table), identList(cols), strings.Join(placeholders, ", "))

	out, err := scanJSONRow(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translateWriteError(table, row, err)
	}
	return out, nil
}

func (t *pgTx) Update(ctx context.Context, table string, id int64, row Row) (Row, error) {
	cols := sortedColumns(row)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", ident(col), i+1)
		args = append(args, row[col])
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s AS t SET %s WHERE id = $%d RETURNING to_jsonb(t.*)`,
		ident(table), strings.Join(sets, ", "), len(args))

	out, err := scanJSONRow(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translateWriteError(table, row, err)
	}
	return out, nil
}

func (t *pgTx) Delete(ctx context.Context, table string, id int64) error {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(table)), id)
	if err != nil {
		return storageError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (t *pgTx) SoftDelete(ctx context.Context, table string, id int64) (Row, error) {
	query := fmt.Sprintf(`UPDATE %s AS t SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL RETURNING to_jsonb(t.*)`,
		ident(table))
	out, err := scanJSONRow(t.tx.QueryRow(ctx, query, id, t.clock.Now()))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) Restore(ctx context.Context, table string, id int64) (Row, error) {
	query := fmt.Sprintf(`UPDATE %s AS t SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL RETURNING to_jsonb(t.*)`,
		ident(table))
	out, err := scanJSONRow(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) RecordChange(ctx context.Context, change history.Change) error {
	return t.recorder.Record(ctx, t.tx, change)
}

// querier is the read surface shared by pool and tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgGet(ctx context.Context, q querier, table string, id int64, includeDeleted bool) (Row, error) {
	query := fmt.Sprintf(`SELECT to_jsonb(t.*) FROM %s t WHERE id = $1`, ident(table))
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanJSONRow(q.QueryRow(ctx, query, id))
}

func pgList(ctx context.Context, q querier, table string, query Query) ([]Row, int, error) {
	where, args := buildWhere(query)

	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s t %s`, ident(table), where)
	if err := q.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, storageError(err)
	}

	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = "id"
	}
	direction := "ASC"
	if query.SortDesc {
		direction = "DESC"
	}
	perPage := query.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}

	listSQL := fmt.Sprintf(`SELECT to_jsonb(t.*) FROM %s t %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		ident(table), where, ident(sortBy), direction, perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, storageError(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, storageError(err)
		}
		var row Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, 0, fmt.Errorf("resource: decode row: %w", err)
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

func pgExists(ctx context.Context, q querier, table string, fields map[string]any, excludeID int64) (bool, error) {
	cols := sortedColumns(fields)
	conds := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, fields[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(col), len(args)))
	}
	if excludeID != 0 {
		args = append(args, excludeID)
		conds = append(conds, fmt.Sprintf("id <> $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s)`, ident(table), strings.Join(conds, " AND "))

	var exists bool
	if err := q.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, storageError(err)
	}
	return exists, nil
}

func buildWhere(query Query) (string, []any) {
	conds := make([]string, 0, len(query.Filters)+1)
	args := make([]any, 0, len(query.Filters))
	for _, col := range sortedColumns(query.Filters) {
		args = append(args, query.Filters[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(col), len(args)))
	}
	if !query.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanJSONRow(row pgx.Row) (Row, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRowNotFound
		}
		return nil, err
	}
	var out Row
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("resource: decode row: %w", err)
	}
	return out, nil
}

// translateWriteError surfaces unique violations as the authoritative
// ConflictError; everything else becomes a StorageError.
func translateWriteError(table string, row Row, err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		field := fieldFromConstraint(table, constraint)
		return &shared.ConflictError{Field: field, Value: row[field]}
	}
	return storageError(err)
}

// fieldFromConstraint maps the uq_<table>_<field...> naming convention back
// to the offending field.
func fieldFromConstraint(table, constraint string) string {
	prefix := "uq_" + table + "_"
	if strings.HasPrefix(constraint, prefix) {
		return strings.TrimPrefix(constraint, prefix)
	}
	return constraint
}

func storageError(err error) error {
	return &shared.StorageError{Transient: db.Transient(err), Err: err}
}

func sortedColumns(m map[string]any) []string {
	cols := make([]string, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = ident(col)
	}
	return strings.Join(quoted, ", ")
}
