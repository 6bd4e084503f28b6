package resource

import "context"

// Row is the generic JSON-shaped record every entity shares.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID extracts the row's numeric id, tolerating the types a JSON decode or a
// driver scan can produce.
func (r Row) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// EntityConfig declares how the engine treats one entity kind. Every entity
// managed here gets an explicit config; nothing is inferred from code paths.
type EntityConfig struct {
	// Kind is the external name used in Perform calls.
	Kind string
	// Table is the storage table.
	Table string
	// SoftDelete marks rows with deleted_at instead of removing them.
	SoftDelete bool
	// Feature is the key an actor must hold to mutate this entity.
	Feature string
	// Rules are validator ValidateMap rules keyed by field name. Only fields
	// named here are accepted from payloads.
	Rules map[string]any
	// Unique lists field tuples pre-checked for friendly conflicts. The
	// storage constraint remains the authority.
	Unique [][]string
	// ReadOnly rejects every mutation through the engine.
	ReadOnly bool
	// AppendOnly allows create but rejects update and delete.
	AppendOnly bool
	// InvalidatesGraph marks mutations that must rebuild the RBAC snapshot.
	InvalidatesGraph bool
	// InvalidatesPolicies marks mutations that must reload the policy set.
	InvalidatesPolicies bool
	// BeforeWrite adjusts the row before validation and persistence, e.g.
	// turning a plaintext password into its hash.
	BeforeWrite func(ctx context.Context, row Row) (Row, error)
	// Redact lists fields stripped from rows returned to callers. History
	// snapshots keep them so old/new values stay exact.
	Redact []string
}

// allowedFields filters the payload down to configured fields, dropping
// anything the entity does not declare.
func (c EntityConfig) allowedFields(input Row) Row {
	out := make(Row, len(input))
	for field := range c.Rules {
		if v, ok := input[field]; ok {
			out[field] = v
		}
	}
	return out
}

func (c EntityConfig) redacted(row Row) Row {
	if len(c.Redact) == 0 || row == nil {
		return row
	}
	out := row.Clone()
	for _, field := range c.Redact {
		delete(out, field)
	}
	return out
}
