package resource

import (
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/aegis-admin/aegis/internal/shared"
)

// validateRow checks the row against the entity's rule map and reports every
// violated field at once, not just the first. Violations the BeforeWrite hook
// already raised are merged in, one entry per field.
func (e *Engine) validateRow(cfg EntityConfig, row Row, hookViolations ...shared.FieldViolation) error {
	seen := make(map[string]struct{}, len(hookViolations))
	violations := make([]shared.FieldViolation, 0, len(hookViolations))
	for _, v := range hookViolations {
		if _, dup := seen[v.Field]; dup {
			continue
		}
		seen[v.Field] = struct{}{}
		violations = append(violations, v)
	}

	if len(cfg.Rules) > 0 {
		for field, result := range e.validate.ValidateMap(row, cfg.Rules) {
			if _, dup := seen[field]; dup {
				continue
			}
			seen[field] = struct{}{}
			violation := shared.FieldViolation{Field: field, Rule: "invalid"}
			if errs, ok := result.(validator.ValidationErrors); ok && len(errs) > 0 {
				violation.Rule = errs[0].Tag()
				violation.Detail = errs[0].Error()
			} else if err, ok := result.(error); ok {
				violation.Detail = err.Error()
			}
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return nil
	}
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return &shared.ValidationError{Fields: violations}
}
