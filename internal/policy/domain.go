package policy

import "time"

// Effects a policy can produce.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Condition is the structured matcher a policy carries. An empty field
// matches anything, so the zero Condition matches every request.
type Condition struct {
	Resource string  `json:"resource,omitempty"`
	Action   string  `json:"action,omitempty"`
	UserIDs  []int64 `json:"user_ids,omitempty"`
}

// Matches reports whether the condition applies to the request.
func (c Condition) Matches(userID int64, resource, action string) bool {
	if c.Resource != "" && c.Resource != resource {
		return false
	}
	if c.Action != "" && c.Action != action {
		return false
	}
	if len(c.UserIDs) > 0 {
		for _, id := range c.UserIDs {
			if id == userID {
				return true
			}
		}
		return false
	}
	return true
}

// Policy is one ordered allow/deny rule.
type Policy struct {
	ID        int64
	Name      string
	Priority  int
	Effect    string
	Condition Condition
}

// Violation records a denied attempt. Rows are append-only.
type Violation struct {
	ID         int64
	UserID     int64
	PolicyID   *int64
	Resource   string
	Action     string
	OccurredAt time.Time
}

// Outcome is the result of an evaluation.
type Outcome struct {
	Allowed bool
	// PolicyID is the matched policy, zero when the default deny applied.
	PolicyID int64
}
