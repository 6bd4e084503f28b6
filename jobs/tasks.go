package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionReap purges expired and revoked sessions past retention.
	TaskSessionReap = "session:reap"
	// TaskViolationTrim bounds the policy violation log to its retention.
	TaskViolationTrim = "policy:trim_violations"
	// TaskAuthzWarmup rebuilds the route graph and reloads the policy set.
	TaskAuthzWarmup = "authz:warmup"
)

// RetentionPayload parameterizes the retention-driven maintenance tasks.
type RetentionPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSessionReapTask constructs a session reap task.
func NewSessionReapTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionReap, data), nil
}

// NewViolationTrimTask constructs a violation trim task.
func NewViolationTrimTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskViolationTrim, data), nil
}

// NewAuthzWarmupTask constructs a warmup task. It carries no payload; the
// worker rebuilds from storage.
func NewAuthzWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAuthzWarmup, nil)
}
