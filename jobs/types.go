package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskWarmCatalog = "cache:warm_catalog"

const (
	QueueCache    = "cache"
	warmMaxRetry  = 3
	warmTimeout   = 1 * time.Minute
	warmUniqueTTL = 30 * time.Second
)

// WarmCatalogPayload carries no per-run data, so repeated warms with the
// same reason share a uniqueness key. The run id travels as the task id.
type WarmCatalogPayload struct {
	Reason string `json:"reason"`
}

// NewRunID returns a fresh id for a warm run.
func NewRunID() string {
	return uuid.NewString()
}

func NewWarmCatalogTask(reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(WarmCatalogPayload{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("encode warm payload: %w", err)
	}
	return asynq.NewTask(TaskWarmCatalog, payload), nil
}

// WarmOptions are the enqueue options for a warm task. While one warm with
// the same reason is pending, another enqueue fails with
// asynq.ErrDuplicateTask. An empty runID lets asynq pick the task id.
func WarmOptions(runID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueCache),
		asynq.MaxRetry(warmMaxRetry),
		asynq.Timeout(warmTimeout),
		asynq.Unique(warmUniqueTTL),
	}
	if runID != "" {
		opts = append(opts, asynq.TaskID(runID))
	}
	return opts
}
