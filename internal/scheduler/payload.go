package scheduler

import (
	"time"

	"pawdesk/internal/types"
)

// TaskPayload is the JSON payload sent by EventBridge (or the ops service) to
// the lifecycle-runner Lambda. It identifies the task to execute and
// optionally overrides the reference time for manual invocation and
// backfilling.
//
//	{
//	  "task": "trial_check",
//	  "reference_time": "2026-09-01T06:00:00Z"  // optional
//	}
type TaskPayload struct {
	Task types.TaskType `json:"task"`
	// ReferenceTime allows manual invocation to pin "now" for deterministic
	// execution. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
