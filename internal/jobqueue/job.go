package jobqueue

import (
	"encoding/json"
	"strconv"
)

// Job states. A job is always in exactly one of these.
const (
	StateWaiting   = "waiting"
	StateDelayed   = "delayed"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Priorities. Lower value is serviced first; ties fall back to arrival
// order.
const (
	PriorityHigh   = 1
	PriorityNormal = 10
	PriorityLow    = 20
)

// Job is one unit of work. Data and ReturnValue are opaque JSON owned by
// the handler.
type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	Progress     int             `json:"progress"`
	State        string          `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	ReturnValue  json.RawMessage `json:"return_value,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	ProcessedOn  int64           `json:"processed_on,omitempty"`
	FinishedOn   int64           `json:"finished_on,omitempty"`
}

// UnmarshalData decodes the job payload into v.
func (j *Job) UnmarshalData(v any) error {
	return json.Unmarshal(j.Data, v)
}

// Counts is the per-state population of one queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

func (j *Job) hashFields() map[string]any {
	return map[string]any{
		"id":            j.ID,
		"name":          j.Name,
		"data":          string(j.Data),
		"priority":      j.Priority,
		"progress":      j.Progress,
		"state":         j.State,
		"attempts_made": j.AttemptsMade,
		"max_attempts":  j.MaxAttempts,
		"return_value":  string(j.ReturnValue),
		"failed_reason": j.FailedReason,
		"created_at":    j.CreatedAt,
		"processed_on":  j.ProcessedOn,
		"finished_on":   j.FinishedOn,
	}
}

func jobFromHash(fields map[string]string) *Job {
	job := &Job{
		ID:           fields["id"],
		Name:         fields["name"],
		State:        fields["state"],
		FailedReason: fields["failed_reason"],
		Priority:     atoi(fields["priority"]),
		Progress:     atoi(fields["progress"]),
		AttemptsMade: atoi(fields["attempts_made"]),
		MaxAttempts:  atoi(fields["max_attempts"]),
		CreatedAt:    atoi64(fields["created_at"]),
		ProcessedOn:  atoi64(fields["processed_on"]),
		FinishedOn:   atoi64(fields["finished_on"]),
	}
	if data := fields["data"]; data != "" {
		job.Data = json.RawMessage(data)
	}
	if rv := fields["return_value"]; rv != "" {
		job.ReturnValue = json.RawMessage(rv)
	}
	return job
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
