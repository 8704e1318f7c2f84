package domain

// Result is the progress record of a job. It is owned by a single job and
// carried across resumed attempts of that job.
type Result struct {
	JobID    string   `json:"job_id"`
	TaskID   string   `json:"task_id"`
	Backend  string   `json:"backend"`
	LastUUID string   `json:"last_uuid,omitempty"`
	MaxDate  *float64 `json:"max_date,omitempty"`
	NItems   int      `json:"nitems"`
	Offset   *int64   `json:"offset,omitempty"`
	NResumed int      `json:"nresumed"`
}

// NewResult creates an empty record for the given job identity.
func NewResult(jobID, taskID, backend string) *Result {
	return &Result{JobID: jobID, TaskID: taskID, Backend: backend}
}

// Track records an item that was just pushed to the output queue.
func (r *Result) Track(item Item) {
	r.NItems++
	r.LastUUID = item.UUID()

	if ts, ok := item.UpdatedOn(); ok && (r.MaxDate == nil || *r.MaxDate < ts) {
		r.MaxDate = &ts
	}
	if off, ok := item.Offset(); ok {
		r.Offset = &off
	}
}
