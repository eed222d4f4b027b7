package domain

import "time"

// JobStatus is the lifecycle state of a migration request
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCanceling JobStatus = "canceling"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusDone      JobStatus = "done"
	JobStatusError     JobStatus = "error"
)

// Active reports whether the runner should still process items of the job
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Canceled reports whether the user asked to stop the job
func (s JobStatus) Canceled() bool {
	return s == JobStatusCanceling || s == JobStatusCanceled
}

// Terminal reports whether the job can no longer change state
func (s JobStatus) Terminal() bool {
	return s == JobStatusCanceled || s == JobStatusDone || s == JobStatusError
}

// Job tracks the progress of one migration request
type Job struct {
	RequestID    string    `db:"request_id" json:"request_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Source       Source    `db:"source" json:"source"`
	Total        int       `db:"total" json:"total"`
	Processed    int       `db:"processed" json:"processed"`
	SuccessCount int       `db:"success_count" json:"success_count"`
	ErrorCount   int       `db:"error_count" json:"error_count"`
	Status       JobStatus `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Complete reports whether every item of the job has an outcome
func (j *Job) Complete() bool {
	return j.Total > 0 && j.Processed >= j.Total
}

// JobDelta is an atomic counter adjustment applied to a job
type JobDelta struct {
	Processed int
	Success   int
	Error     int
}

// IsZero reports whether the delta changes nothing
func (d JobDelta) IsZero() bool {
	return d.Processed == 0 && d.Success == 0 && d.Error == 0
}

// LogLevel is the severity of a log entry
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is an append-only progress event of a request
type LogEntry struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	RequestID string    `db:"request_id" json:"request_id"`
	Level     LogLevel  `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Destination holds a tenant's destination store credentials
type Destination struct {
	UserID         string    `db:"user_id" json:"user_id"`
	StoreURL       string    `db:"store_url" json:"store_url"`
	ConsumerKey    string    `db:"consumer_key" json:"consumer_key"`
	ConsumerSecret string    `db:"consumer_secret" json:"-"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Configured reports whether the destination can be called
func (d *Destination) Configured() bool {
	return d != nil && d.StoreURL != "" && d.ConsumerKey != "" && d.ConsumerSecret != ""
}
