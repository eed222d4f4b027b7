package domain

import "time"

// ResultStatus is the outcome of an item
type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Action is what the processor did on the destination
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Result is the ledger row of one item of a request
type Result struct {
	RequestID     string       `db:"request_id" json:"request_id"`
	ItemKey       string       `db:"item_key" json:"item_key"`
	UserID        string       `db:"user_id" json:"user_id"`
	Source        Source       `db:"source" json:"source"`
	Status        ResultStatus `db:"status" json:"status"`
	DestinationID int64        `db:"destination_id" json:"destination_id,omitempty"`
	Name          string       `db:"name" json:"name,omitempty"`
	Action        Action       `db:"action" json:"action,omitempty"`
	Reason        Reason       `db:"reason" json:"reason,omitempty"`
	Message       string       `db:"message" json:"message,omitempty"`
	ClaimedBy     string       `db:"claimed_by" json:"-"`
	LeaseUntil    *time.Time   `db:"lease_until" json:"-"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Claim asks the ledger for exclusive ownership of an item
type Claim struct {
	RequestID  string
	ItemKey    string
	UserID     string
	Source     Source
	Owner      string
	LeaseUntil time.Time
}

// ResultCounts aggregates ledger rows of a request
type ResultCounts struct {
	Success int `db:"success" json:"success"`
	Error   int `db:"error" json:"error"`
	Pending int `db:"pending" json:"pending"`
}

// CounterDelta returns the job counter change caused by moving a ledger row
// from prev to next.
func CounterDelta(prev, next ResultStatus) JobDelta {
	switch {
	case prev == next, prev == ResultSuccess:
		return JobDelta{}
	case next == ResultSuccess && prev == ResultError:
		return JobDelta{Success: 1, Error: -1}
	case next == ResultSuccess:
		return JobDelta{Processed: 1, Success: 1}
	case next == ResultError && prev != ResultError:
		return JobDelta{Processed: 1, Error: 1}
	default:
		return JobDelta{}
	}
}

// CacheEntry memoizes the normalized product of a source URL
type CacheEntry struct {
	SourceURL   string    `db:"source_url"`
	ContentHash string    `db:"content_hash"`
	Payload     []byte    `db:"payload"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Fresh reports whether the entry is younger than ttl at now
func (c *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return c != nil && now.Sub(c.UpdatedAt) < ttl
}
