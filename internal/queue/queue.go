// Package queue provides durable work queues with visibility timeout
// semantics. A read message stays invisible to other readers until its
// visibility timeout elapses; it is then either deleted, re-armed or archived.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// Message is a queue message as returned by Read
type Message struct {
	ID         int64           `db:"msg_id"`
	ReadCount  int             `db:"read_ct"`
	EnqueuedAt time.Time       `db:"enqueued_at"`
	VisibleAt  time.Time       `db:"vt"`
	Payload    json.RawMessage `db:"message"`
}

// Decode unmarshals the payload into an item message
func (m *Message) Decode() (domain.ItemMessage, error) {
	var item domain.ItemMessage
	if err := json.Unmarshal(m.Payload, &item); err != nil {
		return item, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return item, nil
}

// Size describes the backlog of one queue
type Size struct {
	Ready    int64 `db:"ready" json:"ready"`
	InFlight int64 `db:"in_flight" json:"in_flight"`
	Total    int64 `db:"total" json:"total"`
	Archived int64 `db:"archived" json:"archived"`
}

// Queue is a durable message queue with visibility timeouts
type Queue interface {
	SendBatch(ctx context.Context, queue string, payloads []domain.ItemMessage) ([]int64, error)
	Read(ctx context.Context, queue string, vt time.Duration, limit int) ([]Message, error)
	Delete(ctx context.Context, queue string, id int64) (bool, error)
	SetVisibilityTimeout(ctx context.Context, queue string, id int64, vt time.Duration) error
	Archive(ctx context.Context, queue string, id int64) (bool, error)
	Size(ctx context.Context, queue string) (Size, error)
	PurgeRequest(ctx context.Context, queue string, requestID string) (int64, error)
}

// PurgeSource removes every message of a request from all lanes of a source
func PurgeSource(ctx context.Context, q Queue, src domain.Source, requestID string) (int64, error) {
	var total int64
	for _, name := range domain.Lanes(src) {
		n, err := q.PurgeRequest(ctx, name, requestID)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", name, err)
		}
		total += n
	}
	return total, nil
}
