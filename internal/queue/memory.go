package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// Memory is an in-process Queue used by the memory driver and tests.
// Now can be replaced to move the visibility clock.
type Memory struct {
	Now func() time.Time

	mu       sync.Mutex
	nextID   int64
	queues   map[string]map[int64]*Message
	archived map[string][]Message
}

// NewMemory creates an empty in-memory queue
func NewMemory() *Memory {
	return &Memory{
		Now:      time.Now,
		queues:   make(map[string]map[int64]*Message),
		archived: make(map[string][]Message),
	}
}

func (m *Memory) SendBatch(_ context.Context, queue string, payloads []domain.ItemMessage) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[queue]
	if q == nil {
		q = make(map[int64]*Message)
		m.queues[queue] = q
	}

	now := m.Now()
	ids := make([]int64, 0, len(payloads))
	for _, payload := range payloads {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message: %w", err)
		}
		m.nextID++
		q[m.nextID] = &Message{ID: m.nextID, EnqueuedAt: now, VisibleAt: now, Payload: body}
		ids = append(ids, m.nextID)
	}
	return ids, nil
}

func (m *Memory) Read(_ context.Context, queue string, vt time.Duration, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	var out []Message
	for _, id := range m.sortedIDs(queue) {
		if len(out) >= limit {
			break
		}
		msg := m.queues[queue][id]
		if msg.VisibleAt.After(now) {
			continue
		}
		msg.ReadCount++
		msg.VisibleAt = now.Add(vt)
		out = append(out, *msg)
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, queue string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[queue][id]; !ok {
		return false, nil
	}
	delete(m.queues[queue], id)
	return true, nil
}

func (m *Memory) SetVisibilityTimeout(_ context.Context, queue string, id int64, vt time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg, ok := m.queues[queue][id]; ok {
		msg.VisibleAt = m.Now().Add(vt)
	}
	return nil
}

func (m *Memory) Archive(_ context.Context, queue string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.queues[queue][id]
	if !ok {
		return false, nil
	}
	delete(m.queues[queue], id)
	m.archived[queue] = append(m.archived[queue], *msg)
	return true, nil
}

func (m *Memory) Size(_ context.Context, queue string) (Size, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	size := Size{Archived: int64(len(m.archived[queue]))}
	for _, msg := range m.queues[queue] {
		size.Total++
		if msg.VisibleAt.After(now) {
			size.InFlight++
		} else {
			size.Ready++
		}
	}
	return size, nil
}

func (m *Memory) PurgeRequest(_ context.Context, queue string, requestID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, msg := range m.queues[queue] {
		var item domain.ItemMessage
		if err := json.Unmarshal(msg.Payload, &item); err != nil {
			continue
		}
		if item.RequestID == requestID {
			delete(m.queues[queue], id)
			n++
		}
	}
	return n, nil
}

// Archived returns a copy of the dead-lettered messages of a queue
func (m *Memory) Archived(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.archived[queue]...)
}

// Pending returns a copy of every message still in a queue, visible or not
func (m *Memory) Pending(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, 0, len(m.queues[queue]))
	for _, id := range m.sortedIDs(queue) {
		out = append(out, *m.queues[queue][id])
	}
	return out
}

// SendRaw enqueues an undecoded payload, bypassing message construction
func (m *Memory) SendRaw(queue string, payload []byte) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queues[queue] == nil {
		m.queues[queue] = make(map[int64]*Message)
	}
	now := m.Now()
	m.nextID++
	m.queues[queue][m.nextID] = &Message{ID: m.nextID, EnqueuedAt: now, VisibleAt: now, Payload: payload}
	return m.nextID
}

func (m *Memory) sortedIDs(queue string) []int64 {
	ids := make([]int64, 0, len(m.queues[queue]))
	for id := range m.queues[queue] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
