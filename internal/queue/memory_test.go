package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestQueue() (*Memory, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewMemory()
	q.Now = clock.Now
	return q, clock
}

func item(requestID, ref string) domain.ItemMessage {
	return domain.ItemMessage{UserID: "u1", RequestID: requestID, Source: domain.SourceShopify, ItemRef: ref}
}

func TestMemory_ReadHidesUntilVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue()

	ids, err := q.SendBatch(ctx, "import_shopify", []domain.ItemMessage{item("r1", "a"), item("r1", "b")})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	msgs, err := q.Read(ctx, "import_shopify", 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[0].ReadCount)

	again, err := q.Read(ctx, "import_shopify", 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed messages must stay invisible")

	size, err := q.Size(ctx, "import_shopify")
	require.NoError(t, err)
	assert.Equal(t, Size{Ready: 0, InFlight: 2, Total: 2}, size)

	clock.Advance(31 * time.Second)
	redelivered, err := q.Read(ctx, "import_shopify", 30*time.Second, 1)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, msgs[0].ID, redelivered[0].ID)
	assert.Equal(t, 2, redelivered[0].ReadCount)

	decoded, err := redelivered[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "a", decoded.ItemRef)
}

func TestMemory_DeleteArchiveAndRearm(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue()

	ids, err := q.SendBatch(ctx, "import_wix", []domain.ItemMessage{item("r1", "a"), item("r1", "b"), item("r1", "c")})
	require.NoError(t, err)

	_, err = q.Read(ctx, "import_wix", time.Minute, 10)
	require.NoError(t, err)

	deleted, err := q.Delete(ctx, "import_wix", ids[0])
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = q.Delete(ctx, "import_wix", ids[0])
	require.NoError(t, err)
	assert.False(t, deleted, "ack is single-shot")

	archived, err := q.Archive(ctx, "import_wix", ids[1])
	require.NoError(t, err)
	assert.True(t, archived)
	assert.Len(t, q.Archived("import_wix"), 1)

	require.NoError(t, q.SetVisibilityTimeout(ctx, "import_wix", ids[2], 0))
	msgs, err := q.Read(ctx, "import_wix", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ids[2], msgs[0].ID)

	clock.Advance(2 * time.Minute)
	size, err := q.Size(ctx, "import_wix")
	require.NoError(t, err)
	assert.Equal(t, Size{Ready: 1, Total: 1, Archived: 1}, size)
}

func TestPurgeSource(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue()

	_, err := q.SendBatch(ctx, "import_shopify", []domain.ItemMessage{item("r1", "a"), item("r2", "b")})
	require.NoError(t, err)
	_, err = q.SendBatch(ctx, "import_shopify_high", []domain.ItemMessage{item("r1", "c")})
	require.NoError(t, err)

	n, err := PurgeSource(ctx, q, domain.SourceShopify, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Empty(t, q.Pending("import_shopify_high"))
	remaining := q.Pending("import_shopify")
	require.Len(t, remaining, 1)
	decoded, err := remaining[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "r2", decoded.RequestID)
}

func TestMessage_DecodeInvalid(t *testing.T) {
	msg := Message{Payload: []byte(`{"userId":`)}
	_, err := msg.Decode()
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
