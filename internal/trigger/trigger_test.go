package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

type recordingBroker struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (b *recordingBroker) Publish(_ context.Context, routingKey string, body []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	b.keys = append(b.keys, routingKey)
	b.bodies = append(b.bodies, body)
	return nil
}

func TestPublisher_NotifyRunner(t *testing.T) {
	broker := &recordingBroker{}
	p := NewPublisher(broker, logger.NewDiscard())
	p.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, p.NotifyRunner(context.Background(), domain.SourceWix))
	require.Len(t, broker.keys, 1)
	assert.Equal(t, "runner.wix", broker.keys[0])

	trig, err := Decode(broker.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWix, trig.Source)
	assert.Equal(t, p.now(), trig.At)
}

func TestPublisher_BrokerError(t *testing.T) {
	p := NewPublisher(&recordingBroker{err: errors.New("channel closed")}, logger.NewDiscard())
	assert.Error(t, p.NotifyRunner(context.Background(), domain.SourceShopify))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"valid", `{"source":"shopify"}`, nil},
		{"malformed", `{`, domain.ErrInvalidPayload},
		{"unknown source", `{"source":"etsy"}`, domain.ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
