// Package trigger carries "work is waiting" signals from the API to the
// worker so a runner tick starts without waiting for the next interval.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

const (
	contentType = "application/json"
	keyPrefix   = "runner."
	// BindingKey matches the routing key of every source
	BindingKey = keyPrefix + "#"
)

// Trigger asks the worker to run a tick for a source
type Trigger struct {
	Source domain.Source `json:"source"`
	At     time.Time     `json:"at"`
}

// RoutingKey returns the routing key of a source's triggers
func RoutingKey(src domain.Source) string {
	return keyPrefix + src.String()
}

// Decode parses and validates a trigger body
func Decode(body []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(body, &t); err != nil {
		return t, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if !t.Source.Valid() {
		return t, fmt.Errorf("%w: %q", domain.ErrInvalidSource, t.Source)
	}
	return t, nil
}

// Broker publishes raw messages
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Publisher sends triggers through a broker
type Publisher struct {
	broker Broker
	now    func() time.Time
	logger *logger.Logger
}

func NewPublisher(broker Broker, log *logger.Logger) *Publisher {
	return &Publisher{broker: broker, now: time.Now, logger: log.Component("trigger")}
}

// NotifyRunner publishes a trigger for src
func (p *Publisher) NotifyRunner(ctx context.Context, src domain.Source) error {
	body, err := json.Marshal(Trigger{Source: src, At: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	if err := p.broker.Publish(ctx, RoutingKey(src), body, contentType); err != nil {
		return fmt.Errorf("publish trigger: %w", err)
	}
	p.logger.Debug("Runner triggered", slog.String("source", src.String()))
	return nil
}
