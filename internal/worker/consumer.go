package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/trigger"
)

// setupConsumer subscribes to runner triggers
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	deliveries, err := w.consumer.Consume(ctx, w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Trigger consumer started", slog.String("consumer_tag", w.workerID))
	return deliveries, nil
}

// startMessageDispatcher turns trigger deliveries into tick requests. A
// delivery is acked once its tick ran and dropped if it cannot be parsed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Trigger delivery channel closed")
				return
			}

			trig, err := trigger.Decode(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping invalid trigger",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK invalid trigger", slog.Any("error", nackErr))
				}
				continue
			}

			req := &tickRequest{
				sources: []domain.Source{trig.Source},
				origin:  "trigger",
				done: func(err error) {
					// failed ticks are requeued so another worker can try
					var ackErr error
					if err != nil {
						ackErr = delivery.Nack(false, true)
					} else {
						ackErr = delivery.Ack(false)
					}
					if ackErr != nil {
						w.logger.Error("Failed to acknowledge trigger", slog.Any("error", ackErr))
					}
				},
			}

			select {
			case w.ticksChan <- req:
				w.logger.Debug("Trigger dispatched", slog.String("source", trig.Source.String()))
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK trigger on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}
