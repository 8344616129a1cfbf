package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"

	"github.com/ghuser/campusreserve/pkg/logger"
)

// Handler processes one event. Wrap an error with backoff.Permanent to skip
// the remaining attempts.
type Handler func(ctx context.Context, msg *message.Message) error

type retryPolicy struct {
	attempts  uint
	baseDelay time.Duration
}

// 1s, 2s between three attempts.
var defaultRetryPolicy = retryPolicy{attempts: 3, baseDelay: time.Second}

// Subscribe processes topic asynchronously until ctx is cancelled or the bus
// is closed. A handler error is retried per the bus policy; when attempts run
// out the message is Nacked and the error is sent on the returned channel.
//
// The channel is buffered (100) and must be drained:
//
//	errCh, err := bus.Subscribe(ctx, topic, handler)
//	go func() { for err := range errCh { log.ErrorContext(ctx, "subscriber error", "error", err) } }()
func (b *EventBus) Subscribe(ctx context.Context, topic string, handler Handler) (<-chan error, error) {
	ch, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe to %s: %w", topic, err)
	}

	errCh := make(chan error, 100)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(errCh)

		for msg := range ch {
			msgCtx := messageContext(ctx, msg)
			if err := handleWithRetry(msgCtx, msg, handler, b.retry, b.log); err != nil {
				msg.Nack()
				select {
				case errCh <- fmt.Errorf("%s %s: %w", topic, msg.Metadata.Get(MetadataEventID), err):
				default:
					b.log.ErrorContext(msgCtx, "events: error channel full, dropping error",
						"error", err, "topic", topic)
				}
				continue
			}
			msg.Ack()
		}
	}()

	return errCh, nil
}

func handleWithRetry(ctx context.Context, msg *message.Message, handler Handler, p retryPolicy, log logger.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, handler(ctx, msg)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WarnContext(ctx, "events: handler failed, retrying",
				"event_id", msg.Metadata.Get(MetadataEventID),
				"attempt", attempt,
				"next_delay", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("events: handler failed after %d attempts: %w", attempt, err)
	}
	return nil
}
