package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/lumen-eyewear/api/internal/platform/jobs"
	"github.com/lumen-eyewear/api/internal/services"
)

const (
	defaultMaxAttempts = 5

	// processBackoffBase paces retries of pipeline and notification tasks.
	processBackoffBase = 10 * time.Second
	// refundBackoffBase is longer: refunds are lower urgency and a failed
	// attempt is more expensive to repeat.
	refundBackoffBase = 60 * time.Second
)

// NotificationSender delivers one notification to its channel.
type NotificationSender interface {
	Send(ctx context.Context, task services.NotificationTask) error
}

// LogNotificationSender records notifications in the service log. Outbound
// channels hook in by replacing it.
type LogNotificationSender struct {
	Logger *zap.Logger
}

func (s *LogNotificationSender) Send(_ context.Context, task services.NotificationTask) error {
	if s == nil || s.Logger == nil {
		return nil
	}
	s.Logger.Info("notification.delivered",
		zap.String("event", task.Event),
		zap.String("orderId", task.OrderID),
	)
	return nil
}

// ConsumerDeps bundles collaborators required to construct the task consumer.
type ConsumerDeps struct {
	Subscription *pubsub.Subscription
	Pipeline     services.OrderPipeline
	Refunds      services.RefundService
	Notifier     NotificationSender
	Logger       *zap.Logger
	MaxAttempts  int
}

// Consumer pulls queue tasks and dispatches them by kind. Transient failures
// are retried in place with exponential backoff, bounded by MaxAttempts;
// terminal failures and exhausted tasks are acked so they cannot poison the
// subscription.
type Consumer struct {
	sub         *pubsub.Subscription
	pipeline    services.OrderPipeline
	refunds     services.RefundService
	notifier    NotificationSender
	logger      *zap.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewConsumer constructs a queue task consumer.
func NewConsumer(deps ConsumerDeps) (*Consumer, error) {
	if deps.Subscription == nil {
		return nil, errors.New("consumer: subscription is required")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("consumer: order pipeline is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("consumer: refund service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = &LogNotificationSender{Logger: logger}
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Consumer{
		sub:         deps.Subscription,
		pipeline:    deps.Pipeline,
		refunds:     deps.Refunds,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
	}, nil
}

// Run blocks receiving tasks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := c.handle(ctx, msg.Attributes[jobs.AttrTaskKind], msg.Data); err != nil {
			c.logger.Error("task.dead",
				zap.String("kind", msg.Attributes[jobs.AttrTaskKind]),
				zap.String("orderId", msg.Attributes[jobs.AttrOrderID]),
				zap.Error(err),
			)
		}
		// Acked either way: retries already happened in handle, and a task
		// that survived them needs an operator, not redelivery.
		msg.Ack()
	})
}

func (c *Consumer) handle(ctx context.Context, kind string, data []byte) error {
	switch kind {
	case services.TaskKindProcessOrder:
		var task services.ProcessOrderTask
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode %s task: %w", kind, err)
		}
		return c.retry(ctx, processBackoffBase, func(ctx context.Context) error {
			return c.pipeline.Process(ctx, task.OrderID)
		})

	case services.TaskKindProcessRefund:
		var task services.ProcessRefundTask
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode %s task: %w", kind, err)
		}
		return c.retry(ctx, refundBackoffBase, func(ctx context.Context) error {
			_, err := c.refunds.ProcessRefund(ctx, services.ProcessRefundCommand{
				OrderID:       task.OrderID,
				Reason:        task.Reason,
				StockRestored: task.StockRestored,
			})
			return err
		})

	case services.TaskKindNotification:
		var task services.NotificationTask
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode %s task: %w", kind, err)
		}
		return c.retry(ctx, processBackoffBase, func(ctx context.Context) error {
			return c.notifier.Send(ctx, task)
		})

	default:
		return fmt.Errorf("unknown task kind %q", kind)
	}
}

// retry runs fn up to maxAttempts times with exponential backoff. Invalid
// input and illegal transition errors are terminal; retrying them cannot
// change the outcome.
func (c *Consumer) retry(ctx context.Context, base time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := c.sleep(ctx, base<<(attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if isTerminalTaskError(err) {
			return err
		}
		c.logger.Warn("task.retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

func isTerminalTaskError(err error) bool {
	return errors.Is(err, services.ErrOrderInvalidInput) ||
		errors.Is(err, services.ErrOrderInvalidTransition) ||
		errors.Is(err, services.ErrOrderNotFound)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
