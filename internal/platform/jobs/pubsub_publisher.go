package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/lumen-eyewear/api/internal/services"
)

// Message attribute keys shared between the publisher and the worker consumers.
const (
	AttrTaskKind = "taskKind"
	AttrOrderID  = "orderId"
	AttrAttempt  = "attempt"
	AttrEvent    = "event"
)

// PubSubTaskPublisher publishes queue tasks to a Pub/Sub topic. It implements
// services.TaskDispatcher.
type PubSubTaskPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubTaskPublisher constructs a Pub/Sub backed task publisher.
func NewPubSubTaskPublisher(topic *pubsub.Topic) (*PubSubTaskPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub task publisher: topic is required")
	}
	return &PubSubTaskPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// EnqueueProcessOrder publishes a pipeline run request for one order.
func (p *PubSubTaskPublisher) EnqueueProcessOrder(ctx context.Context, task services.ProcessOrderTask) error {
	return p.publish(ctx, services.TaskKindProcessOrder, task, map[string]string{
		AttrOrderID: task.OrderID,
		AttrAttempt: strconv.Itoa(task.Attempt),
	})
}

// EnqueueProcessRefund publishes a refund workflow request for one order.
func (p *PubSubTaskPublisher) EnqueueProcessRefund(ctx context.Context, task services.ProcessRefundTask) error {
	return p.publish(ctx, services.TaskKindProcessRefund, task, map[string]string{
		AttrOrderID: task.OrderID,
		AttrAttempt: strconv.Itoa(task.Attempt),
	})
}

// EnqueueNotification publishes one notification delivery request.
func (p *PubSubTaskPublisher) EnqueueNotification(ctx context.Context, task services.NotificationTask) error {
	return p.publish(ctx, services.TaskKindNotification, task, map[string]string{
		AttrOrderID: task.OrderID,
		AttrEvent:   task.Event,
		AttrAttempt: strconv.Itoa(task.Attempt),
	})
}

func (p *PubSubTaskPublisher) publish(ctx context.Context, kind string, payload any, attrs map[string]string) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub task publisher: not initialised")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s task: %w", kind, err)
	}

	attributes := map[string]string{AttrTaskKind: kind}
	for key, value := range attrs {
		if v := strings.TrimSpace(value); v != "" {
			attributes[key] = v
		}
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s task: %w", kind, err)
	}
	return nil
}

// PubSubOrderEventPublisher publishes order domain events to a Pub/Sub topic.
// It implements services.OrderEventPublisher.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event message on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, AttrOrderID, event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
