package mq

import (
	"context"
	"log"
	"time"
)

// publishTimeout bounds a single broker publish.
const publishTimeout = 5 * time.Second

// MessagePublisher is satisfied by *Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
}

// LabelNotifier publishes label changes and dispatch summaries to RabbitMQ.
type LabelNotifier struct {
	pub MessagePublisher
}

func NewLabelNotifier(pub MessagePublisher) *LabelNotifier {
	return &LabelNotifier{pub: pub}
}

// NotifyLabelChange publishes a label change. Failures are logged, never returned.
func (n *LabelNotifier) NotifyLabelChange(ctx context.Context, msg LabelChangeMsg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, RoutingLabelChange, msg); err != nil {
		log.Printf("[mq] failed to publish label change for %s: %v", msg.RegionID, err)
	}
}

// NotifyDispatch publishes the summary of one dispatch.
func (n *LabelNotifier) NotifyDispatch(ctx context.Context, msg DispatchSummaryMsg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, RoutingDispatchSummary, msg); err != nil {
		log.Printf("[mq] failed to publish dispatch %s: %v", msg.DispatchID, err)
	}
}
