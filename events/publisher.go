package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
)

// Publisher sends order lifecycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

// SNSPublisher publishes order events as JSON to one SNS topic. With no topic
// configured it drops events.
type SNSPublisher struct {
	sns      awspkg.SNSPublisher
	topicARN string
	logger   *zap.Logger
}

func NewSNSPublisher(sns awspkg.SNSPublisher, topicARN string, logger *zap.Logger) *SNSPublisher {
	return &SNSPublisher{sns: sns, topicARN: topicARN, logger: logger}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	if p.sns == nil || p.topicARN == "" {
		p.logger.Debug("order events disabled, dropping event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
		)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := p.sns.Publish(ctx, p.topicARN, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
