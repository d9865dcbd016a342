package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/models"
)

// Routing event types
const (
	VolumeThresholdApproaching = "routing.volume.approaching"
	VolumeThresholdExceeded    = "routing.volume.exceeded"
	RoutingFallback            = "routing.fallback"
)

// RoutingStream is the JetStream stream holding routing events
const RoutingStream = "ROUTING_EVENTS"

// RoutingEvent represents a routing-related event
type RoutingEvent struct {
	events.BaseEvent
	MerchantID          string   `json:"merchantId"`
	ThresholdName       string   `json:"thresholdName,omitempty"`
	ThresholdAmount     string   `json:"thresholdAmount,omitempty"`
	CurrentVolume       string   `json:"currentVolume,omitempty"`
	RecommendedProvider string   `json:"recommendedProvider,omitempty"`
	Recommendation      string   `json:"recommendation,omitempty"`
	Priority            string   `json:"priority,omitempty"`
	EstimatedSavings    string   `json:"estimatedSavings,omitempty"`
	SelectedProvider    string   `json:"selectedProvider,omitempty"`
	FallbackChain       []string `json:"fallbackChain,omitempty"`
	Reason              string   `json:"reason,omitempty"`
}

func (e *RoutingEvent) GetSubject() string {
	return e.EventType
}

func (e *RoutingEvent) GetStream() string {
	return RoutingStream
}

// Publisher wraps the shared events publisher for routing events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new routing events publisher
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS_URL not set")
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "payment-routing-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, RoutingStream, []string{"routing.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure ROUTING_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishVolumeAlert publishes a threshold alert for a merchant
func (p *Publisher) PublishVolumeAlert(ctx context.Context, alert models.VolumeAlert) error {
	eventType := VolumeThresholdApproaching
	if alert.Kind == models.AlertExceeded {
		eventType = VolumeThresholdExceeded
	}

	event := &RoutingEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			TenantID:  alert.MerchantID,
			SourceID:  alert.MerchantID + ":" + alert.Threshold.Name,
			Timestamp: time.Now().UTC(),
		},
		MerchantID:          alert.MerchantID,
		ThresholdName:       alert.Threshold.Name,
		ThresholdAmount:     alert.Threshold.Amount.StringFixed(2),
		CurrentVolume:       alert.CurrentVolume.StringFixed(2),
		RecommendedProvider: string(alert.Threshold.RecommendedProvider),
		Recommendation:      alert.Recommendation,
		Priority:            string(alert.Priority),
	}
	if alert.EstimatedMonthlySavings != nil {
		event.EstimatedSavings = alert.EstimatedMonthlySavings.StringFixed(2)
	}

	return p.publisher.Publish(ctx, event)
}

// PublishRoutingFallback publishes that a selection degraded to cost-only ranking
func (p *Publisher) PublishRoutingFallback(ctx context.Context, merchantID string, selection models.ProviderSelection) error {
	chain := make([]string, 0, len(selection.FallbackChain))
	for _, name := range selection.FallbackChain {
		chain = append(chain, string(name))
	}

	event := &RoutingEvent{
		BaseEvent: events.BaseEvent{
			EventType: RoutingFallback,
			TenantID:  merchantID,
			Timestamp: time.Now().UTC(),
		},
		MerchantID:       merchantID,
		SelectedProvider: string(selection.Provider),
		FallbackChain:    chain,
		Reason:           selection.Reason,
	}

	return p.publisher.Publish(ctx, event)
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}
