package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/models"
)

// ProviderHealthSubject carries health updates from the monitoring pipeline
const ProviderHealthSubject = "routing.provider.health"

// HealthWriter stores provider health entries
type HealthWriter interface {
	Put(ctx context.Context, health models.ProviderHealth) error
}

// HealthSubscriber copies provider health updates from NATS into the health store
type HealthSubscriber struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	store  HealthWriter
	logger *logrus.Entry
}

// NewHealthSubscriber connects to NATS
func NewHealthSubscriber(natsURL string, store HealthWriter, logger *logrus.Logger) (*HealthSubscriber, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS_URL not set")
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("payment-routing-health-subscriber"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &HealthSubscriber{
		conn:   conn,
		store:  store,
		logger: logger.WithField("component", "health-subscriber"),
	}, nil
}

// Start begins listening for health updates
func (s *HealthSubscriber) Start() error {
	sub, err := s.conn.Subscribe(ProviderHealthSubject, func(msg *nats.Msg) {
		s.handleHealthUpdate(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ProviderHealthSubject, err)
	}
	s.sub = sub

	s.logger.WithField("subject", ProviderHealthSubject).Info("Subscribed to provider health updates")
	return nil
}

func (s *HealthSubscriber) handleHealthUpdate(data []byte) {
	health, err := decodeHealthUpdate(data)
	if err != nil {
		s.logger.WithError(err).Warn("Dropping provider health update")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.Put(ctx, health); err != nil {
		s.logger.WithError(err).WithField("provider", health.Provider).Error("Failed to store provider health")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"provider":    health.Provider,
		"reliability": health.ReliabilityScore,
		"speed":       health.SpeedScore,
	}).Debug("Provider health updated")
}

// decodeHealthUpdate parses and checks a health message. A missing timestamp
// is stamped with the receive time.
func decodeHealthUpdate(data []byte) (models.ProviderHealth, error) {
	var health models.ProviderHealth
	if err := json.Unmarshal(data, &health); err != nil {
		return health, fmt.Errorf("invalid health payload: %w", err)
	}

	provider, ok := models.ParseProviderName(string(health.Provider))
	if !ok {
		return health, fmt.Errorf("unknown provider %q", health.Provider)
	}
	health.Provider = provider

	if health.ReliabilityScore < 0 || health.ReliabilityScore > 100 ||
		health.SpeedScore < 0 || health.SpeedScore > 100 {
		return health, fmt.Errorf("scores for %s out of range", provider)
	}
	if health.UpdatedAt.IsZero() {
		health.UpdatedAt = time.Now().UTC()
	}
	return health, nil
}

// Close unsubscribes and closes the connection
func (s *HealthSubscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.conn.Close()
}
