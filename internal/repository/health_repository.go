package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payment-routing-service/internal/models"
)

// HealthRepository reads provider health signals published to a Redis hash
// by the monitoring pipeline, one JSON entry per provider
type HealthRepository struct {
	client *redis.Client
	key    string
	maxAge time.Duration
	now    func() time.Time
}

// NewHealthRepository connects to Redis. When Redis is unreachable the
// repository degrades to reporting no health data.
func NewHealthRepository(redisURL, key string, maxAge time.Duration) (*HealthRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &HealthRepository{key: key, maxAge: maxAge, now: time.Now}, nil
	}

	return NewHealthRepositoryWithClient(client, key, maxAge), nil
}

// NewHealthRepositoryWithClient wraps an existing client
func NewHealthRepositoryWithClient(client *redis.Client, key string, maxAge time.Duration) *HealthRepository {
	return &HealthRepository{client: client, key: key, maxAge: maxAge, now: time.Now}
}

// Snapshot returns the current, non-stale health entries
func (r *HealthRepository) Snapshot(ctx context.Context) (models.HealthSnapshot, error) {
	if r.client == nil {
		return models.HealthSnapshot{}, nil
	}

	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read provider health: %w", err)
	}

	snapshot, _ := ParseHealthEntries(entries, r.now(), r.maxAge)
	return snapshot, nil
}

// Put stores a provider's health entry
func (r *HealthRepository) Put(ctx context.Context, health models.ProviderHealth) error {
	if r.client == nil {
		return nil
	}
	data, err := json.Marshal(health)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, string(health.Provider), data).Err()
}

// Close closes the Redis connection
func (r *HealthRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// IsAvailable returns true if Redis is connected
func (r *HealthRepository) IsAvailable() bool {
	return r.client != nil
}

// ParseHealthEntries decodes raw hash entries. Entries that are malformed,
// for unknown providers, out of range or older than maxAge are dropped and
// reported by field name.
func ParseHealthEntries(entries map[string]string, now time.Time, maxAge time.Duration) (models.HealthSnapshot, []string) {
	snapshot := make(models.HealthSnapshot, len(entries))
	var dropped []string

	for field, raw := range entries {
		provider, ok := models.ParseProviderName(field)
		if !ok {
			dropped = append(dropped, field)
			continue
		}

		var h models.ProviderHealth
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			dropped = append(dropped, field)
			continue
		}
		if !inScoreRange(h.ReliabilityScore) || !inScoreRange(h.SpeedScore) {
			dropped = append(dropped, field)
			continue
		}
		if maxAge > 0 && (h.UpdatedAt.IsZero() || now.Sub(h.UpdatedAt) > maxAge) {
			dropped = append(dropped, field)
			continue
		}

		h.Provider = provider
		snapshot[provider] = h
	}
	return snapshot, dropped
}

func inScoreRange(v float64) bool {
	return v >= 0 && v <= 100
}
