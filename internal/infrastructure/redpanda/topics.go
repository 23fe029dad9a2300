// Package redpanda carries prescription and inventory events between the
// API, the outbox relay and the dispense worker over Kafka-compatible
// streaming via franz-go.
package redpanda

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names for the prescription pad event flow.
const (
	// TopicPrescriptionSaved carries one event per flushed prescription.
	TopicPrescriptionSaved = "prescription.saved"
	// TopicPatientCreated carries newly registered walk-in patients.
	TopicPatientCreated = "patient.created"
	// TopicInventoryReserve carries stock reservation requests for
	// dispensed inventory medicines.
	TopicInventoryReserve = "inventory.reserve"
	// TopicDeadLetter receives events the relay gave up on.
	TopicDeadLetter = "dead.letter"
)

// TopicConfig describes one topic to provision.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// DefaultTopicConfigs returns the topics the prescription pad needs.
func DefaultTopicConfigs() []TopicConfig {
	ptr := func(s string) *string { return &s }
	base := map[string]*string{
		"retention.ms":     ptr("604800000"), // 7 days
		"cleanup.policy":   ptr("delete"),
		"compression.type": ptr("lz4"),
	}
	return []TopicConfig{
		{Name: TopicPrescriptionSaved, Partitions: 6, ReplicationFactor: 1, Configs: base},
		{Name: TopicPatientCreated, Partitions: 3, ReplicationFactor: 1, Configs: base},
		{Name: TopicInventoryReserve, Partitions: 6, ReplicationFactor: 1, Configs: base},
		{Name: TopicDeadLetter, Partitions: 1, ReplicationFactor: 1, Configs: base},
	}
}

// Admin provisions and inspects topics.
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client against the given brokers.
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kgoClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Admin{client: kadm.NewClient(kgoClient), logger: logger}, nil
}

// EnsureTopics creates every required topic, tolerating ones that exist.
func (a *Admin) EnsureTopics(ctx context.Context) error {
	for _, cfg := range DefaultTopicConfigs() {
		resp, err := a.client.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, cfg.Configs, cfg.Name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.Name, err)
		}
		for _, r := range resp {
			if r.Err != nil {
				if r.Err.Error() == "TOPIC_ALREADY_EXISTS" {
					a.logger.Debug("topic exists", zap.String("topic", r.Topic))
					continue
				}
				return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
			}
			a.logger.Info("topic created",
				zap.String("topic", r.Topic),
				zap.Int32("partitions", cfg.Partitions))
		}
	}
	return nil
}

// GroupLag returns per-partition lag for a consumer group.
func (a *Admin) GroupLag(ctx context.Context, groupID string) (map[string]map[int32]int64, error) {
	described, err := a.client.Lag(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("group lag: %w", err)
	}
	result := make(map[string]map[int32]int64)
	described.Each(func(l kadm.DescribedGroupLag) {
		for topic, partitions := range l.Lag {
			if result[topic] == nil {
				result[topic] = make(map[int32]int64)
			}
			for partition, lag := range partitions {
				result[topic][partition] = lag.Lag
			}
		}
	})
	return result, nil
}

// Close closes the admin client.
func (a *Admin) Close() {
	a.client.Close()
}

// HealthCheck verifies broker connectivity.
func HealthCheck(ctx context.Context, brokers []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
