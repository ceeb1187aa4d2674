// Package events propagates revocations between replicas over Kafka. The
// durable store is the source of truth; the event stream only warms sibling
// caches so a revocation becomes visible everywhere without waiting for
// their cache misses.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/pkg/logger"
)

// revocationEvent is the wire form of a revocation fan-out message.
type revocationEvent struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"subject"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	RevokedAt time.Time `json:"revoked_at"`
}

// KafkaRevocationPublisher writes revocation events to the shared topic.
type KafkaRevocationPublisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

var _ service.RevocationPublisher = (*KafkaRevocationPublisher)(nil)

// NewKafkaRevocationPublisher builds a publisher for the configured topic.
func NewKafkaRevocationPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaRevocationPublisher {
	return &KafkaRevocationPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.RevocationTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		log: log.WithComponent("revocation_publisher"),
	}
}

// PublishRevocation emits one event keyed by JTI.
func (p *KafkaRevocationPublisher) PublishRevocation(ctx context.Context, entry *models.RevocationEntry) error {
	payload, err := json.Marshal(revocationEvent{
		JTI:       entry.JTI,
		Subject:   entry.Subject,
		Reason:    entry.Reason,
		ExpiresAt: entry.ExpiresAt,
		RevokedAt: entry.RevokedAt,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.JTI),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaRevocationPublisher) Close() error {
	return p.writer.Close()
}
