package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/pkg/logger"
)

// RevocationConsumer applies sibling replicas' revocation events to the
// local ledger caches. All replicas share one consumer group so each event
// is applied once per deployment region.
type RevocationConsumer struct {
	reader *kafka.Reader
	ledger service.RevocationLedger
	log    logger.Logger
}

// NewRevocationConsumer builds a consumer bound to the shared topic.
func NewRevocationConsumer(cfg config.KafkaConfig, ledger service.RevocationLedger, log logger.Logger) *RevocationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.RevocationTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &RevocationConsumer{
		reader: reader,
		ledger: ledger,
		log:    log.WithComponent("revocation_consumer"),
	}
}

// Run consumes until the context is cancelled. Malformed messages are
// committed and dropped; a poison pill must not wedge the group.
func (c *RevocationConsumer) Run(ctx context.Context) error {
	c.log.Info(ctx, "revocation consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if stderrors.Is(err, context.Canceled) {
				c.log.Info(ctx, "revocation consumer stopped")
				return nil
			}
			c.log.Error(ctx, "fetch revocation event", err)
			continue
		}

		var event revocationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Error(ctx, "malformed revocation event dropped", err,
				logger.String("raw", string(msg.Value)))
			c.commit(ctx, msg)
			continue
		}
		if event.JTI == "" {
			c.log.Warn(ctx, "revocation event without jti dropped")
			c.commit(ctx, msg)
			continue
		}

		c.ledger.ApplyRemote(ctx, &models.RevocationEntry{
			JTI:       event.JTI,
			Subject:   event.Subject,
			Reason:    event.Reason,
			ExpiresAt: event.ExpiresAt,
			RevokedAt: event.RevokedAt,
		})
		c.log.Debug(ctx, "remote revocation applied", logger.String("jti", event.JTI))
		c.commit(ctx, msg)
	}
}

// Close releases the reader.
func (c *RevocationConsumer) Close() error {
	return c.reader.Close()
}

func (c *RevocationConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Warn(ctx, "commit revocation event failed", logger.Err(err))
	}
}
