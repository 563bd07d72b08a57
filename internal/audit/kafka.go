package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

type kafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaSink streams audit records to a Kafka topic, keyed by request id.
func NewKafkaSink(lc fx.Lifecycle, cfg *config.Config) (Sink, error) {
	if len(cfg.Audit.KafkaBrokers) == 0 || cfg.Audit.KafkaTopic == "" {
		log.Error().Msg("Kafka brokers or audit topic is not configured.")
		return nil, errors.New("kafka audit configuration missing")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Audit.KafkaBrokers,
		Topic:        cfg.Audit.KafkaTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		Async:        true,
	})
	s := &kafkaSink{writer: writer, topic: cfg.Audit.KafkaTopic}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info().Msg("Closing Kafka audit sink")
			return s.writer.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Audit.KafkaBrokers).Str("topic", cfg.Audit.KafkaTopic).Msg("Kafka audit sink initialized")
	return s, nil
}

func (s *kafkaSink) Publish(ctx context.Context, record model.AuditRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.RequestID),
		Value: value,
	})
}
