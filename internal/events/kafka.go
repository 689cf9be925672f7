package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-catalog-service/internal/config"
	"github.com/helixir/paper-catalog-service/internal/domain"
)

// ServiceName is stamped on every message as its source header.
const ServiceName = "paper-catalog-service"

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes paper events to a Kafka topic.
type KafkaPublisher struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher for cfg.Topic on cfg.Brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return newKafkaPublisher(writer, cfg.Topic, cfg.WriteTimeout, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, writeTimeout time.Duration, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:       w,
		topic:        topic,
		writeTimeout: writeTimeout,
		now:          time.Now,
		logger:       logger.With().Str("component", "kafka_publisher").Str("topic", topic).Logger(),
	}
}

// PublishPaperCreated writes {"id", "title"} keyed by the paper's OpenAlex id.
func (p *KafkaPublisher) PublishPaperCreated(ctx context.Context, event domain.PaperCreatedEvent) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for paper %d: %w", domain.EventTypePaperCreated, event.ID, err)
	}

	p.logger.Debug().
		Int64("paper_id", event.ID).
		Str("alex_paper_id", event.AlexPaperID).
		Msg("published paper event")
	return nil
}

func (p *KafkaPublisher) message(event domain.PaperCreatedEvent) (kafka.Message, error) {
	if event.ID <= 0 {
		return kafka.Message{}, fmt.Errorf("paper id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal payload: %w", err)
	}

	key := event.AlexPaperID
	if key == "" {
		key = strconv.FormatInt(event.ID, 10)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(domain.EventTypePaperCreated)},
			{Key: "source", Value: []byte(ServiceName)},
		},
	}, nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// New returns a KafkaPublisher when cfg.Enabled is set and a NoopPublisher otherwise.
func New(cfg config.KafkaConfig, logger zerolog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg, logger)
}
