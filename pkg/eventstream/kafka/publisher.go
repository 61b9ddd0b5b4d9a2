// Package kafka publishes exchange events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/eventstream"
)

// DefaultTopic receives exchange events when no topic is configured.
const DefaultTopic = "reel.exchanges"

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Config struct {
	// Brokers is a comma separated list of host:port addresses.
	Brokers string
	Topic   string
	Logger  *zap.Logger
}

// Publisher writes one message per event, keyed by conversation ID so that
// a conversation's events stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewPublisher(c Config) (*Publisher, error) {
	brokers := splitBrokers(c.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(w, topic, c.Logger), nil
}

func newPublisher(w messageWriter, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

func (p *Publisher) PublishExchange(ctx context.Context, event *eventstream.ExchangeEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling exchange event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.ConversationID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debug("published exchange event",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("conversation_id", event.ConversationID),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

var _ eventstream.Publisher = (*Publisher)(nil)
