package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/eventstream/kafka"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		publisher = kafka.NewPublisherWithWriter(writer, "reel.test")
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: " , "})
		Expect(err).To(HaveOccurred())
	})

	It("splits the broker list", func() {
		Expect(kafka.SplitBrokers("a:9092, b:9092,,")).To(Equal([]string{"a:9092", "b:9092"}))
	})

	It("writes one JSON message keyed by conversation", func() {
		event := eventstream.NewExchangeEvent(time.Now().UTC())
		event.ConversationID = "conv-1"

		Expect(publisher.PublishExchange(context.Background(), event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("conv-1"))

		var decoded eventstream.ExchangeEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{
			Key:   "event_type",
			Value: []byte(eventstream.EventTypeExchangeCompleted),
		}))
	})

	It("rejects nil events", func() {
		Expect(publisher.PublishExchange(context.Background(), nil)).To(MatchError(eventstream.ErrNilExchangeEvent))
	})

	It("wraps write failures", func() {
		writer.err = errors.New("broker unavailable")
		err := publisher.PublishExchange(context.Background(), eventstream.NewExchangeEvent(time.Now()))
		Expect(err).To(MatchError(ContainSubstring("broker unavailable")))
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
