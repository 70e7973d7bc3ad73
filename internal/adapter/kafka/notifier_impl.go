package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/user/listing-crawler/internal/entity"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NotifierImpl publishes every added listing of a crawl as one Kafka message
// keyed by source and natural key.
type NotifierImpl struct {
	writer messageWriter
}

// NewNotifier creates a notifier writing to topic on the given brokers.
func NewNotifier(brokers []string, topic string) *NotifierImpl {
	return &NotifierImpl{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewNotifierWithWriter builds a notifier using a custom writer (tests).
func NewNotifierWithWriter(writer messageWriter) *NotifierImpl {
	return &NotifierImpl{writer: writer}
}

// Close shuts down the underlying writer.
func (n *NotifierImpl) Close() error {
	return n.writer.Close()
}

func (n *NotifierImpl) NotifyAdded(ctx context.Context, result *entity.CrawlResult) error {
	if len(result.Added) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(result.Added))
	for _, l := range result.Added {
		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode listing %s: %w", l.NaturalKey(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(l.Source + ":" + l.NaturalKey()),
			Value: payload,
			Time:  now,
		})
	}
	return n.writer.WriteMessages(ctx, msgs...)
}
