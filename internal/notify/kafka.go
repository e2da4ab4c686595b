package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaNotifier publishes notices for the mail/SMS senders that consume the
// topic.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
	done     chan struct{}
}

// NewKafkaNotifier connects an async producer to brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}
	return newKafkaNotifier(producer, topic, logger), nil
}

func newKafkaNotifier(producer sarama.AsyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	k := &KafkaNotifier{producer: producer, topic: topic, logger: logger, done: make(chan struct{})}

	// Delivery failures surface here, after Notify has returned.
	go func() {
		defer close(k.done)
		for err := range producer.Errors() {
			k.logger.Warn("ticket notice not delivered", zap.String("topic", k.topic), zap.Error(err))
		}
	}()
	return k
}

// Notify enqueues n keyed by order id so notices for one order stay ordered.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(n.OrderID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("subject"), Value: []byte(n.Subject())},
		},
	}
	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue notice: %w", ctx.Err())
	}
}

// Close flushes pending messages and stops the producer.
func (k *KafkaNotifier) Close() error {
	err := k.producer.Close()
	<-k.done
	return err
}
