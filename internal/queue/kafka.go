package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"imgfilter/internal/domain"
)

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewKafkaWithProducer(producer, topic), nil
}

func NewKafkaWithProducer(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{
		producer: producer,
		topic:    topic,
	}
}

func (k *Kafka) PublishVerdict(ctx context.Context, ev domain.VerdictEvent) error {
	return k.publish(ev.RequestID, ev)
}

// PublishEvent keys by session so a session's requests and its teardown land
// on the same partition in order.
func (k *Kafka) PublishEvent(ctx context.Context, ev domain.Event) error {
	key := string(ev.SessionID)
	if key == "" {
		key = ev.ID
	}
	return k.publish(key, ev)
}

func (k *Kafka) publish(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})

	return err
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}

type KafkaConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler func(ev domain.Event) error
	logger  *slog.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, logger *slog.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &KafkaConsumer{
		group:  group,
		topic:  topic,
		logger: logger,
	}, nil
}

func (c *KafkaConsumer) Consume(ctx context.Context, handler func(ev domain.Event) error) error {
	c.handler = handler

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
				return err
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

func (c *KafkaConsumer) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (c *KafkaConsumer) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev domain.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Warn("dropping malformed event", "offset", msg.Offset, "error", err)
			session.MarkMessage(msg, "")
			continue
		}

		if err := c.handler(ev); err != nil {
			c.logger.Warn("event not handled", "offset", msg.Offset, "type", ev.Type, "error", err)
			continue
		}

		session.MarkMessage(msg, "")
	}
	return nil
}

var (
	_ VerdictPublisher = (*Kafka)(nil)
	_ EventPublisher   = (*Kafka)(nil)
	_ Consumer         = (*KafkaConsumer)(nil)
)
