package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

// TopicPresenceChange 默认 Topic
const TopicPresenceChange = "relay.presence.change"

// KafkaEventPublisher Kafka事件发布器
type KafkaEventPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaEventPublisher 创建Kafka事件发布器
func NewKafkaEventPublisher(brokers []string, topic string) (out.EventPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 10 * time.Second
	// 同一用户的状态变更落在同一分区，保证顺序
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaEventPublisher(producer, topic), nil
}

func newKafkaEventPublisher(producer sarama.SyncProducer, topic string) *KafkaEventPublisher {
	if topic == "" {
		topic = TopicPresenceChange
	}
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishPresenceChange(ctx context.Context, change *entity.PresenceChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal presence change event failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(change.UserID), // 按用户分区
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("presence_change")},
			{Key: []byte("reason"), Value: []byte(change.Reason)},
			{Key: []byte("timestamp"), Value: []byte(change.Timestamp.UTC().Format(time.RFC3339))},
		},
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish presence change event failed: %w", err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}
