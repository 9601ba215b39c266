package events

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// Producer publishes daemon heartbeats and job events to Kafka. A nil
// *Producer is a valid no-op, so call sites don't branch on whether
// brokers were configured.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create Kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    topic,
	}, nil
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close Kafka producer: %w", err)
	}
	return nil
}

// Send publishes one heartbeat, keyed by camera ID so per-camera events
// stay ordered within a partition.
func (p *Producer) Send(hb models.Heartbeat) error {
	if p == nil {
		return nil
	}

	payload, err := json.Marshal(hb)
	if err != nil {
		return err
	}

	key := hb.CameraID
	if key == "" {
		key = string(hb.Kind)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}
