package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopdesk/supportchat/internal/logger"
)

const defaultQueueSize = 1024

var ErrQueueFull = errors.New("events: publish queue full")

// KafkaPublisher queues events and sends them from a single worker through a
// sarama SyncProducer. The key is the room id so one room stays on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	queue    chan Event
	wg       sync.WaitGroup
	once     sync.Once
}

// NewKafkaPublisher connects to brokers and starts the send worker.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "supportchat"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Producer.Compression = sarama.CompressionSnappy
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events.NewKafkaPublisher: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic, defaultQueueSize), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, queueSize int) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		queue:    make(chan Event, queueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish enqueues ev without waiting for the broker.
func (p *KafkaPublisher) Publish(_ context.Context, ev Event) error {
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		if err := p.send(ev); err != nil {
			logger.Errorf("events: kafka send %s room=%d: %v", ev.Type, ev.RoomID, err)
		}
	}
}

func (p *KafkaPublisher) send(ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.RoomID, 10)),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return err
	}
	logger.Debugf("events: %s sent partition=%d offset=%d", ev.Type, partition, offset)
	return nil
}

// Close drains the queue and closes the producer.
func (p *KafkaPublisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.producer.Close()
	})
	return err
}
