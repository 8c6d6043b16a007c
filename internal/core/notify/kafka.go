package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gowvp/roadeye/internal/metrics"
)

type KafkaConfig struct {
	BootstrapServers string
	Topic            string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

// ConfigMap 生成 producer 配置，未设置的鉴权项不写入
func (c KafkaConfig) ConfigMap() *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":   c.BootstrapServers,
		"acks":                "all",
		"enable.idempotence":  true,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}
	if c.SecurityProtocol != "" {
		m["security.protocol"] = c.SecurityProtocol
	}
	if c.SASLMechanism != "" {
		m["sasl.mechanism"] = c.SASLMechanism
		m["sasl.username"] = c.SASLUsername
		m["sasl.password"] = c.SASLPassword
	}
	return &m
}

// Kafka 将告警以 JSON 发布到 topic，key 为事故 ID
type Kafka struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event

	messagesSent   atomic.Int64
	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if cfg.BootstrapServers == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: %w", ErrNotConfigured)
	}
	p, err := kafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	k := Kafka{
		producer:     p,
		topic:        cfg.Topic,
		deliveryChan: make(chan kafka.Event, 1000),
		ctx:          ctx,
		cancel:       cancel,
	}
	k.wg.Go(k.handleDeliveryReports)

	slog.Info("kafka producer initialized", "topic", cfg.Topic, "servers", cfg.BootstrapServers)
	return &k, nil
}

// handleDeliveryReports 处理投递回执
func (k *Kafka) handleDeliveryReports() {
	for {
		select {
		case <-k.ctx.Done():
			return
		case e := <-k.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				k.messagesFailed.Add(1)
				metrics.ObserveNotify("kafka", m.TopicPartition.Error)
				slog.Error("kafka delivery failed", "err", m.TopicPartition.Error, "key", string(m.Key))
				continue
			}
			k.messagesAcked.Add(1)
			metrics.ObserveNotify("kafka", nil)
		}
	}
}

// Notify implements [Notifier].
// 投递结果通过回执异步统计，此处只返回入队错误
func (k *Kafka) Notify(ctx context.Context, a Alert) error {
	msg, err := NewKafkaMessage(k.topic, a)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.producer.Produce(msg, k.deliveryChan); err != nil {
		k.messagesFailed.Add(1)
		metrics.ObserveNotify("kafka", err)
		return fmt.Errorf("kafka produce: %w", err)
	}
	k.messagesSent.Add(1)
	return nil
}

// NewKafkaMessage 构造告警消息
func NewKafkaMessage(topic string, a Alert) (*kafka.Message, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize alert: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(strconv.FormatInt(a.AccidentID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "city", Value: []byte(a.City)},
		},
	}, nil
}

// Stats 发送统计
func (k *Kafka) Stats() map[string]int64 {
	return map[string]int64{
		"messages_sent":    k.messagesSent.Load(),
		"messages_acked":   k.messagesAcked.Load(),
		"messages_failed":  k.messagesFailed.Load(),
		"messages_pending": k.messagesSent.Load() - k.messagesAcked.Load() - k.messagesFailed.Load(),
	}
}

// Close 等待未发送的消息后关闭
func (k *Kafka) Close() {
	if remaining := k.producer.Flush(int((30 * time.Second).Milliseconds())); remaining > 0 {
		slog.Warn("kafka messages still in queue after flush timeout", "remaining", remaining)
	}
	k.cancel()
	k.wg.Wait()
	k.producer.Close()
	slog.Info("kafka producer closed", "stats", k.Stats())
}
