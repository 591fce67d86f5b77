package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"DevTinder/config"

	"github.com/segmentio/kafka-go"
)

// ErrProducerDisabled Kafka 未配置时返回，调用方只记日志不重试。
var ErrProducerDisabled = errors.New("kafka producer disabled")

// Producer 封装 kafka-go 的 Writer，负责把 Redis 重试任务写入队列。
type Producer struct {
	writer *kafka.Writer
	cfg    config.KafkaConfig
}

var (
	globalProducer *Producer
	producerMu     sync.RWMutex
)

// NewProducer 创建一个指向重试 topic 的 Producer。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.RetryTopic,
		Balancer:     &kafka.Hash{}, // 同一个 key 的任务落同一分区，保持顺序
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Producer{writer: w, cfg: cfg}
}

// SetGlobalProducer 注入全局 Producer，nil 表示重试队列关闭。
func SetGlobalProducer(p *Producer) {
	producerMu.Lock()
	defer producerMu.Unlock()
	globalProducer = p
}

func getGlobalProducer() *Producer {
	producerMu.RLock()
	defer producerMu.RUnlock()
	return globalProducer
}

// Close 关闭底层 Writer。
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Send 序列化任务并写入 Kafka，key 取 UserUUID 保证同一用户的任务有序。
func (p *Producer) Send(ctx context.Context, task RedisTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(task.UserUUID),
		Value: payload,
	}
	return p.writer.WriteMessages(ctx, msg)
}

// SendRedisTask 通过全局 Producer 发送重试任务。
func SendRedisTask(ctx context.Context, task RedisTask) error {
	p := getGlobalProducer()
	if p == nil {
		return ErrProducerDisabled
	}
	return p.Send(ctx, task)
}
