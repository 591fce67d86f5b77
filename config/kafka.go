package config

import "time"

// KafkaConfig Redis 重试队列使用的 Kafka 配置。
// Brokers 为空时重试队列整体关闭，失败的缓存写只记日志。
type KafkaConfig struct {
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	RetryTopic   string        `json:"retryTopic" yaml:"retryTopic"`     // Redis 重试任务 topic
	GroupID      string        `json:"groupId" yaml:"groupId"`           // 重试消费者组
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"` // 单条消息写入超时
}

// DefaultKafkaConfig 返回本地开发的默认配置。
func DefaultKafkaConfig() KafkaConfig {
	brokers := []string{}
	if addr := envOr("KAFKA_BROKERS", ""); addr != "" {
		brokers = []string{addr}
	}
	return KafkaConfig{
		Brokers:      brokers,
		RetryTopic:   "devtinder.redis.retry",
		GroupID:      "devtinder-redis-retry",
		WriteTimeout: 3 * time.Second,
	}
}
