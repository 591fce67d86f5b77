package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"DevTinder/config"
	"DevTinder/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// RedisRetryConsumer 消费重试队列，把失败的缓存写重新执行一遍。
// 执行仍失败且未超过 MaxRetries 时重新入队，超过则丢弃并告警。
type RedisRetryConsumer struct {
	reader   *kafka.Reader
	rdb      *redis.Client
	producer *Producer
}

// NewRedisRetryConsumer 创建重试消费者。
func NewRedisRetryConsumer(cfg config.KafkaConfig, rdb *redis.Client, producer *Producer) *RedisRetryConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.RetryTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
	})
	return &RedisRetryConsumer{
		reader:   reader,
		rdb:      rdb,
		producer: producer,
	}
}

// Start 阻塞消费，ctx 取消时返回。
func (c *RedisRetryConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var task RedisTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			// 消息体损坏，提交掉避免卡住分区
			logger.Error(ctx, "重试任务反序列化失败，丢弃",
				logger.ErrorField("error", err),
			)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		c.handle(ctx, task)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "提交 Kafka offset 失败", logger.ErrorField("error", err))
		}
	}
}

// Close 关闭底层 Reader。
func (c *RedisRetryConsumer) Close() error {
	return c.reader.Close()
}

func (c *RedisRetryConsumer) handle(ctx context.Context, task RedisTask) {
	execCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := c.execute(execCtx, task)
	if err == nil {
		return
	}

	task.RetryCount++
	if task.RetryCount >= task.MaxRetries {
		logger.Error(ctx, "重试任务超过最大次数，放弃",
			logger.ErrorField("error", err),
			logger.String("task_type", string(task.Type)),
			logger.String("command", task.Command),
			logger.String("user_uuid", task.UserUUID),
			logger.Int("retry_count", task.RetryCount),
		)
		return
	}

	logger.Warn(ctx, "重试任务执行失败，重新入队",
		logger.ErrorField("error", err),
		logger.String("command", task.Command),
		logger.Int("retry_count", task.RetryCount),
	)
	if c.producer != nil {
		if sendErr := c.producer.Send(ctx, task); sendErr != nil {
			logger.Error(ctx, "重试任务重新入队失败", logger.ErrorField("error", sendErr))
		}
	}
}

func (c *RedisRetryConsumer) execute(ctx context.Context, task RedisTask) error {
	switch task.Type {
	case CmdSimple:
		args := make([]interface{}, 0, len(task.Args)+1)
		args = append(args, task.Command)
		args = append(args, task.Args...)
		return c.rdb.Do(ctx, args...).Err()
	case CmdLua:
		err := c.rdb.Eval(ctx, task.LuaScript, task.LuaKeys, task.LuaArgs...).Err()
		if errors.Is(err, redis.Nil) {
			// 脚本没有返回值不算失败
			return nil
		}
		return err
	default:
		return errors.New("unknown redis task type: " + string(task.Type))
	}
}
