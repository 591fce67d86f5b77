package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"DevTinder/apps/server/internal/handler"
	"DevTinder/apps/server/internal/manager"
	"DevTinder/apps/server/internal/repository"
	"DevTinder/apps/server/internal/router"
	v1 "DevTinder/apps/server/internal/router/v1"
	"DevTinder/apps/server/internal/server"
	"DevTinder/apps/server/internal/service"
	"DevTinder/apps/server/internal/svc"
	"DevTinder/apps/server/mq"
	"DevTinder/config"
	"DevTinder/model"
	"DevTinder/pkg/async"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/mysql"
	pkgredis "DevTinder/pkg/redis"
	"DevTinder/pkg/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 初始化日志
	logCfg := config.DefaultLoggerConfig()
	zl, err := logger.Build(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.ReplaceGlobal(zl)
	defer zl.Sync()

	// 2. 初始化MySQL
	dbCfg := config.DefaultDBConfig()
	db, err := mysql.Build(dbCfg)
	if err != nil {
		log.Fatalf("初始化MySQL失败: %v", err)
	}
	mysql.ReplaceGlobal(db)

	if err := db.AutoMigrate(&model.Connection{}, &model.Message{}); err != nil {
		log.Fatalf("初始化表结构失败: %v", err)
	}

	// 3. 初始化Redis
	redisCfg := config.DefaultRedisConfig()
	// 调整 Redis 读写超时时间为 50ms（快速失败）
	redisCfg.ReadTimeout = 50 * time.Millisecond
	redisCfg.WriteTimeout = 50 * time.Millisecond

	redisClient, err := pkgredis.Build(redisCfg)
	if err != nil {
		// Redis 初始化失败不阻塞启动（降级到只用 MySQL）
		logger.Warn(ctx, "Redis 初始化失败，将降级到 MySQL-Only 模式",
			logger.ErrorField("error", err),
		)
		redisClient = nil
	} else {
		pkgredis.ReplaceGlobal(redisClient)
		logger.Info(ctx, "Redis 初始化成功",
			logger.String("addr", redisCfg.Addr),
		)
	}

	// 4. 初始化 Kafka（仅在 Redis 可用时启动，重试队列只服务缓存回写）
	if redisClient != nil {
		kafkaCfg := config.DefaultKafkaConfig()
		if len(kafkaCfg.Brokers) > 0 {
			kafkaProducer := mq.NewProducer(kafkaCfg)
			mq.SetGlobalProducer(kafkaProducer)
			logger.Info(ctx, "Kafka Producer 初始化成功",
				logger.String("brokers", kafkaCfg.Brokers[0]),
				logger.String("topic", kafkaCfg.RetryTopic),
			)

			redisConsumer := mq.NewRedisRetryConsumer(kafkaCfg, redisClient, kafkaProducer)
			go func() {
				logger.Info(ctx, "Redis 重试消费者启动中",
					logger.String("topic", kafkaCfg.RetryTopic),
					logger.String("group_id", kafkaCfg.GroupID),
				)
				if err := redisConsumer.Start(ctx); err != nil {
					logger.Error(ctx, "Redis 重试消费者运行错误", logger.ErrorField("error", err))
				}
			}()

			defer func() {
				if err := kafkaProducer.Close(); err != nil {
					logger.Error(ctx, "关闭 Kafka Producer 失败", logger.ErrorField("error", err))
				}
				if err := redisConsumer.Close(); err != nil {
					logger.Error(ctx, "关闭 Redis 重试消费者失败", logger.ErrorField("error", err))
				}
			}()
		} else {
			logger.Warn(ctx, "未配置 Kafka Brokers，缓存失败重试队列关闭")
		}
	}

	// 5. 初始化小组件
	if err := util.InitSnowflake(); err != nil {
		log.Fatalf("初始化雪花算法失败: %v", err)
	}
	if err := async.Init(config.DefaultAsyncConfig()); err != nil {
		log.Fatalf("初始化协程池失败: %v", err)
	}
	defer async.Release()
	// 异步任务继承调用方的 trace_id / user_uuid，保证缓存回写日志可追踪
	async.SetContextPropagator(func(parent context.Context) context.Context {
		child := context.Background()
		if v := parent.Value("trace_id"); v != nil {
			child = context.WithValue(child, "trace_id", v)
		}
		if v := parent.Value("user_uuid"); v != nil {
			child = context.WithValue(child, "user_uuid", v)
		}
		return child
	})

	// 6. 组装依赖 - Repository 层
	connRepo := repository.NewConnectionRepository(db, redisClient)
	msgRepo := repository.NewMessageRepository(db, redisClient)

	// 7. 组装依赖 - Service 层
	connService := service.NewConnectionService(connRepo)
	msgService := service.NewMessageService(msgRepo, connRepo)

	// 8. 组装依赖 - 实时链路与 Handler 层
	registry := manager.NewSessionRegistry()
	chatSvc := svc.NewChatService(registry, msgService, redisClient)

	connHandler := v1.NewConnectionHandler(connService)
	msgHandler := v1.NewMessageHandler(msgService)
	wsHandler := handler.NewWSHandler(registry, chatSvc)

	// 9. 启动 HTTP Server
	srvCfg := server.DefaultConfig()
	r := router.InitRouter(connHandler, msgHandler, wsHandler)
	srv := server.New(srvCfg, r)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "服务启动成功", logger.String("address", srvCfg.Addr))
		errCh <- srv.Start()
	}()

	// 10. 等待退出信号并优雅停机
	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "收到退出信号，开始优雅停机")
	case err := <-errCh:
		logger.Error(context.Background(), "HTTP 服务异常退出", logger.ErrorField("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 先停止新连接接入，再关闭存量 WebSocket 会话
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP 服务关闭失败", logger.ErrorField("error", err))
	}
	registry.Shutdown()

	logger.Info(context.Background(), "服务已退出")
}
