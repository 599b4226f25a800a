package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/handler"
	"loyaltysystem/internal/infrastructure/cache"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/infrastructure/lock"
	"loyaltysystem/internal/infrastructure/logging"
	"loyaltysystem/internal/infrastructure/mq"
	"loyaltysystem/internal/job"
	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/idgen"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logging.Setup("loyalty-engine", &cfg.Log)
	metrics.Register()

	// 初始化 ID 生成器
	idgen.Init(cfg.Server.WorkerID)

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		fatal("初始化 MySQL 失败", err)
	}
	if err := service.SeedCatalog(context.Background(), db, &cfg.Loyalty); err != nil {
		fatal("初始化积分目录失败", err)
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		fatal("初始化 Redis 失败", err)
	}
	defer redisClient.Close()
	locker := lock.NewRedisLocker(redisClient, cfg.Business.LockTTL())

	// 初始化 Kafka
	producer, err := mq.InitProducer(&cfg.Kafka)
	if err != nil {
		fatal("初始化 Kafka 生产者失败", err)
	}
	defer producer.Close()

	group, err := mq.InitConsumerGroup(&cfg.Kafka)
	if err != nil {
		fatal("初始化 Kafka 消费组失败", err)
	}
	defer group.Close()

	loc, err := cfg.Loyalty.Location()
	if err != nil {
		fatal("加载时区失败", err)
	}

	ledger := service.NewLedgerService(db)
	notifier := service.NewOutboxNotifier(db, cfg.Kafka.Topic.Notification)
	accrual := service.NewAccrualService(db, ledger, service.NewAccrualEvaluator(loc), notifier, locker)
	redemption := service.NewRedemptionService(db, ledger, locker)
	tiers := service.NewTierService(ledger, repository.NewTierRepository(db))

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, producer, &cfg.Business)
	go outboxSender.Start(ctx)

	consumer := job.NewOrderEventConsumer(group, cfg.Kafka.Topic.OrderEvents, accrual)
	go consumer.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	limiter := handler.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	router := handler.SetupRouter(handler.NewHandler(accrual, redemption, ledger, tiers), limiter)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("服务启动失败", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("服务关闭异常", "error", err)
	}

	slog.Info("服务已关闭")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
