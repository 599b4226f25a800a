package job

import (
	"context"
	"log/slog"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"gorm.io/gorm"
)

// MessageSender 出箱消息的投递端，生产环境是 *mq.Producer
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 把积分到账通知从出箱表转发到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, sender MessageSender, cfg *config.BusinessConfig) *OutboxSender {
	batchSize := cfg.OutboxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		stopCh:     make(chan struct{}),
		interval:   cfg.OutboxInterval(),
		batchSize:  batchSize,
		maxRetry:   cfg.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	slog.Info("通知发送任务启动", "component", "OutboxSender", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("收到停止信号，任务退出", "component", "OutboxSender")
			return
		case <-s.stopCh:
			slog.Info("任务停止", "component", "OutboxSender")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 处理一批待发送消息，返回发送成功的数量
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		slog.Error("查询待发送消息失败", "component", "OutboxSender", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxSendTotal.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 状态没更新会重发一次，消费方按 notification_id 去重
			slog.Error("更新消息状态失败", "component", "OutboxSender", "id", msg.ID, "error", updateErr)
		}
		return true
	}

	exhausted := msg.RetryCount+1 >= s.maxRetry
	if exhausted {
		metrics.OutboxSendTotal.WithLabelValues("failed").Inc()
		slog.Error("通知超过最大重试次数，标记为失败", "component", "OutboxSender",
			"id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey, "error", err)
	} else {
		metrics.OutboxSendTotal.WithLabelValues("retry").Inc()
		slog.Warn("通知发送失败，稍后重试", "component", "OutboxSender",
			"id", msg.ID, "retry", msg.RetryCount+1, "error", err)
	}

	if recErr := s.outboxRepo.RecordFailure(ctx, msg.ID, err.Error(), exhausted); recErr != nil {
		slog.Error("记录发送失败信息失败", "component", "OutboxSender", "id", msg.ID, "error", recErr)
	}
	return false
}
