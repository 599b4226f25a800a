package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier 通知服务。调用方只记录失败，不会因为通知失败回滚积分
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// KeyLocker 按 key 加锁，返回释放函数
type KeyLocker interface {
	Acquire(ctx context.Context, key, owner string) (func(), error)
}

// OutboxNotifier 把通知写入 outbox 表，由 OutboxSender 异步投递到 Kafka
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	topic      string
}

func NewOutboxNotifier(db *gorm.DB, topic string) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      topic,
	}
}

func (n *OutboxNotifier) Notify(ctx context.Context, notification *model.Notification) error {
	// notification_id 供下游去重
	payload := map[string]interface{}{
		"notification_id": uuid.NewString(),
		"user_id":         notification.UserID,
		"title":           notification.Title,
		"body":            notification.Body,
		"deep_link":       notification.DeepLink,
		"created_at":      time.Now().UTC().Format(time.RFC3339),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: strconv.FormatInt(notification.UserID, 10),
		Topic:      n.topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := n.outboxRepo.Create(ctx, msg); err != nil {
		return fmt.Errorf("写入通知消息失败: %w", err)
	}
	return nil
}
