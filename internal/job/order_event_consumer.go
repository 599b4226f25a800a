package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/service"

	"github.com/IBM/sarama"
)

// OrderEventHandler 订单事件的处理端，生产环境是 *service.AccrualService
type OrderEventHandler interface {
	HandleOrderEvent(ctx context.Context, event *model.OrderStatusEvent) (*service.AccrualOutcome, error)
}

// OrderEventConsumer 消费订单状态事件并触发积分入账
//
// 消息处理完会提交位点，业务失败只记录日志；会话取消导致的失败不提交，等待重新投递。
// 重复投递由 Trigger Gate 和入账回执兜底。
type OrderEventConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler OrderEventHandler
}

func NewOrderEventConsumer(group sarama.ConsumerGroup, topic string, handler OrderEventHandler) *OrderEventConsumer {
	return &OrderEventConsumer{group: group, topic: topic, handler: handler}
}

func (c *OrderEventConsumer) Start(ctx context.Context) {
	slog.Info("订单事件消费启动", "component", "OrderEventConsumer", "topic", c.topic)

	go func() {
		for err := range c.group.Errors() {
			slog.Error("消费组错误", "component", "OrderEventConsumer", "error", err)
		}
	}()

	for {
		// rebalance 之后 Consume 会返回，需要重新加入
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				slog.Info("消费组已关闭，任务退出", "component", "OrderEventConsumer")
				return
			}
			slog.Error("消费订单事件失败", "component", "OrderEventConsumer", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			slog.Info("收到停止信号，任务退出", "component", "OrderEventConsumer")
			return
		}
	}
}

func (c *OrderEventConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *OrderEventConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *OrderEventConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			err := c.handleMessage(session.Context(), msg)
			if err != nil && session.Context().Err() != nil {
				// 会话被取消（rebalance 或停机），不提交位点，由下一次分配重新投递
				slog.Warn("消费会话已取消，消息未提交", "component", "OrderEventConsumer",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *OrderEventConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event model.OrderStatusEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		slog.Warn("订单事件格式错误，已跳过", "component", "OrderEventConsumer",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
		return fmt.Errorf("%w: %v", service.ErrInvalidEvent, err)
	}

	outcome, err := c.handler.HandleOrderEvent(ctx, &event)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEvent) {
			slog.Warn("订单事件不合法，已跳过", "component", "OrderEventConsumer",
				"order_no", event.OrderNo, "error", err)
		} else {
			slog.Error("订单事件处理失败", "component", "OrderEventConsumer",
				"order_no", event.OrderNo, "user_id", event.UserID, "error", err)
		}
		return err
	}

	slog.Debug("订单事件处理完成", "component", "OrderEventConsumer",
		"order_no", outcome.OrderNo, "decision", outcome.Decision, "points", outcome.Points, "duplicate", outcome.Duplicate)
	return nil
}
