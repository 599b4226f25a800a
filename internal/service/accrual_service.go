package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loyaltysystem/internal/infrastructure/lock"
	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const activityDeepLink = "app://loyalty/activity"

// AccrualService 处理订单状态事件：Trigger Gate -> 规则计算 -> 账本入账 -> 通知
type AccrualService struct {
	gate        TriggerGate
	evaluator   *AccrualEvaluator
	ledger      *LedgerService
	orderRepo   *repository.OrderRepository
	ruleRepo    *repository.RuleRepository
	accountRepo *repository.AccountRepository
	notifier    Notifier
	locker      KeyLocker
}

// NewAccrualService notifier、locker 可以为 nil
func NewAccrualService(db *gorm.DB, ledger *LedgerService, evaluator *AccrualEvaluator, notifier Notifier, locker KeyLocker) *AccrualService {
	return &AccrualService{
		evaluator:   evaluator,
		ledger:      ledger,
		orderRepo:   repository.NewOrderRepository(db),
		ruleRepo:    repository.NewRuleRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		notifier:    notifier,
		locker:      locker,
	}
}

// AccrualOutcome 一次事件处理的结果
type AccrualOutcome struct {
	OrderNo  string `json:"order_no"`
	UserID   int64  `json:"user_id"`
	Decision string `json:"decision"`
	Points   int64  `json:"points"`
	Balance  int64  `json:"balance,omitempty"`
	EntryNo  string `json:"entry_no,omitempty"`
	// Duplicate 订单此前已经入账，本次被忽略
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandleOrderEvent 处理一条订单状态变更事件
//
// 只有 Trigger Gate 判定为 fire 的事件才会计算积分；同一订单重复投递时由入账回执去重，
// 返回 Duplicate=true 而不是错误。通过 Gate 之后的失败会记录错误日志并返回，不做自动补偿。
func (s *AccrualService) HandleOrderEvent(ctx context.Context, event *model.OrderStatusEvent) (*AccrualOutcome, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	decision := s.gate.Decide(event.PreviousStatus, event.NewStatus)
	metrics.TriggerDecisionsTotal.WithLabelValues(decision.String()).Inc()

	outcome := &AccrualOutcome{
		OrderNo:  event.OrderNo,
		UserID:   event.UserID,
		Decision: decision.String(),
	}

	order := snapshotFromEvent(event)
	if err := s.orderRepo.Upsert(ctx, order); err != nil {
		return nil, fmt.Errorf("保存订单快照失败: %w", err)
	}

	if decision != DecisionFire {
		slog.Debug("订单状态变更无需入账", "component", "TriggerGate",
			"order_no", event.OrderNo, "previous", event.PreviousStatus, "new", event.NewStatus, "decision", decision.String())
		return outcome, nil
	}

	if s.locker != nil {
		// 每次投递独立的持有者标识，锁过期被别人拿走后不会误删
		release, err := s.locker.Acquire(ctx, lock.AccrueLockKey(event.OrderNo), uuid.NewString())
		if err != nil {
			return nil, s.fail(event, fmt.Errorf("系统繁忙，请稍后重试: %w", err))
		}
		defer release()
	}

	account, err := s.accountRepo.GetByUserID(ctx, nil, event.UserID)
	if err != nil {
		return nil, s.fail(event, err)
	}

	rules, err := s.ruleRepo.ListActive(ctx)
	if err != nil {
		return nil, s.fail(event, fmt.Errorf("读取积分规则失败: %w", err))
	}

	history, err := s.orderRepo.ListByUserIDAndStatus(ctx, event.UserID, model.OrderStatusDelivered)
	if err != nil {
		return nil, s.fail(event, fmt.Errorf("查询历史订单失败: %w", err))
	}

	breakdown := s.evaluator.EvaluateDetailed(order, account, rules, history)
	outcome.Points = breakdown.Points
	outcome.Balance = account.PointBalance
	if breakdown.Points <= 0 {
		slog.Info("订单未命中任何积分规则", "component", "AccrualService", "order_no", event.OrderNo, "user_id", event.UserID)
		return outcome, nil
	}

	entry, err := s.ledger.Accrue(ctx, &AccrueRequest{
		UserID:      event.UserID,
		Points:      breakdown.Points,
		Description: fmt.Sprintf("Earned %d points for order %s", breakdown.Points, event.OrderNo),
		OrderNo:     event.OrderNo,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateTrigger) {
			slog.Info("订单已入账，忽略重复触发", "component", "AccrualService", "order_no", event.OrderNo)
			metrics.TriggerDecisionsTotal.WithLabelValues("duplicate").Inc()
			outcome.Points = 0
			outcome.Duplicate = true
			return outcome, nil
		}
		return nil, s.fail(event, err)
	}

	outcome.Balance = entry.BalanceAfter
	outcome.EntryNo = entry.EntryNo
	metrics.AccrualPointsTotal.Add(float64(entry.Points))
	slog.Info("订单积分入账成功", "component", "AccrualService",
		"order_no", event.OrderNo, "user_id", event.UserID, "points", entry.Points,
		"balance", entry.BalanceAfter, "rules", breakdown.Contributions, "skipped_rules", breakdown.Skipped)

	s.notify(ctx, event, entry)
	return outcome, nil
}

// notify 尽力而为，失败只打日志
func (s *AccrualService) notify(ctx context.Context, event *model.OrderStatusEvent, entry *model.LedgerEntry) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, &model.Notification{
		UserID:   event.UserID,
		Title:    fmt.Sprintf("You earned %d points", entry.Points),
		Body:     fmt.Sprintf("Order %s earned %d points. Your balance is now %d.", event.OrderNo, entry.Points, entry.BalanceAfter),
		DeepLink: activityDeepLink,
	})
	if err != nil {
		slog.Warn("积分通知写入失败", "component", "AccrualService", "order_no", event.OrderNo, "error", err)
	}
}

func (s *AccrualService) fail(event *model.OrderStatusEvent, err error) error {
	metrics.AccrualFailuresTotal.Inc()
	slog.Error("订单积分入账失败", "component", "AccrualService",
		"order_no", event.OrderNo, "user_id", event.UserID, "error", err)
	return err
}

func validateEvent(event *model.OrderStatusEvent) error {
	if event == nil {
		return fmt.Errorf("%w: 事件为空", ErrInvalidEvent)
	}
	if event.OrderNo == "" || event.UserID <= 0 {
		return fmt.Errorf("%w: 缺少 order_no 或 user_id", ErrInvalidEvent)
	}
	if !model.IsKnownOrderStatus(event.NewStatus) {
		return fmt.Errorf("%w: 未知订单状态 %q", ErrInvalidEvent, event.NewStatus)
	}
	if event.Order.OrderNo != "" && event.Order.OrderNo != event.OrderNo {
		return fmt.Errorf("%w: 订单快照与事件订单号不一致", ErrInvalidEvent)
	}
	if event.Order.Total.IsNegative() {
		return fmt.Errorf("%w: 订单金额不能为负数", ErrInvalidEvent)
	}
	return nil
}

// snapshotFromEvent 事件里的订单快照以事件头为准补齐
func snapshotFromEvent(event *model.OrderStatusEvent) *model.Order {
	order := event.Order
	order.ID = 0
	order.OrderNo = event.OrderNo
	order.UserID = event.UserID
	order.Status = event.NewStatus

	if model.IsFulfilled(event.NewStatus) && order.CompletedAt == nil {
		completedAt := event.OccurredAt
		if completedAt.IsZero() {
			completedAt = time.Now()
		}
		order.CompletedAt = &completedAt
	}
	return &order
}
