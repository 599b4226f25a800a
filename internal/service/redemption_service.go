package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"loyaltysystem/internal/infrastructure/lock"
	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/idgen"

	"gorm.io/gorm"
)

type RedemptionService struct {
	ledger      *LedgerService
	rewardRepo  *repository.RewardRepository
	accountRepo *repository.AccountRepository
	locker      KeyLocker
}

// NewRedemptionService locker 可以为 nil
func NewRedemptionService(db *gorm.DB, ledger *LedgerService, locker KeyLocker) *RedemptionService {
	return &RedemptionService{
		ledger:      ledger,
		rewardRepo:  repository.NewRewardRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		locker:      locker,
	}
}

type RedemptionResult struct {
	RedemptionNo string `json:"redemption_no"`
	UserID       int64  `json:"user_id"`
	RewardID     string `json:"reward_id"`
	RewardName   string `json:"reward_name"`
	PointCost    int64  `json:"point_cost"`
	Balance      int64  `json:"balance"`
	EntryNo      string `json:"entry_no"`
}

// Redeem 兑换奖品
//
// 余额预检查失败直接返回 ErrInsufficientPoints，不碰账本；
// 真正的余额保证在账本的条件扣减里，并发兑换时以那里的结果为准。
func (s *RedemptionService) Redeem(ctx context.Context, userID int64, rewardID string) (*RedemptionResult, error) {
	reward, err := s.rewardRepo.GetByRewardID(ctx, rewardID)
	if err != nil {
		if errors.Is(err, repository.ErrRewardNotFound) {
			metrics.RedemptionsTotal.WithLabelValues("unknown_reward").Inc()
			return nil, ErrUnknownReward
		}
		return nil, fmt.Errorf("查询奖品失败: %w", err)
	}

	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	if !CanRedeem(account.PointBalance, reward.PointCost) {
		metrics.RedemptionsTotal.WithLabelValues("insufficient").Inc()
		return nil, ErrInsufficientPoints
	}

	redemptionNo := idgen.GenerateRedemptionNo()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, lock.RedeemLockKey(userID), redemptionNo)
		if err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer release()
	}

	entry, err := s.ledger.Redeem(ctx, &RedeemRequest{
		UserID:      userID,
		Cost:        reward.PointCost,
		Description: fmt.Sprintf("Redeemed %s", reward.Name),
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			metrics.RedemptionsTotal.WithLabelValues("insufficient").Inc()
		} else {
			metrics.RedemptionsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()
	slog.Info("积分兑换成功", "component", "RedemptionService",
		"redemption_no", redemptionNo, "user_id", userID, "reward_id", rewardID, "cost", reward.PointCost, "balance", entry.BalanceAfter)

	return &RedemptionResult{
		RedemptionNo: redemptionNo,
		UserID:       userID,
		RewardID:     reward.RewardID,
		RewardName:   reward.Name,
		PointCost:    reward.PointCost,
		Balance:      entry.BalanceAfter,
		EntryNo:      entry.EntryNo,
	}, nil
}

func (s *RedemptionService) Rewards(ctx context.Context) ([]*model.RewardCatalogEntry, error) {
	return s.rewardRepo.List(ctx)
}
