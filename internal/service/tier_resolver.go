package service

import (
	"context"
	"sort"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
)

// TierStatus 账户当前等级与升级进度
type TierStatus struct {
	Balance  int64       `json:"balance"`
	Current  *model.Tier `json:"current_tier"`
	Next     *model.Tier `json:"next_tier"`
	Progress float64     `json:"progress_percent"`
}

// ResolveTier 根据积分余额推导等级
//
// 等级表为空时 Current/Next 都为 nil；余额低于最低门槛时 Current 为 nil，进度从 0 开始算。
func ResolveTier(balance int64, tiers []model.Tier) TierStatus {
	status := TierStatus{Balance: balance}
	if len(tiers) == 0 {
		return status
	}

	sorted := make([]model.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPoints < sorted[j].MinPoints
	})

	for i := range sorted {
		if sorted[i].MinPoints <= balance {
			status.Current = &sorted[i]
			continue
		}
		status.Next = &sorted[i]
		break
	}

	if status.Next == nil {
		status.Progress = 100
		return status
	}

	var base int64
	if status.Current != nil {
		base = status.Current.MinPoints
	}
	span := status.Next.MinPoints - base
	if span <= 0 {
		return status
	}
	progress := float64(balance-base) / float64(span) * 100
	switch {
	case progress < 0:
		progress = 0
	case progress > 100:
		progress = 100
	}
	status.Progress = progress
	return status
}

// CanRedeem 兑换前的余额校验
func CanRedeem(balance, cost int64) bool {
	return balance >= cost
}

// TierService 查询账户等级
type TierService struct {
	ledger   *LedgerService
	tierRepo *repository.TierRepository
}

func NewTierService(ledger *LedgerService, tierRepo *repository.TierRepository) *TierService {
	return &TierService{ledger: ledger, tierRepo: tierRepo}
}

func (s *TierService) Status(ctx context.Context, userID int64) (*TierStatus, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	tiers, err := s.tierRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	status := ResolveTier(balance, tiers)
	return &status, nil
}
