package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerService 积分账本
//
// 账户积分只能通过 Accrue / Redeem 修改。余额变更、流水、入账回执在同一个事务里提交，
// 任一步失败整体回滚。本层不做重试。
type LedgerService struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

type AccrueRequest struct {
	UserID      int64
	Points      int64
	Description string
	// OrderNo 非空时同时写入入账回执，同一订单只能成功一次
	OrderNo string
}

type RedeemRequest struct {
	UserID      int64
	Cost        int64
	Description string
}

// Accrue 增加积分并追加流水
// points <= 0 时不做任何写入，返回 nil, nil
func (s *LedgerService) Accrue(ctx context.Context, req *AccrueRequest) (*model.LedgerEntry, error) {
	if req.Points <= 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.LedgerWriteDuration.WithLabelValues(model.LedgerTypeAccrual).Observe(time.Since(start).Seconds())
	}()

	var entry *model.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.OrderNo != "" {
			_, err := s.ledgerRepo.GetReceiptByOrderNo(ctx, tx, req.OrderNo)
			if err == nil {
				return ErrDuplicateTrigger
			}
			if !errors.Is(err, repository.ErrReceiptNotFound) {
				return fmt.Errorf("查询入账回执失败: %w", err)
			}
		}

		if err := s.accountRepo.Increase(ctx, tx, req.UserID, req.Points); err != nil {
			return err
		}

		account, err := s.accountRepo.GetByUserID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		entry = &model.LedgerEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			UserID:        req.UserID,
			OrderNo:       req.OrderNo,
			Points:        req.Points,
			Type:          model.LedgerTypeAccrual,
			Description:   req.Description,
			BalanceBefore: account.PointBalance - req.Points,
			BalanceAfter:  account.PointBalance,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if req.OrderNo != "" {
			receipt := &model.AccrualReceipt{
				OrderNo: req.OrderNo,
				UserID:  req.UserID,
				EntryNo: entry.EntryNo,
				Points:  req.Points,
			}
			if err := s.ledgerRepo.CreateReceipt(ctx, tx, receipt); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrDuplicateTrigger
				}
				return fmt.Errorf("写入入账回执失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	return entry, nil
}

// Redeem 扣减积分并追加流水
//
// 扣减条件在 SQL 里校验，调用方的余额预检查只是快速失败
func (s *LedgerService) Redeem(ctx context.Context, req *RedeemRequest) (*model.LedgerEntry, error) {
	if req.Cost <= 0 {
		return nil, fmt.Errorf("兑换积分必须大于0: %d", req.Cost)
	}

	start := time.Now()
	defer func() {
		metrics.LedgerWriteDuration.WithLabelValues(model.LedgerTypeRedemption).Observe(time.Since(start).Seconds())
	}()

	var entry *model.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.DeductIfSufficient(ctx, tx, req.UserID, req.Cost); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientPoints
			}
			return err
		}

		account, err := s.accountRepo.GetByUserID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		entry = &model.LedgerEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			UserID:        req.UserID,
			Points:        -req.Cost,
			Type:          model.LedgerTypeRedemption,
			Description:   req.Description,
			BalanceBefore: account.PointBalance + req.Cost,
			BalanceAfter:  account.PointBalance,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	return entry, nil
}

// ledgerError 业务错误原样返回，其余统一包装为 ErrLedgerWriteFailure
func ledgerError(err error) error {
	switch {
	case errors.Is(err, ErrDuplicateTrigger),
		errors.Is(err, ErrInsufficientPoints),
		errors.Is(err, ErrAccountNotFound):
		return err
	}
	return fmt.Errorf("%w: %w", ErrLedgerWriteFailure, err)
}

func (s *LedgerService) Balance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	return account.PointBalance, nil
}

func (s *LedgerService) Activity(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if _, err := s.accountRepo.GetByUserID(ctx, nil, userID); err != nil {
		return nil, 0, err
	}
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// Reconciliation 余额与流水合计对账结果
type Reconciliation struct {
	UserID     int64 `json:"user_id"`
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (*Reconciliation, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerRepo.SumPoints(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{
		UserID:     userID,
		Balance:    balance,
		LedgerSum:  sum,
		Consistent: balance == sum,
	}, nil
}
