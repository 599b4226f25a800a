package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("积分不足")
	ErrReceiptNotFound  = errors.New("入账回执不存在")
	ErrRewardNotFound   = errors.New("奖品不存在")
)

// AccountRepository 积分账户
//
// Increase / DeductIfSufficient 只允许账本在事务内调用
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Increase 原子增加积分
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, points int64) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"point_balance": gorm.Expr("point_balance + ?", points),
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// DeductIfSufficient 条件扣减积分
//
// 余额判断放在 UPDATE 的 WHERE 条件里，提交时才校验，并发兑换不会把积分扣成负数
func (r *AccountRepository) DeductIfSufficient(ctx context.Context, tx *gorm.DB, userID int64, points int64) error {
	db := r.conn(tx)
	result := db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND point_balance >= ?", userID, points).
		Updates(map[string]interface{}{
			"point_balance": gorm.Expr("point_balance - ?", points),
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByUserID(ctx, db, userID); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}

	return nil
}
