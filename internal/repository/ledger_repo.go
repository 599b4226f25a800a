package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository 积分流水和入账回执
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	return r.conn(tx).WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// SumPoints 用户全部流水积分之和，对账使用
func (r *LedgerRepository) SumPoints(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) CreateReceipt(ctx context.Context, tx *gorm.DB, receipt *model.AccrualReceipt) error {
	return r.conn(tx).WithContext(ctx).Create(receipt).Error
}

func (r *LedgerRepository) GetReceiptByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.AccrualReceipt, error) {
	var receipt model.AccrualReceipt
	err := r.conn(tx).WithContext(ctx).Where("order_no = ?", orderNo).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}
