package repository

import (
	"context"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 订单快照
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// snapshotColumns 快照更新时覆盖的列
var snapshotColumns = []string{"user_id", "total", "items", "status", "completed_at", "updated_at"}

// Upsert 保存事件携带的订单快照
//
// delivered 是终态，已履约的快照不会被迟到的非终态事件改回去，
// 否则该订单会从履约历史里消失，首单奖励会被再次发放。
func (r *OrderRepository) Upsert(ctx context.Context, order *model.Order) error {
	db := r.db.WithContext(ctx)

	updated, err := r.updateSnapshot(db, order)
	if err != nil || updated {
		return err
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_no"}},
		DoNothing: true,
	}).Create(order)
	if result.Error != nil || result.RowsAffected > 0 {
		return result.Error
	}

	// 并发插入时另一条事件先落库，再按条件更新一次
	_, err = r.updateSnapshot(db, order)
	return err
}

func (r *OrderRepository) updateSnapshot(db *gorm.DB, order *model.Order) (bool, error) {
	result := db.Model(&model.Order{}).
		Where("order_no = ?", order.OrderNo).
		Where("status <> ? OR ? = ?", model.OrderStatusDelivered, order.Status, model.OrderStatusDelivered).
		Select(snapshotColumns).
		Updates(order)
	return result.RowsAffected > 0, result.Error
}

// ListByUserIDAndStatus 查询用户指定状态的全部订单
func (r *OrderRepository) ListByUserIDAndStatus(ctx context.Context, userID int64, status string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}
