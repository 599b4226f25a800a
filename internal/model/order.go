package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 订单状态，delivered 是唯一的履约完成终态
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

var knownOrderStatuses = map[string]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func IsKnownOrderStatus(status string) bool {
	_, ok := knownOrderStatuses[status]
	return ok
}

func IsFulfilled(status string) bool {
	return status == OrderStatusDelivered
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Order 订单快照
// 订单归订单服务所有，这里只保存事件携带的快照，用于查询用户历史订单
type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID      int64           `gorm:"index;not null" json:"user_id"`
	Total       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	Items       []OrderItem     `gorm:"serializer:json;type:text" json:"items"`
	Status      string          `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"-"`
}

func (Order) TableName() string {
	return "order_snapshot"
}

// DistinctProducts 订单中不同商品的数量
func (o *Order) DistinctProducts() int {
	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		seen[item.ProductID] = struct{}{}
	}
	return len(seen)
}

func (o *Order) HasProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderStatusEvent 订单服务推送的状态变更事件
//
// PreviousStatus 为空表示无法判断迁移来源，按首次到达处理
type OrderStatusEvent struct {
	OrderNo        string    `json:"order_no" binding:"required"`
	UserID         int64     `json:"user_id" binding:"required"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status" binding:"required"`
	OccurredAt     time.Time `json:"occurred_at"`
	Order          Order     `json:"order"`
}
