package model

import (
	"time"
)

const (
	LedgerTypeAccrual    = "ACCRUAL"    // 订单积分入账
	LedgerTypeRedemption = "REDEMPTION" // 兑换扣减
)

// LedgerEntry 积分流水表
//
// 只追加，不修改，不删除。账户积分余额始终等于该账户全部流水 Points 之和
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	OrderNo       string    `gorm:"type:varchar(64);index" json:"order_no,omitempty"`
	Points        int64     `gorm:"not null" json:"points"` // 正数入账，负数兑换
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// AccrualReceipt 订单积分回执，与入账流水同事务写入
// order_no 唯一约束保证同一订单最多入账一次
type AccrualReceipt struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	OrderNo   string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    int64     `gorm:"index;not null"`
	EntryNo   string    `gorm:"type:varchar(64);not null"`
	Points    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AccrualReceipt) TableName() string {
	return "accrual_receipt"
}
