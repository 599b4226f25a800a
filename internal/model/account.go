package model

import (
	"time"
)

// Account 积分账户表
// 账户由用户资料服务创建，积分引擎只读取 EnrollmentDate，并通过账本修改 PointBalance
type Account struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	PointBalance   int64     `gorm:"not null;default:0" json:"point_balance"` // 当前积分，恒 >= 0
	EnrollmentDate time.Time `gorm:"not null" json:"enrollment_date"`         // 入会日期，周年奖励使用
	Version        int       `gorm:"not null;default:0" json:"version"`       // 每次积分变动 +1
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "loyalty_account"
}
