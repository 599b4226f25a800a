package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RuleTypePointsPerDollar     = "pointsPerDollar"
	RuleTypeBonusForAmount      = "bonusForAmount"
	RuleTypeFixedPointsPerOrder = "fixedPointsPerOrder"
	RuleTypeBonusForProduct     = "bonusForProduct"
	RuleTypeFirstOrderBonus     = "firstOrderBonus"
	RuleTypeAnniversaryBonus    = "anniversaryBonus"
	RuleTypeBonusForVariety     = "bonusForVariety"
	RuleTypeMultiplierPerDay    = "multiplierPerDay"
)

var ErrInvalidRuleConfiguration = errors.New("积分规则配置不合法")

// RuleRecord 积分规则表
//
// 表结构是扁平的，各类型只使用自己需要的字段，读取后通过 Decode 转成具体规则
type RuleRecord struct {
	ID         int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string           `gorm:"type:varchar(128);not null" json:"name"`
	RuleType   string           `gorm:"type:varchar(32);index;not null" json:"rule_type"`
	IsActive   bool             `gorm:"index;not null;default:false" json:"is_active"`
	Points     int64            `gorm:"not null;default:0" json:"points"`
	PerAmount  *decimal.Decimal `gorm:"type:decimal(18,2)" json:"per_amount,omitempty"`
	Amount     *decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount,omitempty"`
	ProductID  string           `gorm:"type:varchar(64)" json:"product_id,omitempty"`
	DayOfWeek  *int             `json:"day_of_week,omitempty"` // 0=周日 ... 6=周六
	Multiplier *decimal.Decimal `gorm:"type:decimal(10,4)" json:"multiplier,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RuleRecord) TableName() string {
	return "loyalty_rule"
}

// Rule 解码后的积分规则，每种类型只携带自己的参数
type Rule interface {
	RuleID() int64
	RuleName() string
	isRule()
}

type RuleMeta struct {
	ID   int64
	Name string
}

func (m RuleMeta) RuleID() int64    { return m.ID }
func (m RuleMeta) RuleName() string { return m.Name }
func (RuleMeta) isRule()            {}

// PointsPerDollar 每满 PerAmount 金额得 Points 积分
type PointsPerDollar struct {
	RuleMeta
	Points    int64
	PerAmount decimal.Decimal
}

// BonusForAmount 订单金额严格大于 Amount 时奖励
type BonusForAmount struct {
	RuleMeta
	Points int64
	Amount decimal.Decimal
}

type FixedPointsPerOrder struct {
	RuleMeta
	Points int64
}

type BonusForProduct struct {
	RuleMeta
	Points    int64
	ProductID string
}

// FirstOrderBonus 用户第一笔完成的订单奖励
type FirstOrderBonus struct {
	RuleMeta
	Points int64
}

// AnniversaryBonus 完成月份与入会月份相同时奖励
type AnniversaryBonus struct {
	RuleMeta
	Points int64
}

// BonusForVariety 不同商品数量超过 MinDistinct 时奖励
type BonusForVariety struct {
	RuleMeta
	Points      int64
	MinDistinct int64
}

// MultiplierPerDay 在指定星期几把累计积分乘以 Multiplier
type MultiplierPerDay struct {
	RuleMeta
	Day        time.Weekday
	Multiplier decimal.Decimal
}

// Decode 把规则表记录转换为具体规则
// 参数与类型不匹配时返回 ErrInvalidRuleConfiguration
func (r *RuleRecord) Decode() (Rule, error) {
	meta := RuleMeta{ID: r.ID, Name: r.Name}

	if r.RuleType != RuleTypeMultiplierPerDay && r.Points < 0 {
		return nil, invalidRule(r, "points 不能为负数")
	}

	switch r.RuleType {
	case RuleTypePointsPerDollar:
		if r.PerAmount == nil || !r.PerAmount.IsPositive() {
			return nil, invalidRule(r, "缺少 per_amount 或 per_amount <= 0")
		}
		return PointsPerDollar{RuleMeta: meta, Points: r.Points, PerAmount: *r.PerAmount}, nil

	case RuleTypeBonusForAmount:
		if r.Amount == nil || r.Amount.IsNegative() {
			return nil, invalidRule(r, "缺少 amount 或 amount < 0")
		}
		return BonusForAmount{RuleMeta: meta, Points: r.Points, Amount: *r.Amount}, nil

	case RuleTypeFixedPointsPerOrder:
		return FixedPointsPerOrder{RuleMeta: meta, Points: r.Points}, nil

	case RuleTypeBonusForProduct:
		if r.ProductID == "" {
			return nil, invalidRule(r, "缺少 product_id")
		}
		return BonusForProduct{RuleMeta: meta, Points: r.Points, ProductID: r.ProductID}, nil

	case RuleTypeFirstOrderBonus:
		return FirstOrderBonus{RuleMeta: meta, Points: r.Points}, nil

	case RuleTypeAnniversaryBonus:
		return AnniversaryBonus{RuleMeta: meta, Points: r.Points}, nil

	case RuleTypeBonusForVariety:
		if r.Amount == nil || r.Amount.IsNegative() || !r.Amount.Equal(r.Amount.Floor()) {
			return nil, invalidRule(r, "amount 必须是非负整数")
		}
		return BonusForVariety{RuleMeta: meta, Points: r.Points, MinDistinct: r.Amount.IntPart()}, nil

	case RuleTypeMultiplierPerDay:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return nil, invalidRule(r, "day_of_week 必须在 0-6 之间")
		}
		if r.Multiplier == nil || r.Multiplier.IsNegative() {
			return nil, invalidRule(r, "缺少 multiplier 或 multiplier < 0")
		}
		return MultiplierPerDay{RuleMeta: meta, Day: time.Weekday(*r.DayOfWeek), Multiplier: *r.Multiplier}, nil
	}

	return nil, invalidRule(r, "未知规则类型")
}

func invalidRule(r *RuleRecord, reason string) error {
	return fmt.Errorf("%w: rule=%d type=%s: %s", ErrInvalidRuleConfiguration, r.ID, r.RuleType, reason)
}
