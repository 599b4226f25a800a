package service

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"loyaltysystem/internal/metrics"
	"loyaltysystem/internal/model"

	"github.com/shopspring/decimal"
)

// AccrualEvaluator 计算一笔完成订单应得的积分
//
// 两阶段：先累加所有加分规则，再依次乘以当天生效的倍数规则，最后向下取整。
// 纯计算，不读写存储。
type AccrualEvaluator struct {
	loc *time.Location
	now func() time.Time
}

func NewAccrualEvaluator(loc *time.Location) *AccrualEvaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &AccrualEvaluator{loc: loc, now: time.Now}
}

// RuleContribution 单条规则的贡献，写入日志便于排查
type RuleContribution struct {
	RuleID int64  `json:"rule_id"`
	Name   string `json:"name"`
	Points int64  `json:"points,omitempty"`
	// Multiplier 仅倍数规则有值
	Multiplier string `json:"multiplier,omitempty"`
}

type AccrualBreakdown struct {
	Points        int64
	Additive      int64
	Contributions []RuleContribution
	Skipped       []int64 // 配置不合法被跳过的规则
}

// Evaluate 返回订单应得积分，结果 >= 0
func (e *AccrualEvaluator) Evaluate(order *model.Order, account *model.Account, rules []*model.RuleRecord, history []*model.Order) int64 {
	return e.EvaluateDetailed(order, account, rules, history).Points
}

func (e *AccrualEvaluator) EvaluateDetailed(order *model.Order, account *model.Account, rules []*model.RuleRecord, history []*model.Order) *AccrualBreakdown {
	breakdown := &AccrualBreakdown{}
	completedAt := e.completionTime(order)

	var multipliers []model.MultiplierPerDay
	running := decimal.Zero

	for _, record := range rules {
		if record == nil || !record.IsActive {
			continue
		}
		rule, err := record.Decode()
		if err != nil {
			e.skip(breakdown, record.ID, err)
			continue
		}

		if m, ok := rule.(model.MultiplierPerDay); ok {
			if m.Day == completedAt.Weekday() {
				multipliers = append(multipliers, m)
			}
			continue
		}

		points, err := e.contribution(rule, order, account, history, completedAt)
		if err != nil {
			e.skip(breakdown, record.ID, err)
			continue
		}
		if points > 0 {
			running = running.Add(decimal.NewFromInt(points))
			breakdown.Contributions = append(breakdown.Contributions, RuleContribution{
				RuleID: rule.RuleID(),
				Name:   rule.RuleName(),
				Points: points,
			})
		}
	}
	breakdown.Additive = running.IntPart()

	// 倍数规则按 id 升序依次相乘，保证结果可复现
	sort.SliceStable(multipliers, func(i, j int) bool {
		return multipliers[i].ID < multipliers[j].ID
	})
	for _, m := range multipliers {
		running = running.Mul(m.Multiplier)
		breakdown.Contributions = append(breakdown.Contributions, RuleContribution{
			RuleID:     m.ID,
			Name:       m.Name,
			Multiplier: m.Multiplier.String(),
		})
	}

	points := running.Floor().IntPart()
	if points < 0 {
		points = 0
	}
	breakdown.Points = points
	return breakdown
}

// contribution 加分规则的积分，新增规则类型时必须在这里补充分支
func (e *AccrualEvaluator) contribution(rule model.Rule, order *model.Order, account *model.Account, history []*model.Order, completedAt time.Time) (int64, error) {
	switch r := rule.(type) {
	case model.PointsPerDollar:
		units := order.Total.Div(r.PerAmount).Floor().IntPart()
		if units <= 0 {
			return 0, nil
		}
		return units * r.Points, nil

	case model.BonusForAmount:
		if order.Total.GreaterThan(r.Amount) {
			return r.Points, nil
		}
		return 0, nil

	case model.FixedPointsPerOrder:
		return r.Points, nil

	case model.BonusForProduct:
		if order.HasProduct(r.ProductID) {
			return r.Points, nil
		}
		return 0, nil

	case model.FirstOrderBonus:
		if isFirstDeliveredOrder(order, history) {
			return r.Points, nil
		}
		return 0, nil

	case model.AnniversaryBonus:
		if account == nil || account.EnrollmentDate.IsZero() {
			return 0, nil
		}
		if completedAt.Month() == account.EnrollmentDate.In(e.loc).Month() {
			return r.Points, nil
		}
		return 0, nil

	case model.BonusForVariety:
		if int64(order.DistinctProducts()) > r.MinDistinct {
			return r.Points, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("%w: rule=%d 不支持的规则类型 %T", model.ErrInvalidRuleConfiguration, rule.RuleID(), rule)
}

// isFirstDeliveredOrder 用户已完成的订单恰好只有一笔，且就是当前订单
func isFirstDeliveredOrder(order *model.Order, history []*model.Order) bool {
	var delivered []*model.Order
	for _, o := range history {
		if o != nil && model.IsFulfilled(o.Status) {
			delivered = append(delivered, o)
		}
	}
	return len(delivered) == 1 && delivered[0].OrderNo == order.OrderNo
}

func (e *AccrualEvaluator) completionTime(order *model.Order) time.Time {
	if order.CompletedAt != nil && !order.CompletedAt.IsZero() {
		return order.CompletedAt.In(e.loc)
	}
	return e.now().In(e.loc)
}

func (e *AccrualEvaluator) skip(b *AccrualBreakdown, ruleID int64, err error) {
	b.Skipped = append(b.Skipped, ruleID)
	metrics.InvalidRulesTotal.Inc()
	slog.Warn("积分规则配置不合法，已跳过", "component", "AccrualEvaluator", "rule_id", ruleID, "error", err)
}
