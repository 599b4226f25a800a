package service

import (
	"loyaltysystem/internal/model"
)

// Decision Trigger Gate 的判定结果
type Decision int

const (
	// DecisionFire 订单首次进入 delivered，需要入账
	DecisionFire Decision = iota
	// DecisionUnchanged 状态未变化（包括 delivered -> delivered），直接忽略
	DecisionUnchanged
	// DecisionNotFulfilled 迁移到非完成状态
	DecisionNotFulfilled
	// DecisionInvalid 新状态未知
	DecisionInvalid
)

func (d Decision) String() string {
	switch d {
	case DecisionFire:
		return "fire"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionNotFulfilled:
		return "not_fulfilled"
	case DecisionInvalid:
		return "invalid"
	}
	return "unknown"
}

// TriggerGate 保证每笔订单只在进入完成态的那一次迁移上触发入账
//
// 状态比较必须在任何规则计算之前完成。previous 为空时无法判断来源，按首次到达处理，
// 重复投递由账本里的入账回执兜底。
type TriggerGate struct{}

func (TriggerGate) Decide(previous, next string) Decision {
	if !model.IsKnownOrderStatus(next) {
		return DecisionInvalid
	}
	if previous == next {
		return DecisionUnchanged
	}
	if !model.IsFulfilled(next) {
		return DecisionNotFulfilled
	}
	return DecisionFire
}
