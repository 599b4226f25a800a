package service

import (
	"errors"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
)

// 调用方通过 errors.Is 判断以下错误，积分不足、奖品不存在属于可恢复的业务结果
var (
	ErrInvalidRuleConfiguration = model.ErrInvalidRuleConfiguration
	ErrAccountNotFound          = repository.ErrAccountNotFound
	ErrInsufficientPoints       = errors.New("积分不足")
	ErrUnknownReward            = errors.New("奖品不存在")
	ErrLedgerWriteFailure       = errors.New("积分账本写入失败")
	ErrInvalidEvent             = errors.New("订单事件不合法")

	// ErrDuplicateTrigger 订单已经入过账，重复触发被忽略，不是失败
	ErrDuplicateTrigger = errors.New("订单已入账，忽略重复触发")
)
