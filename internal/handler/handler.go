package handler

import (
	"errors"
	"strconv"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accrualService    *service.AccrualService
	redemptionService *service.RedemptionService
	ledgerService     *service.LedgerService
	tierService       *service.TierService
}

// NewHandler 创建处理器实例
func NewHandler(accrual *service.AccrualService, redemption *service.RedemptionService, ledger *service.LedgerService, tiers *service.TierService) *Handler {
	return &Handler{
		accrualService:    accrual,
		redemptionService: redemption,
		ledgerService:     ledger,
		tierService:       tiers,
	}
}

// ============================================================
// 积分入账
// ============================================================

// Accrue 接收订单状态事件，与 Kafka 消费走同一套逻辑
// POST /api/v1/accrue
//
// 重复投递不报错，返回 duplicate=true
func (h *Handler) Accrue(c *gin.Context) {
	var event model.OrderStatusEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome, err := h.accrualService.HandleOrderEvent(c.Request.Context(), &event)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, outcome)
}

// ============================================================
// 积分兑换
// ============================================================

// RedeemRequest 兑换请求
type RedeemRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	RewardID string `json:"reward_id" binding:"required"`
}

// Redeem 兑换奖品
// POST /api/v1/redeem
func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.redemptionService.Redeem(c.Request.Context(), req.UserID, req.RewardID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ListRewards 奖品目录
// GET /api/v1/rewards
func (h *Handler) ListRewards(c *gin.Context) {
	rewards, err := h.redemptionService.Rewards(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": rewards})
}

// ============================================================
// 账户查询
// ============================================================

// GetBalance 查询积分余额
// GET /api/v1/balance/:userId
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	balance, err := h.ledgerService.Balance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// GetTier 查询会员等级和升级进度
// GET /api/v1/tier/:userId
func (h *Handler) GetTier(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	status, err := h.tierService.Status(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, status)
}

// GetActivity 积分流水，按时间倒序
// GET /api/v1/activity/:userId?page=1&page_size=20
func (h *Handler) GetActivity(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.ledgerService.Activity(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Reconcile 余额与流水合计对账
// GET /api/v1/reconcile/:userId
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	rec, err := h.ledgerService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, rec)
}

func userIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "userId 参数错误")
		return 0, false
	}
	return userID, true
}

// writeError 业务错误映射为错误码，其余按服务端错误返回
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientPoints):
		response.BusinessError(c, response.CodeInsufficientPoints, err.Error())
	case errors.Is(err, service.ErrUnknownReward):
		response.BusinessError(c, response.CodeUnknownReward, err.Error())
	case errors.Is(err, service.ErrInvalidEvent):
		response.BusinessError(c, response.CodeInvalidEvent, err.Error())
	case errors.Is(err, service.ErrInvalidRuleConfiguration):
		response.BusinessError(c, response.CodeInvalidRule, err.Error())
	case errors.Is(err, service.ErrLedgerWriteFailure):
		response.BusinessError(c, response.CodeLedgerWriteFailure, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}
