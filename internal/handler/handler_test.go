package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/service"
	"loyaltysystem/internal/testutil"
	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repository.NewRuleRepository(db).Create(ctx, &model.RuleRecord{
		Name: "1 per 10", RuleType: model.RuleTypePointsPerDollar, IsActive: true, Points: 1, PerAmount: decPtr("10"),
	}))
	tiers := repository.NewTierRepository(db)
	require.NoError(t, tiers.Create(ctx, &model.Tier{Name: "Bronze", MinPoints: 0}))
	require.NoError(t, tiers.Create(ctx, &model.Tier{Name: "Silver", MinPoints: 100}))
	require.NoError(t, repository.NewRewardRepository(db).Create(ctx, &model.RewardCatalogEntry{RewardID: "coffee", Name: "Free Coffee", PointCost: 100}))

	ledger := service.NewLedgerService(db)
	h := NewHandler(
		service.NewAccrualService(db, ledger, service.NewAccrualEvaluator(time.UTC), nil, nil),
		service.NewRedemptionService(db, ledger, nil),
		ledger,
		service.NewTierService(ledger, tiers),
	)
	return SetupRouter(h, nil)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func deliveredEvent(orderNo, total string) *model.OrderStatusEvent {
	return &model.OrderStatusEvent{
		OrderNo:        orderNo,
		UserID:         1,
		PreviousStatus: model.OrderStatusShipped,
		NewStatus:      model.OrderStatusDelivered,
		OccurredAt:     time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC),
		Order:          model.Order{Total: decimal.RequireFromString(total)},
	}
}

func TestAccrueThenQuery(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodPost, "/api/v1/accrue", deliveredEvent("O1", "1250.00"))
	require.Equal(t, response.CodeSuccess, env.Code)
	var outcome service.AccrualOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	require.Equal(t, int64(125), outcome.Points)

	env = do(t, r, http.MethodPost, "/api/v1/accrue", deliveredEvent("O1", "1250.00"))
	require.Equal(t, response.CodeSuccess, env.Code)
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	require.True(t, outcome.Duplicate)

	env = do(t, r, http.MethodGet, "/api/v1/balance/1", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	require.JSONEq(t, `{"user_id":1,"balance":125}`, string(env.Data))

	env = do(t, r, http.MethodGet, "/api/v1/tier/1", nil)
	var status service.TierStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.Equal(t, "Silver", status.Current.Name)
	require.Nil(t, status.Next)

	env = do(t, r, http.MethodGet, "/api/v1/activity/1?page=1&page_size=10", nil)
	var page struct {
		List  []model.LedgerEntry `json:"list"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Equal(t, int64(1), page.Total)
	require.Equal(t, "O1", page.List[0].OrderNo)

	env = do(t, r, http.MethodGet, "/api/v1/reconcile/1", nil)
	require.JSONEq(t, `{"user_id":1,"balance":125,"ledger_sum":125,"consistent":true}`, string(env.Data))
}

func TestRedeemErrorCodes(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodPost, "/api/v1/redeem", RedeemRequest{UserID: 1, RewardID: "coffee"})
	require.Equal(t, response.CodeInsufficientPoints, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/redeem", RedeemRequest{UserID: 1, RewardID: "yacht"})
	require.Equal(t, response.CodeUnknownReward, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/redeem", map[string]interface{}{"user_id": 1})
	require.Equal(t, response.CodeParamError, env.Code)

	do(t, r, http.MethodPost, "/api/v1/accrue", deliveredEvent("O1", "1000"))
	env = do(t, r, http.MethodPost, "/api/v1/redeem", RedeemRequest{UserID: 1, RewardID: "coffee"})
	require.Equal(t, response.CodeSuccess, env.Code)
	var result service.RedemptionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, int64(0), result.Balance)

	env = do(t, r, http.MethodGet, "/api/v1/rewards", nil)
	require.Contains(t, string(env.Data), `"reward_id":"coffee"`)
}

func TestQueryErrors(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodGet, "/api/v1/balance/404", nil)
	require.Equal(t, response.CodeAccountNotFound, env.Code)

	env = do(t, r, http.MethodGet, "/api/v1/tier/abc", nil)
	require.Equal(t, response.CodeParamError, env.Code)

	event := deliveredEvent("O2", "10")
	event.NewStatus = "returned"
	env = do(t, r, http.MethodPost, "/api/v1/accrue", event)
	require.Equal(t, response.CodeInvalidEvent, env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/redeem", NewRateLimiter(1, 2).Middleware(), func(c *gin.Context) {
		response.Success(c, nil)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/redeem", nil))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	require.Nil(t, NewRateLimiter(0, 5))
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(60, 1)
	limiter.clockNow = func() time.Time { return now }
	limiter.lastSweep = now

	limiter.obtain("10.0.0.1")
	limiter.obtain("10.0.0.2")
	require.Equal(t, 2, limiter.size())

	now = now.Add(visitorIdleTTL / 2)
	limiter.obtain("10.0.0.2")

	now = now.Add(visitorIdleTTL / 2)
	limiter.obtain("10.0.0.3")
	// 10.0.0.1 空闲超时被清理，10.0.0.2 最近访问过保留
	require.Equal(t, 2, limiter.size())

	now = now.Add(visitorIdleTTL)
	limiter.obtain("10.0.0.4")
	require.Equal(t, 1, limiter.size())
}
