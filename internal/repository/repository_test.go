package repository_test

import (
	"context"
	"testing"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAccountIncreaseAndConditionalDeduct(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 50, time.Now())
	repo := repository.NewAccountRepository(db)

	require.NoError(t, repo.Increase(ctx, nil, 1, 30))
	require.ErrorIs(t, repo.Increase(ctx, nil, 2, 30), repository.ErrAccountNotFound)

	require.ErrorIs(t, repo.DeductIfSufficient(ctx, nil, 1, 81), repository.ErrBalanceNotEnough)
	require.NoError(t, repo.DeductIfSufficient(ctx, nil, 1, 80))
	require.ErrorIs(t, repo.DeductIfSufficient(ctx, nil, 2, 1), repository.ErrAccountNotFound)

	account, err := repo.GetByUserID(ctx, nil, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), account.PointBalance)
	require.Equal(t, 2, account.Version)
}

func TestOrderUpsertKeepsLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewOrderRepository(db)

	order := &model.Order{
		OrderNo: "ORD-1",
		UserID:  9,
		Total:   decimal.RequireFromString("42.00"),
		Items:   []model.OrderItem{{ProductID: "p1", Quantity: 2}},
		Status:  model.OrderStatusPending,
	}
	require.NoError(t, repo.Upsert(ctx, order))

	completed := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &model.Order{
		OrderNo:     "ORD-1",
		UserID:      9,
		Total:       decimal.RequireFromString("42.00"),
		Items:       []model.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		Status:      model.OrderStatusDelivered,
		CompletedAt: &completed,
	}))

	var got model.Order
	require.NoError(t, db.Where("order_no = ?", "ORD-1").First(&got).Error)
	require.Equal(t, model.OrderStatusDelivered, got.Status)
	require.Len(t, got.Items, 2)
	require.True(t, got.Total.Equal(decimal.NewFromInt(42)))
	require.NotNil(t, got.CompletedAt)

	delivered, err := repo.ListByUserIDAndStatus(ctx, 9, model.OrderStatusDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
}

func TestOrderUpsertNeverRevertsDeliveredSnapshot(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewOrderRepository(db)

	completed := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &model.Order{
		OrderNo: "ORD-1", UserID: 9, Total: decimal.NewFromInt(10), Status: model.OrderStatusDelivered, CompletedAt: &completed,
	}))

	// 迟到的 shipped 事件
	require.NoError(t, repo.Upsert(ctx, &model.Order{
		OrderNo: "ORD-1", UserID: 9, Total: decimal.NewFromInt(10), Status: model.OrderStatusShipped,
	}))

	var got model.Order
	require.NoError(t, db.Where("order_no = ?", "ORD-1").First(&got).Error)
	require.Equal(t, model.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.True(t, got.CompletedAt.Equal(completed))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestLedgerSumAndReceipts(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewLedgerRepository(db)

	sum, err := repo.SumPoints(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, sum)

	require.NoError(t, repo.Create(ctx, nil, &model.LedgerEntry{EntryNo: "E1", UserID: 3, OrderNo: "O1", Points: 40, Type: model.LedgerTypeAccrual}))
	require.NoError(t, repo.Create(ctx, nil, &model.LedgerEntry{EntryNo: "E2", UserID: 3, Points: -15, Type: model.LedgerTypeRedemption}))

	sum, err = repo.SumPoints(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(25), sum)

	entries, total, err := repo.ListByUserID(ctx, 3, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 1)

	_, err = repo.GetReceiptByOrderNo(ctx, nil, "O1")
	require.ErrorIs(t, err, repository.ErrReceiptNotFound)
	require.NoError(t, repo.CreateReceipt(ctx, nil, &model.AccrualReceipt{OrderNo: "O1", UserID: 3, EntryNo: "E1", Points: 40}))
	err = repo.CreateReceipt(ctx, nil, &model.AccrualReceipt{OrderNo: "O1", UserID: 3, EntryNo: "E3", Points: 40})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	receipt, err := repo.GetReceiptByOrderNo(ctx, nil, "O1")
	require.NoError(t, err)
	require.Equal(t, "E1", receipt.EntryNo)
}

func TestRuleRepositoryListsOnlyActiveRulesInIDOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewRuleRepository(db)

	require.NoError(t, repo.Create(ctx, &model.RuleRecord{Name: "fixed", RuleType: model.RuleTypeFixedPointsPerOrder, IsActive: true, Points: 10}))
	require.NoError(t, repo.Create(ctx, &model.RuleRecord{Name: "off", RuleType: model.RuleTypeFixedPointsPerOrder, IsActive: false, Points: 99}))
	require.NoError(t, repo.Create(ctx, &model.RuleRecord{Name: "first", RuleType: model.RuleTypeFirstOrderBonus, IsActive: true, Points: 50}))

	rules, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "fixed", rules[0].Name)
	require.Equal(t, "first", rules[1].Name)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestRewardRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewRewardRepository(db)

	require.NoError(t, repo.Create(ctx, &model.RewardCatalogEntry{RewardID: "tote", Name: "Tote Bag", PointCost: 450}))
	require.NoError(t, repo.Create(ctx, &model.RewardCatalogEntry{RewardID: "coffee", Name: "Free Coffee", PointCost: 100}))

	reward, err := repo.GetByRewardID(ctx, "coffee")
	require.NoError(t, err)
	require.Equal(t, int64(100), reward.PointCost)

	_, err = repo.GetByRewardID(ctx, "car")
	require.ErrorIs(t, err, repository.ErrRewardNotFound)

	rewards, err := repo.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "coffee", rewards[0].RewardID)
}
