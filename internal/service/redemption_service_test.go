package service

import (
	"context"
	"testing"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/testutil"

	"github.com/stretchr/testify/require"
)

func newRedemptionFixture(t *testing.T, balance int64) (*RedemptionService, *LedgerService, *memoryLocker) {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	rewards := repository.NewRewardRepository(db)
	require.NoError(t, rewards.Create(ctx, &model.RewardCatalogEntry{RewardID: "coffee", Name: "Free Coffee", PointCost: 100}))

	ledger := NewLedgerService(db)
	if balance > 0 {
		_, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: balance, Description: "seed"})
		require.NoError(t, err)
	}
	locker := &memoryLocker{}
	return NewRedemptionService(db, ledger, locker), ledger, locker
}

func TestRedeemInsufficientPoints(t *testing.T) {
	ctx := context.Background()
	svc, ledger, locker := newRedemptionFixture(t, 50)

	_, err := svc.Redeem(ctx, 1, "coffee")
	require.ErrorIs(t, err, ErrInsufficientPoints)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)

	_, total, err := ledger.Activity(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Empty(t, locker.keys)
}

func TestRedeemUnknownReward(t *testing.T) {
	svc, _, _ := newRedemptionFixture(t, 500)
	_, err := svc.Redeem(context.Background(), 1, "yacht")
	require.ErrorIs(t, err, ErrUnknownReward)
}

func TestRedeemUnknownAccount(t *testing.T) {
	svc, _, _ := newRedemptionFixture(t, 500)
	_, err := svc.Redeem(context.Background(), 99, "coffee")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRedeemSuccess(t *testing.T) {
	ctx := context.Background()
	svc, ledger, locker := newRedemptionFixture(t, 130)

	result, err := svc.Redeem(ctx, 1, "coffee")
	require.NoError(t, err)
	require.Equal(t, int64(30), result.Balance)
	require.Equal(t, int64(100), result.PointCost)
	require.NotEmpty(t, result.RedemptionNo)
	require.Equal(t, []string{"loyalty:lock:redeem:user:1"}, locker.keys)

	entries, _, err := ledger.Activity(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "Redeemed Free Coffee", entries[0].Description)
	require.Equal(t, int64(-100), entries[0].Points)

	_, err = svc.Redeem(ctx, 1, "coffee")
	require.ErrorIs(t, err, ErrInsufficientPoints)

	rewards, err := svc.Rewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
}

func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	day := 2
	cfg := &config.LoyaltyConfig{
		Rules: []config.RuleSeed{
			{Name: "1 per 10", RuleType: model.RuleTypePointsPerDollar, IsActive: true, Points: 1, PerAmount: "10"},
			{Name: "double tuesday", RuleType: model.RuleTypeMultiplierPerDay, IsActive: true, DayOfWeek: &day, Multiplier: "2"},
		},
		Tiers:   []config.TierSeed{{Name: "Bronze", MinPoints: 0}, {Name: "Silver", MinPoints: 100}},
		Rewards: []config.RewardSeed{{RewardID: "coffee", Name: "Free Coffee", PointCost: 100}},
	}

	require.NoError(t, SeedCatalog(ctx, db, cfg))
	// 再次执行不会重复写入
	require.NoError(t, SeedCatalog(ctx, db, cfg))

	rules, err := repository.NewRuleRepository(db).ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.True(t, rules[0].PerAmount.Equal(*decPtr("10")))

	tiers, err := repository.NewTierRepository(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
}

func TestSeedCatalogRejectsInvalidConfiguration(t *testing.T) {
	ctx := context.Background()

	err := SeedCatalog(ctx, testutil.NewDB(t), &config.LoyaltyConfig{
		Rules: []config.RuleSeed{{Name: "broken", RuleType: model.RuleTypePointsPerDollar, IsActive: true, Points: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidRuleConfiguration)

	err = SeedCatalog(ctx, testutil.NewDB(t), &config.LoyaltyConfig{
		Tiers: []config.TierSeed{{Name: "A", MinPoints: 0}, {Name: "B", MinPoints: 0}},
	})
	require.Error(t, err)

	err = SeedCatalog(ctx, testutil.NewDB(t), &config.LoyaltyConfig{
		Rules: []config.RuleSeed{{Name: "bad number", RuleType: model.RuleTypePointsPerDollar, PerAmount: "ten"}},
	})
	require.Error(t, err)
}
