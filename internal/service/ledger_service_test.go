package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLedgerAccrueAndRedeem(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)

	entry, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 120, Description: "order", OrderNo: "O1"})
	require.NoError(t, err)
	require.Equal(t, int64(0), entry.BalanceBefore)
	require.Equal(t, int64(120), entry.BalanceAfter)
	require.Equal(t, model.LedgerTypeAccrual, entry.Type)

	entry, err = ledger.Redeem(ctx, &RedeemRequest{UserID: 1, Cost: 45, Description: "Redeemed Mug"})
	require.NoError(t, err)
	require.Equal(t, int64(-45), entry.Points)
	require.Equal(t, int64(120), entry.BalanceBefore)
	require.Equal(t, int64(75), entry.BalanceAfter)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(75), balance)

	entries, total, err := ledger.Activity(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
}

func TestLedgerAccrueNonPositiveIsNoop(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)

	for _, points := range []int64{0, -5} {
		entry, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: points, OrderNo: "O1"})
		require.NoError(t, err)
		require.Nil(t, entry)
	}

	var count int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&model.AccrualReceipt{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLedgerAccrueRejectsSecondAccrualForOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)

	_, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 10, OrderNo: "O1"})
	require.NoError(t, err)

	_, err = ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 10, OrderNo: "O1"})
	require.ErrorIs(t, err, ErrDuplicateTrigger)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestLedgerAccrueReceiptCollisionIsDuplicate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)

	// 模拟另一个实例在回执预检查之后抢先写入同一订单的回执
	err := db.Callback().Create().After("gorm:create").Register("test:concurrent_receipt", func(d *gorm.DB) {
		if d.Error != nil || d.Statement.Schema == nil || d.Statement.Schema.Table != "ledger_entry" {
			return
		}
		entry, ok := d.Statement.Dest.(*model.LedgerEntry)
		if !ok || entry.OrderNo == "" {
			return
		}
		_ = d.Session(&gorm.Session{NewDB: true}).Create(&model.AccrualReceipt{
			OrderNo: entry.OrderNo, UserID: entry.UserID, EntryNo: "other-instance", Points: entry.Points,
		}).Error
	})
	require.NoError(t, err)

	_, err = ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 10, OrderNo: "O1"})
	require.ErrorIs(t, err, ErrDuplicateTrigger)
	require.False(t, errors.Is(err, ErrLedgerWriteFailure))

	// 整个事务回滚，余额和流水都没有变化
	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, balance)

	var count int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLedgerRedeemInsufficientLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)
	_, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 50})
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, &RedeemRequest{UserID: 1, Cost: 100})
	require.ErrorIs(t, err, ErrInsufficientPoints)

	_, err = ledger.Redeem(ctx, &RedeemRequest{UserID: 2, Cost: 1})
	require.ErrorIs(t, err, ErrAccountNotFound)

	rec, err := ledger.Reconcile(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), rec.Balance)
	require.True(t, rec.Consistent)

	_, total, err := ledger.Activity(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestLedgerAccrueUnknownAccount(t *testing.T) {
	ledger := NewLedgerService(testutil.NewDB(t))
	_, err := ledger.Accrue(context.Background(), &AccrueRequest{UserID: 404, Points: 10, OrderNo: "O1"})
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.False(t, errors.Is(err, ErrLedgerWriteFailure))
}

func TestLedgerWriteFailureIsWrappedAndAtomic(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)

	// 流水表不可写时，余额也不能变化
	require.NoError(t, db.Migrator().DropTable(&model.LedgerEntry{}))

	_, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 10})
	require.ErrorIs(t, err, ErrLedgerWriteFailure)

	account, err := repository.NewAccountRepository(db).GetByUserID(ctx, nil, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), account.PointBalance)
}

func TestLedgerConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, 1, 0, time.Now())
	ledger := NewLedgerService(db)
	_, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 100})
	require.NoError(t, err)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Redeem(ctx, &RedeemRequest{UserID: 1, Cost: 30, Description: "race"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientPoints):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	// 同时有订单入账
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := ledger.Accrue(ctx, &AccrueRequest{UserID: 1, Points: 5, OrderNo: "O-race"}); err != nil {
			t.Errorf("accrue: %v", err)
		}
	}()
	wg.Wait()

	require.Equal(t, 3, succeeded)
	require.Equal(t, attempts-3, rejected)

	rec, err := ledger.Reconcile(ctx, 1)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
	require.Equal(t, int64(15), rec.Balance)
	require.GreaterOrEqual(t, rec.Balance, int64(0))
}
