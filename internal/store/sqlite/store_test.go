package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ repository.UnitOfWork = (*Store)(nil)
var _ repository.FeeRangeRepository = (*Store)(nil)
var _ repository.FeeRangeWriter = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	logger := logging.NewMockLogger()

	first, err := Open(path, logger)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path, logger)
	require.NoError(t, err)
	defer second.Close()

	assert.NoError(t, second.Ping(context.Background()))
	assert.True(t, logger.HasEntry("DEBUG", "No new database migrations to apply"))
}

func TestFeeRanges_ReplaceAndReadSorted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.ReplaceFeeRanges(ctx, []models.FeeRange{
		{MinAmount: dec("50.01"), MaxAmount: dec("1000"), IsPercentage: true, PercentageRate: dec("3"), AdditionalFee: dec("0.50"), IsActive: true},
		{MinAmount: dec("1"), MaxAmount: dec("10"), FixedCharge: dec("0.50"), IsActive: true},
		{MinAmount: dec("10.01"), MaxAmount: dec("50"), FixedCharge: dec("1.50"), IsActive: true},
		{MinAmount: dec("2000"), MaxAmount: dec("3000"), FixedCharge: dec("9"), IsActive: false},
	})
	require.NoError(t, err)

	ranges, err := s.ActiveFeeRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.True(t, ranges[0].MinAmount.Equal(dec("1")))
	assert.True(t, ranges[1].MinAmount.Equal(dec("10.01")))
	assert.True(t, ranges[2].IsPercentage)
	assert.True(t, ranges[2].PercentageRate.Equal(dec("3")))

	require.NoError(t, s.ReplaceFeeRanges(ctx, []models.FeeRange{
		{MinAmount: dec("1"), MaxAmount: dec("50"), FixedCharge: dec("1.50"), IsActive: true},
		{MinAmount: dec("1000.01"), MaxAmount: dec("5000"), IsPercentage: true, PercentageRate: dec("2"), IsActive: false},
		{MinAmount: dec("50.01"), MaxAmount: dec("1000"), IsPercentage: true, PercentageRate: dec("3"), IsActive: true},
	}))
	tiers, err := s.PercentageFeeRanges(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.True(t, tiers[0].MinAmount.Equal(dec("50.01")))
	assert.False(t, tiers[1].IsActive)

	require.NoError(t, s.ReplaceFeeRanges(ctx, nil))
	ranges, err = s.ActiveFeeRanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Balances().AdjustBalance(ctx, models.BalanceAgent, dec("10")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		bal, err := tx.Balances().Balance(ctx, models.BalanceAgent)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		return nil
	}))
}

func TestBalances_AdjustAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Balances().AdjustBalance(ctx, models.BalanceMain, dec("100.25"))
		require.NoError(t, err)
		next, err := tx.Balances().AdjustBalance(ctx, models.BalanceMain, dec("-40.10"))
		require.NoError(t, err)
		assert.Equal(t, "60.15", next.StringFixed(2))
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		bal, err := tx.Balances().Balance(ctx, models.BalanceMain)
		require.NoError(t, err)
		assert.Equal(t, "60.15", bal.StringFixed(2))
		return nil
	}))
}

func TestOrders_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	order := &models.Order{
		ID: "o1", TraderID: "t1", Type: models.OrderDeposit, Amount: dec("100"), Charge: dec("3.50"),
		EcocashName: "Tatenda Moyo", Status: models.StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	stale := &models.Order{
		ID: "o0", TraderID: "t1", Type: models.OrderDeposit, Amount: dec("5"), Charge: dec("0.50"),
		Status: models.StatusPending, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.Orders().CreateOrder(ctx, stale))
		require.NoError(t, tx.Orders().CreateOrder(ctx, order))

		n, err := tx.Orders().CountOrdersSince(ctx, "t1", now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		deleted, err := tx.Orders().DeletePendingOrders(ctx, "t1", models.OrderDeposit, "o1")
		require.NoError(t, err)
		require.Len(t, deleted, 1)
		assert.Equal(t, "o0", deleted[0].ID)
		assert.True(t, deleted[0].Gross().Equal(dec("5.50")))
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Orders().GetOrder(ctx, "o0")
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		require.NoError(t, tx.Orders().UpdateProofStatus(ctx, "o1", models.POPProcessing, "ok", now))
		require.NoError(t, tx.Orders().TransitionOrder(ctx, "o1", models.StatusCompleted, "REF1", now))

		got, err := tx.Orders().GetOrder(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, models.POPProcessing, got.POPStatus)
		assert.Equal(t, "REF1", got.ReferenceNumber)
		assert.True(t, got.Gross().Equal(dec("103.50")))
		assert.True(t, got.CreatedAt.Equal(now))

		err = tx.Orders().TransitionOrder(ctx, "o1", models.StatusFailed, "", now)
		assert.ErrorIs(t, err, apperror.ErrOrderNotPending)
		err = tx.Orders().TransitionOrder(ctx, "missing", models.StatusFailed, "", now)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		return nil
	}))
}

func TestLedger_CashOuts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	settled := &models.CashOutTransaction{
		ID: "c1", Amount: dec("20"), Name: "Tatenda Moyo", TxnID: "CO240301.1000.A12345",
		PrevBal: dec("100"), NewBal: dec("120"), BalanceApplied: true, CreatedAt: now, UpdatedAt: now,
	}
	flagged := &models.CashOutTransaction{
		ID: "c2", Amount: dec("30"), TxnID: "CO240301.1001.A12346", PrevBal: dec("120"), NewBal: dec("999"),
		Flagged: true, FlagReason: models.FlagSuspicious, CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute),
	}
	pending := &models.CashOutTransaction{
		ID: "c3", Amount: dec("212.44"), Name: "Farai Moyo", TxnID: "PENDING-x", PrevBal: dec("120"),
		AwaitingBalance: true, AwaitingTxnID: true, CreatedAt: now.Add(2 * time.Minute), UpdatedAt: now.Add(2 * time.Minute),
	}

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		for _, c := range []*models.CashOutTransaction{settled, flagged, pending} {
			require.NoError(t, tx.Ledger().InsertCashOut(ctx, c))
		}
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		latest, err := tx.Ledger().LatestSettledCashOut(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "c3", latest.ID)

		byID, err := tx.Ledger().CashOutByTxnID(ctx, "co240301.1000.a12345")
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "c1", byID.ID)
		assert.True(t, byID.BalanceApplied)

		missing, err := tx.Ledger().CashOutByTxnID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		frag, err := tx.Ledger().FindIncompleteCashOut(ctx, repository.FragmentQuery{
			Since:       now,
			Amount:      decimal.NewNullDecimal(dec("212.44")),
			NeedBalance: true,
		})
		require.NoError(t, err)
		require.NotNil(t, frag)
		assert.Equal(t, "c3", frag.ID)

		none, err := tx.Ledger().FindIncompleteCashOut(ctx, repository.FragmentQuery{
			Since: now.Add(5 * time.Minute),
		})
		require.NoError(t, err)
		assert.Nil(t, none)

		err = tx.Ledger().InsertCashOut(ctx, &models.CashOutTransaction{
			ID: "c4", Amount: dec("1"), TxnID: "CO240301.1000.A12345", CreatedAt: now, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, apperror.ErrDuplicateTransaction)

		pending.TxnID = "CO240301.1002.A12347"
		pending.NewBal = dec("332.44")
		pending.AwaitingBalance = false
		pending.AwaitingTxnID = false
		require.NoError(t, tx.Ledger().UpdateCashOut(ctx, pending))

		all, err := tx.Ledger().ListCashOuts(ctx, now)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c1", all[0].ID)
		assert.Equal(t, "CO240301.1002.A12347", all[2].TxnID)
		assert.False(t, all[2].Incomplete())
		return nil
	}))
}

func TestLedger_CashInDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	in := &models.CashInTransaction{ID: "i1", Amount: dec("15"), TxnID: "CI240301.1000.B12345", NewBal: dec("85"), CreatedAt: now}

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.Ledger().InsertCashIn(ctx, in))
		exists, err := tx.Ledger().CashInExists(ctx, "ci240301.1000.b12345")
		require.NoError(t, err)
		assert.True(t, exists)

		dup := *in
		dup.ID = "i2"
		assert.ErrorIs(t, tx.Ledger().InsertCashIn(ctx, &dup), apperror.ErrDuplicateTransaction)
		return nil
	}))
}

func TestReceiptsAndMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.Messages().LogMessage(ctx, &models.MessageLog{
			ID: "m1", Sender: "+263164", Body: "hello", Kind: models.KindUnrecognized, CreatedAt: now,
		}))
		require.NoError(t, tx.Receipts().InsertReceipt(ctx, &models.Receipt{
			ID: "r1", OrderID: "o1", Reference: "MP240301.1000.C12345", Confidence: 0.8,
			Source: models.SourceText, CreatedAt: now,
		}))

		got, err := tx.Receipts().ReceiptByReference(ctx, "mp240301.1000.c12345")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "o1", got.OrderID)
		assert.False(t, got.Amount.Valid)

		none, err := tx.Receipts().ReceiptByReference(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	}))
}
