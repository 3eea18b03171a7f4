// Package repository declares the persistence contracts the reconciliation services depend on.
// Implementations live in internal/store/sqlite (production) and internal/store/memory (tests).
//
// Every mutation that touches a ledger balance must happen inside UnitOfWork.WithinTx together
// with the row it corresponds to, so that a balance is never updated without its record.
package repository

import (
	"context"
	"time"

	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
)

// FeeRangeRepository reads the charge schedule.
type FeeRangeRepository interface {
	// ActiveFeeRanges returns active ranges ordered by MinAmount ascending.
	ActiveFeeRanges(ctx context.Context) ([]models.FeeRange, error)
	// PercentageFeeRanges returns every percentage tier, active or not, ordered by MinAmount.
	PercentageFeeRanges(ctx context.Context) ([]models.FeeRange, error)
}

// FeeRangeWriter replaces the charge schedule (admin import).
type FeeRangeWriter interface {
	ReplaceFeeRanges(ctx context.Context, ranges []models.FeeRange) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrder returns apperror.ErrNotFound when the id is unknown.
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// CountOrdersSince counts the trader's orders created at or after since.
	CountOrdersSince(ctx context.Context, traderID string, since time.Time) (int, error)
	// DeletePendingOrders removes the trader's Pending orders of the given type, except keepID,
	// and returns the removed orders.
	DeletePendingOrders(ctx context.Context, traderID string, orderType models.OrderType, keepID string) ([]models.Order, error)
	// TransitionOrder moves an order from Pending to status (compare-and-swap). It returns
	// apperror.ErrOrderNotPending when the order exists but is no longer Pending.
	TransitionOrder(ctx context.Context, id string, status models.OrderStatus, reference string, at time.Time) error
	// UpdateProofStatus records the proof-of-payment review state of a Pending order.
	UpdateProofStatus(ctx context.Context, id string, status models.POPStatus, note string, at time.Time) error
}

// FragmentQuery selects the incomplete cash-out row a message fragment belongs to:
// rows still awaiting a fragment, created at or after Since, matching every set field.
type FragmentQuery struct {
	Since       time.Time
	Amount      decimal.NullDecimal
	Name        string
	Phone       string
	NeedBalance bool
	NeedTxnID   bool
}

// Matches reports whether tx satisfies the query. Stores that cannot push the filter down
// to their query language use it directly.
func (q FragmentQuery) Matches(tx models.CashOutTransaction) bool {
	if !tx.Incomplete() || tx.CreatedAt.Before(q.Since) {
		return false
	}
	if q.Amount.Valid && !tx.Amount.Equal(q.Amount.Decimal) {
		return false
	}
	if q.Name != "" && tx.Name != q.Name {
		return false
	}
	if q.Phone != "" && tx.Phone != q.Phone {
		return false
	}
	if q.NeedBalance && !tx.AwaitingBalance {
		return false
	}
	if q.NeedTxnID && !tx.AwaitingTxnID {
		return false
	}
	return true
}

// LedgerRepository persists provider-side transaction records.
type LedgerRepository interface {
	// LatestSettledCashOut returns the non-flagged cash-out created last, or nil. Rows are
	// ordered by creation, the provider's transaction order, so a placeholder completed late
	// does not displace a cash-out that happened after it.
	LatestSettledCashOut(ctx context.Context) (*models.CashOutTransaction, error)
	// CashOutByTxnID returns the cash-out with the given provider id, or nil.
	CashOutByTxnID(ctx context.Context, txnID string) (*models.CashOutTransaction, error)
	// FindIncompleteCashOut returns the most recent row matching q, or nil.
	FindIncompleteCashOut(ctx context.Context, q FragmentQuery) (*models.CashOutTransaction, error)
	InsertCashOut(ctx context.Context, tx *models.CashOutTransaction) error
	UpdateCashOut(ctx context.Context, tx *models.CashOutTransaction) error
	// ListCashOuts returns cash-outs created at or after since, oldest first.
	ListCashOuts(ctx context.Context, since time.Time) ([]models.CashOutTransaction, error)

	CashInExists(ctx context.Context, txnID string) (bool, error)
	InsertCashIn(ctx context.Context, tx *models.CashInTransaction) error
}

// BalanceRepository holds the named operational balances.
type BalanceRepository interface {
	// Balance returns zero for a name that was never adjusted.
	Balance(ctx context.Context, name string) (decimal.Decimal, error)
	// AdjustBalance adds delta (which may be negative) and returns the new balance.
	AdjustBalance(ctx context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error)
}

// MessageLogRepository keeps the verbatim webhook log.
type MessageLogRepository interface {
	LogMessage(ctx context.Context, entry *models.MessageLog) error
}

// ReceiptRepository persists proof-of-payment outcomes.
type ReceiptRepository interface {
	// ReceiptByReference returns the receipt carrying reference, or nil.
	ReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error)
	InsertReceipt(ctx context.Context, receipt *models.Receipt) error
}

// Tx exposes the repositories bound to one atomic unit of work.
type Tx interface {
	Orders() OrderRepository
	Ledger() LedgerRepository
	Balances() BalanceRepository
	Messages() MessageLogRepository
	Receipts() ReceiptRepository
}

// UnitOfWork runs fn atomically: if fn returns an error nothing it did is kept.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
