// Package memory is an in-process implementation of the repository contracts. A unit of work
// holds the store lock for its whole duration and restores a snapshot when it fails, which
// gives the same all-or-nothing behaviour as the sqlite store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/shopspring/decimal"
)

// Store holds all entities in memory. WithinTx must not be nested.
type Store struct {
	mu    sync.Mutex
	state state
}

type state struct {
	feeRanges []models.FeeRange
	orders    map[string]models.Order
	cashOuts  []models.CashOutTransaction
	cashIns   []models.CashInTransaction
	balances  map[string]decimal.Decimal
	messages  []models.MessageLog
	receipts  []models.Receipt
}

// New returns an empty store.
func New() *Store {
	return &Store{state: state{
		orders:   make(map[string]models.Order),
		balances: make(map[string]decimal.Decimal),
	}}
}

func (s state) clone() state {
	c := state{
		feeRanges: append([]models.FeeRange(nil), s.feeRanges...),
		orders:    make(map[string]models.Order, len(s.orders)),
		cashOuts:  append([]models.CashOutTransaction(nil), s.cashOuts...),
		cashIns:   append([]models.CashInTransaction(nil), s.cashIns...),
		balances:  make(map[string]decimal.Decimal, len(s.balances)),
		messages:  append([]models.MessageLog(nil), s.messages...),
		receipts:  append([]models.Receipt(nil), s.receipts...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// WithinTx implements repository.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{st: &s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// ActiveFeeRanges implements repository.FeeRangeRepository.
func (s *Store) ActiveFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return s.feeRanges(func(r models.FeeRange) bool { return r.IsActive }), nil
}

// PercentageFeeRanges implements repository.FeeRangeRepository.
func (s *Store) PercentageFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return s.feeRanges(func(r models.FeeRange) bool { return r.IsPercentage }), nil
}

func (s *Store) feeRanges(keep func(models.FeeRange) bool) []models.FeeRange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.FeeRange
	for _, r := range s.state.feeRanges {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinAmount.LessThan(out[j].MinAmount)
	})
	return out
}

// ReplaceFeeRanges implements repository.FeeRangeWriter.
func (s *Store) ReplaceFeeRanges(ctx context.Context, ranges []models.FeeRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.feeRanges = make([]models.FeeRange, len(ranges))
	for i, r := range ranges {
		r.ID = int64(i + 1)
		s.state.feeRanges[i] = r
	}
	return nil
}

// SetBalance seeds a named balance; meant for tests and fixtures.
func (s *Store) SetBalance(name string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.balances[name] = amount
}

// CashOuts returns a copy of all cash-out rows in insertion order.
func (s *Store) CashOuts() []models.CashOutTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CashOutTransaction(nil), s.state.cashOuts...)
}

// CashIns returns a copy of all cash-in rows.
func (s *Store) CashIns() []models.CashInTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CashInTransaction(nil), s.state.cashIns...)
}

// Messages returns a copy of the message log.
func (s *Store) Messages() []models.MessageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MessageLog(nil), s.state.messages...)
}

// Orders returns a copy of all orders.
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Receipts returns a copy of all receipts.
func (s *Store) Receipts() []models.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Receipt(nil), s.state.receipts...)
}

// BalanceOf reads a named balance outside a unit of work.
func (s *Store) BalanceOf(name string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.balances[name]
}

type memTx struct {
	st *state
}

func (t *memTx) Orders() repository.OrderRepository        { return t }
func (t *memTx) Ledger() repository.LedgerRepository       { return t }
func (t *memTx) Balances() repository.BalanceRepository    { return t }
func (t *memTx) Messages() repository.MessageLogRepository { return t }
func (t *memTx) Receipts() repository.ReceiptRepository    { return t }

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	t.st.orders[order.ID] = *order
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &o, nil
}

func (t *memTx) CountOrdersSince(ctx context.Context, traderID string, since time.Time) (int, error) {
	n := 0
	for _, o := range t.st.orders {
		if o.TraderID == traderID && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeletePendingOrders(ctx context.Context, traderID string, orderType models.OrderType, keepID string) ([]models.Order, error) {
	var removed []models.Order
	for id, o := range t.st.orders {
		if id != keepID && o.TraderID == traderID && o.Type == orderType && o.Status == models.StatusPending {
			delete(t.st.orders, id)
			removed = append(removed, o)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed, nil
}

func (t *memTx) TransitionOrder(ctx context.Context, id string, status models.OrderStatus, reference string, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return apperror.ErrNotFound
	}
	if o.Status != models.StatusPending {
		return apperror.ErrOrderNotPending
	}
	o.Status = status
	if reference != "" {
		o.ReferenceNumber = reference
	}
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *memTx) UpdateProofStatus(ctx context.Context, id string, status models.POPStatus, note string, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return apperror.ErrNotFound
	}
	if o.Status != models.StatusPending {
		return apperror.ErrOrderNotPending
	}
	o.POPStatus = status
	o.AdminNote = note
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

// latest returns the index of the most recent cash-out satisfying keep, or -1.
func (t *memTx) latest(keep func(models.CashOutTransaction) bool) int {
	best := -1
	for i, tx := range t.st.cashOuts {
		if !keep(tx) {
			continue
		}
		if best == -1 || !tx.CreatedAt.Before(t.st.cashOuts[best].CreatedAt) {
			best = i
		}
	}
	return best
}

func (t *memTx) LatestSettledCashOut(ctx context.Context) (*models.CashOutTransaction, error) {
	i := t.latest(func(tx models.CashOutTransaction) bool { return !tx.Flagged })
	if i < 0 {
		return nil, nil
	}
	tx := t.st.cashOuts[i]
	return &tx, nil
}

func (t *memTx) CashOutByTxnID(ctx context.Context, txnID string) (*models.CashOutTransaction, error) {
	for _, tx := range t.st.cashOuts {
		if strings.EqualFold(tx.TxnID, txnID) {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindIncompleteCashOut(ctx context.Context, q repository.FragmentQuery) (*models.CashOutTransaction, error) {
	i := t.latest(q.Matches)
	if i < 0 {
		return nil, nil
	}
	tx := t.st.cashOuts[i]
	return &tx, nil
}

func (t *memTx) InsertCashOut(ctx context.Context, tx *models.CashOutTransaction) error {
	if existing, _ := t.CashOutByTxnID(ctx, tx.TxnID); existing != nil {
		return apperror.ErrDuplicateTransaction
	}
	t.st.cashOuts = append(t.st.cashOuts, *tx)
	return nil
}

func (t *memTx) UpdateCashOut(ctx context.Context, tx *models.CashOutTransaction) error {
	for i := range t.st.cashOuts {
		if t.st.cashOuts[i].ID != tx.ID {
			continue
		}
		if other, _ := t.CashOutByTxnID(ctx, tx.TxnID); other != nil && other.ID != tx.ID {
			return apperror.ErrDuplicateTransaction
		}
		t.st.cashOuts[i] = *tx
		return nil
	}
	return apperror.ErrNotFound
}

func (t *memTx) ListCashOuts(ctx context.Context, since time.Time) ([]models.CashOutTransaction, error) {
	var out []models.CashOutTransaction
	for _, tx := range t.st.cashOuts {
		if !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) CashInExists(ctx context.Context, txnID string) (bool, error) {
	for _, tx := range t.st.cashIns {
		if strings.EqualFold(tx.TxnID, txnID) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertCashIn(ctx context.Context, tx *models.CashInTransaction) error {
	if exists, _ := t.CashInExists(ctx, tx.TxnID); exists {
		return apperror.ErrDuplicateTransaction
	}
	t.st.cashIns = append(t.st.cashIns, *tx)
	return nil
}

func (t *memTx) Balance(ctx context.Context, name string) (decimal.Decimal, error) {
	return t.st.balances[name], nil
}

func (t *memTx) AdjustBalance(ctx context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error) {
	next := t.st.balances[name].Add(delta)
	t.st.balances[name] = next
	return next, nil
}

func (t *memTx) LogMessage(ctx context.Context, entry *models.MessageLog) error {
	t.st.messages = append(t.st.messages, *entry)
	return nil
}

func (t *memTx) ReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error) {
	for _, r := range t.st.receipts {
		if reference != "" && strings.EqualFold(r.Reference, reference) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertReceipt(ctx context.Context, receipt *models.Receipt) error {
	t.st.receipts = append(t.st.receipts, *receipt)
	return nil
}
