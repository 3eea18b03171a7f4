package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/shopspring/decimal"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type sqlTx struct {
	q queryer
}

func (t *sqlTx) Orders() repository.OrderRepository        { return t }
func (t *sqlTx) Ledger() repository.LedgerRepository       { return t }
func (t *sqlTx) Balances() repository.BalanceRepository    { return t }
func (t *sqlTx) Messages() repository.MessageLogRepository { return t }
func (t *sqlTx) Receipts() repository.ReceiptRepository    { return t }

// unix maps the zero time to 0 so it works as an open lower bound.
func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func sortByMin(ranges []models.FeeRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].MinAmount.LessThan(ranges[j].MinAmount)
	})
}

// isUniqueViolation reports a UNIQUE constraint failure from the sqlite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Orders

const orderColumns = `id, trader_id, order_type, amount, charge, account_number, ecocash_number, ecocash_name,
	status, pop_status, admin_note, reference_number, created_at, updated_at`

func (t *sqlTx) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TraderID, o.Type, o.Amount, o.Charge, o.AccountNumber, o.EcocashNumber, o.EcocashName,
		o.Status, o.POPStatus, o.AdminNote, o.ReferenceNumber, unix(o.CreatedAt), unix(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o                models.Order
		created, updated int64
	)
	if err := row.Scan(
		&o.ID, &o.TraderID, &o.Type, &o.Amount, &o.Charge, &o.AccountNumber, &o.EcocashNumber, &o.EcocashName,
		&o.Status, &o.POPStatus, &o.AdminNote, &o.ReferenceNumber, &created, &updated); err != nil {
		return nil, err
	}
	o.CreatedAt = fromUnix(created)
	o.UpdatedAt = fromUnix(updated)
	return &o, nil
}

func (t *sqlTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return o, nil
}

func (t *sqlTx) CountOrdersSince(ctx context.Context, traderID string, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE trader_id = ? AND created_at >= ?`,
		traderID, unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (t *sqlTx) DeletePendingOrders(ctx context.Context, traderID string, orderType models.OrderType, keepID string) ([]models.Order, error) {
	const where = ` WHERE trader_id = ? AND order_type = ? AND status = ? AND id <> ?`
	args := []interface{}{traderID, orderType, models.StatusPending, keepID}

	rows, err := t.q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	var removed []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan pending order: %w", err)
		}
		removed = append(removed, *o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM orders`+where, args...); err != nil {
		return nil, fmt.Errorf("failed to delete pending orders: %w", err)
	}
	return removed, nil
}

// TransitionOrder is a conditional update on status = Pending.
func (t *sqlTx) TransitionOrder(ctx context.Context, id string, status models.OrderStatus, reference string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, reference_number = CASE WHEN ? <> '' THEN ? ELSE reference_number END, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, reference, reference, unix(at), id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to transition order %s: %w", id, err)
	}
	return t.checkPendingUpdate(ctx, res, id)
}

func (t *sqlTx) UpdateProofStatus(ctx context.Context, id string, status models.POPStatus, note string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE orders SET pop_status = ?, admin_note = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, note, unix(at), id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update proof status of %s: %w", id, err)
	}
	return t.checkPendingUpdate(ctx, res, id)
}

// checkPendingUpdate tells a missing order apart from one that left Pending.
func (t *sqlTx) checkPendingUpdate(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := t.GetOrder(ctx, id); err != nil {
		return err
	}
	return apperror.ErrOrderNotPending
}

// Ledger

const cashOutColumns = `id, amount, name, phone, txn_id, body, prev_bal, new_bal, flagged, flag_reason, low_limit,
	verification_code, awaiting_balance, awaiting_txn_id, balance_applied, created_at, updated_at`

func scanCashOut(row rowScanner) (*models.CashOutTransaction, error) {
	var (
		c                models.CashOutTransaction
		created, updated int64
	)
	err := row.Scan(&c.ID, &c.Amount, &c.Name, &c.Phone, &c.TxnID, &c.Body, &c.PrevBal, &c.NewBal, &c.Flagged,
		&c.FlagReason, &c.LowLimit, &c.VerificationCode, &c.AwaitingBalance, &c.AwaitingTxnID, &c.BalanceApplied,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnix(created)
	c.UpdatedAt = fromUnix(updated)
	return &c, nil
}

func (t *sqlTx) queryOneCashOut(ctx context.Context, where string, args ...interface{}) (*models.CashOutTransaction, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+cashOutColumns+` FROM cashout_transactions `+where, args...)
	c, err := scanCashOut(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cash-out: %w", err)
	}
	return c, nil
}

func (t *sqlTx) queryCashOuts(ctx context.Context, where string, args ...interface{}) ([]models.CashOutTransaction, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+cashOutColumns+` FROM cashout_transactions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash-outs: %w", err)
	}
	defer rows.Close()

	var out []models.CashOutTransaction
	for rows.Next() {
		c, err := scanCashOut(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash-out: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (t *sqlTx) LatestSettledCashOut(ctx context.Context) (*models.CashOutTransaction, error) {
	return t.queryOneCashOut(ctx, `WHERE flagged = 0 ORDER BY created_at DESC, rowid DESC LIMIT 1`)
}

func (t *sqlTx) CashOutByTxnID(ctx context.Context, txnID string) (*models.CashOutTransaction, error) {
	return t.queryOneCashOut(ctx, `WHERE txn_id = ?`, txnID)
}

func (t *sqlTx) FindIncompleteCashOut(ctx context.Context, q repository.FragmentQuery) (*models.CashOutTransaction, error) {
	candidates, err := t.queryCashOuts(ctx,
		`WHERE (awaiting_balance = 1 OR awaiting_txn_id = 1) AND created_at >= ? ORDER BY created_at DESC, rowid DESC`,
		unix(q.Since))
	if err != nil {
		return nil, err
	}
	// Amounts are text columns; the remaining filters run on decoded values.
	for i := range candidates {
		if q.Matches(candidates[i]) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (t *sqlTx) InsertCashOut(ctx context.Context, c *models.CashOutTransaction) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO cashout_transactions (`+cashOutColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Amount, c.Name, c.Phone, c.TxnID, c.Body, c.PrevBal, c.NewBal, c.Flagged, c.FlagReason, c.LowLimit,
		c.VerificationCode, c.AwaitingBalance, c.AwaitingTxnID, c.BalanceApplied, unix(c.CreatedAt), unix(c.UpdatedAt))
	if isUniqueViolation(err) {
		return apperror.ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("failed to insert cash-out %s: %w", c.TxnID, err)
	}
	return nil
}

func (t *sqlTx) UpdateCashOut(ctx context.Context, c *models.CashOutTransaction) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE cashout_transactions SET amount = ?, name = ?, phone = ?, txn_id = ?, body = ?, prev_bal = ?, new_bal = ?,
			flagged = ?, flag_reason = ?, low_limit = ?, verification_code = ?, awaiting_balance = ?, awaiting_txn_id = ?,
			balance_applied = ?, updated_at = ?
		WHERE id = ?`,
		c.Amount, c.Name, c.Phone, c.TxnID, c.Body, c.PrevBal, c.NewBal, c.Flagged, c.FlagReason, c.LowLimit,
		c.VerificationCode, c.AwaitingBalance, c.AwaitingTxnID, c.BalanceApplied, unix(c.UpdatedAt), c.ID)
	if isUniqueViolation(err) {
		return apperror.ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("failed to update cash-out %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *sqlTx) ListCashOuts(ctx context.Context, since time.Time) ([]models.CashOutTransaction, error) {
	return t.queryCashOuts(ctx, `WHERE created_at >= ? ORDER BY created_at ASC, rowid ASC`, unix(since))
}

func (t *sqlTx) CashInExists(ctx context.Context, txnID string) (bool, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cashin_transactions WHERE txn_id = ?`, txnID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check cash-in: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) InsertCashIn(ctx context.Context, c *models.CashInTransaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cashin_transactions (id, amount, name, phone, txn_id, body, new_bal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Amount, c.Name, c.Phone, c.TxnID, c.Body, c.NewBal, unix(c.CreatedAt))
	if isUniqueViolation(err) {
		return apperror.ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("failed to insert cash-in %s: %w", c.TxnID, err)
	}
	return nil
}

// Balances

func (t *sqlTx) Balance(ctx context.Context, name string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE name = ?`, name).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance %s: %w", name, err)
	}
	return amount, nil
}

func (t *sqlTx) AdjustBalance(ctx context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := t.Balance(ctx, name)
	if err != nil {
		return decimal.Zero, err
	}
	next := current.Add(delta)
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO balances (name, amount) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET amount = excluded.amount`, name, next)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance %s: %w", name, err)
	}
	return next, nil
}

// Message log

func (t *sqlTx) LogMessage(ctx context.Context, m *models.MessageLog) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO message_log (id, sender, body, kind, note, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Sender, m.Body, m.Kind, m.Note, unix(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

// Receipts

func (t *sqlTx) ReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error) {
	if reference == "" {
		return nil, nil
	}
	var (
		r       models.Receipt
		created int64
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, order_id, amount, reference, confidence, source, validation_message, created_at
		FROM receipts WHERE reference = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1`, reference).Scan(
		&r.ID, &r.OrderID, &r.Amount, &r.Reference, &r.Confidence, &r.Source, &r.ValidationMessage, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	r.CreatedAt = fromUnix(created)
	return &r, nil
}

func (t *sqlTx) InsertReceipt(ctx context.Context, r *models.Receipt) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO receipts (id, order_id, amount, reference, confidence, source, validation_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.Amount, r.Reference, r.Confidence, r.Source, r.ValidationMessage, unix(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}
