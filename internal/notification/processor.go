// Package notification corroborates provider-side wallet activity against the agent ledger.
// It parses the provider's SMS notifications as delivered by the forwarding webhook,
// reassembles messages split across deliveries and keeps the "Agent" balance in step.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultFragmentWindow bounds how long an incomplete record waits for its fragments.
	DefaultFragmentWindow = 60 * time.Second

	placeholderPrefix = "PENDING-"
)

// DefaultLowLimit marks cash-outs below this amount.
var DefaultLowLimit = decimal.RequireFromString("1.5")

// Options configures a Processor.
type Options struct {
	SenderID       string
	FragmentWindow time.Duration
	LowLimit       decimal.Decimal
}

// Outcome describes what a message did.
type Outcome struct {
	Kind      models.MessageKind `json:"kind"`
	TxnID     string             `json:"txn_id,omitempty"`
	Stored    bool               `json:"stored"`
	Flagged   bool               `json:"flagged"`
	Duplicate bool               `json:"duplicate"`
	Note      string             `json:"note,omitempty"`
}

// Processor handles inbound provider notifications.
type Processor struct {
	uow    repository.UnitOfWork
	opts   Options
	now    func() time.Time
	logger logging.Logger
}

// Option customises a Processor.
type Option func(*Processor)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor.
func NewProcessor(uow repository.UnitOfWork, opts Options, logger logging.Logger, options ...Option) *Processor {
	if opts.FragmentWindow <= 0 {
		opts.FragmentWindow = DefaultFragmentWindow
	}
	if opts.LowLimit.IsZero() {
		opts.LowLimit = DefaultLowLimit
	}
	p := &Processor{
		uow:    uow,
		opts:   opts,
		now:    time.Now,
		logger: logging.OrDefault(logger),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Handle processes one webhook delivery. It never fails: errors are logged and recorded in
// the message log so the webhook can always be acknowledged.
func (p *Processor) Handle(ctx context.Context, sender, body string) Outcome {
	logger := p.logger.WithFields(logging.F(logging.FieldSender, sender))

	if !sameSender(sender, p.opts.SenderID) {
		logger.Info("Ignoring message from non-provider sender")
		outcome := Outcome{Kind: models.KindForeignSender}
		p.record(ctx, sender, body, outcome)
		return outcome
	}

	f := parse(body)
	outcome := Outcome{Kind: classify(f), TxnID: f.txnID}

	var err error
	switch outcome.Kind {
	case models.KindCashIn:
		err = p.uow.WithinTx(ctx, func(tx repository.Tx) error {
			return p.cashIn(ctx, tx, f, body, &outcome)
		})
	case models.KindCashOutComplete:
		err = p.uow.WithinTx(ctx, func(tx repository.Tx) error {
			return p.completeCashOut(ctx, tx, f, body, &outcome)
		})
	case models.KindCashOutPartial:
		err = p.uow.WithinTx(ctx, func(tx repository.Tx) error {
			return p.partialCashOut(ctx, tx, f, body, &outcome)
		})
	case models.KindContinuation:
		err = p.uow.WithinTx(ctx, func(tx repository.Tx) error {
			return p.continuation(ctx, tx, f, body, &outcome)
		})
	default:
		outcome.Note = "unrecognised message format"
		logger.Warn("Unrecognised provider message")
	}

	if err != nil {
		outcome.Stored = false
		outcome.Note = err.Error()
		logger.WithError(err).Error("Failed to process provider message",
			logging.F(logging.FieldKind, outcome.Kind),
			logging.F(logging.FieldTxnID, outcome.TxnID))
	}

	p.record(ctx, sender, body, outcome)
	return outcome
}

func (p *Processor) completeCashOut(ctx context.Context, tx repository.Tx, f fields, body string, out *Outcome) error {
	if dup, err := p.isDuplicateCashOut(ctx, tx, f.txnID, out); dup || err != nil {
		return err
	}

	prev, err := p.previousBalance(ctx, tx)
	if err != nil {
		return err
	}

	now := p.now()
	row := &models.CashOutTransaction{
		ID:               uuid.NewString(),
		Amount:           f.amount,
		Name:             f.name,
		Phone:            f.phone,
		TxnID:            f.txnID,
		Body:             body,
		PrevBal:          prev,
		NewBal:           f.balance.Decimal,
		LowLimit:         f.amount.LessThan(p.opts.LowLimit),
		VerificationCode: f.verificationCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	p.evaluate(row)
	if err := p.applyBalance(ctx, tx, row); err != nil {
		return err
	}

	if err := tx.Ledger().InsertCashOut(ctx, row); err != nil {
		return fmt.Errorf("failed to insert cash-out %s: %w", row.TxnID, err)
	}

	out.Stored = true
	out.Flagged = row.Flagged
	p.logStored(row, "Cash-out recorded")
	return nil
}

func (p *Processor) partialCashOut(ctx context.Context, tx repository.Tx, f fields, body string, out *Outcome) error {
	if f.hasTxnID() {
		if dup, err := p.isDuplicateCashOut(ctx, tx, f.txnID, out); dup || err != nil {
			return err
		}
	}

	now := p.now()
	existing, err := tx.Ledger().FindIncompleteCashOut(ctx, repository.FragmentQuery{
		Since:  now.Add(-p.opts.FragmentWindow),
		Amount: models.NullAmount(f.amount),
		Name:   f.name,
		Phone:  f.phone,
	})
	if err != nil {
		return fmt.Errorf("failed to look up incomplete cash-out: %w", err)
	}
	if existing != nil {
		return p.merge(ctx, tx, existing, f, body, out)
	}

	prev, err := p.previousBalance(ctx, tx)
	if err != nil {
		return err
	}

	row := &models.CashOutTransaction{
		ID:               uuid.NewString(),
		Amount:           f.amount,
		Name:             f.name,
		Phone:            f.phone,
		TxnID:            f.txnID,
		Body:             body,
		PrevBal:          prev,
		NewBal:           prev,
		LowLimit:         f.amount.LessThan(p.opts.LowLimit),
		VerificationCode: f.verificationCode,
		AwaitingBalance:  !f.balance.Valid,
		AwaitingTxnID:    !f.hasTxnID(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if row.TxnID == "" {
		row.TxnID = placeholderPrefix + uuid.NewString()
	}
	if f.balance.Valid {
		row.NewBal = f.balance.Decimal
	}
	p.evaluate(row)

	if err := tx.Ledger().InsertCashOut(ctx, row); err != nil {
		return fmt.Errorf("failed to insert incomplete cash-out: %w", err)
	}

	out.Stored = true
	out.Flagged = row.Flagged
	out.TxnID = row.TxnID
	p.logStored(row, "Incomplete cash-out recorded, awaiting fragments")
	return nil
}

func (p *Processor) continuation(ctx context.Context, tx repository.Tx, f fields, body string, out *Outcome) error {
	if f.hasTxnID() {
		if dup, err := p.isDuplicateCashOut(ctx, tx, f.txnID, out); dup || err != nil {
			return err
		}
	}

	existing, err := tx.Ledger().FindIncompleteCashOut(ctx, repository.FragmentQuery{
		Since:       p.now().Add(-p.opts.FragmentWindow),
		NeedBalance: f.balance.Valid && !f.hasTxnID(),
		NeedTxnID:   f.hasTxnID() && !f.balance.Valid,
	})
	if err != nil {
		return fmt.Errorf("failed to look up incomplete cash-out: %w", err)
	}
	if existing == nil {
		out.Note = "no incomplete transaction in window"
		p.logger.Info("Fragment matched no incomplete cash-out",
			logging.F(logging.FieldTxnID, f.txnID))
		return nil
	}
	return p.merge(ctx, tx, existing, f, body, out)
}

// merge fills the fields row is still waiting for and settles it once complete. The balance
// is applied at most once, on the transition to complete and clean.
func (p *Processor) merge(ctx context.Context, tx repository.Tx, row *models.CashOutTransaction, f fields, body string, out *Outcome) error {
	if f.hasTxnID() && row.AwaitingTxnID {
		row.TxnID = f.txnID
		row.AwaitingTxnID = false
	}
	if f.balance.Valid && row.AwaitingBalance {
		row.NewBal = f.balance.Decimal
		row.AwaitingBalance = false
	}
	if f.verificationCode != "" && row.VerificationCode == "" {
		row.VerificationCode = f.verificationCode
	}
	row.Body = strings.TrimSpace(row.Body + "\n" + body)
	row.UpdatedAt = p.now()
	p.evaluate(row)
	if err := p.applyBalance(ctx, tx, row); err != nil {
		return err
	}

	if err := tx.Ledger().UpdateCashOut(ctx, row); err != nil {
		return fmt.Errorf("failed to update cash-out %s: %w", row.ID, err)
	}

	out.Stored = true
	out.Flagged = row.Flagged
	out.TxnID = row.TxnID
	p.logStored(row, "Cash-out fragment merged")
	return nil
}

func (p *Processor) cashIn(ctx context.Context, tx repository.Tx, f fields, body string, out *Outcome) error {
	exists, err := tx.Ledger().CashInExists(ctx, f.txnID)
	if err != nil {
		return fmt.Errorf("failed to check cash-in %s: %w", f.txnID, err)
	}
	if exists {
		out.Duplicate = true
		out.Note = "duplicate transaction id"
		return nil
	}

	row := &models.CashInTransaction{
		ID:        uuid.NewString(),
		Amount:    f.amount,
		Name:      f.name,
		Phone:     f.phone,
		TxnID:     f.txnID,
		Body:      body,
		NewBal:    f.balance.Decimal,
		CreatedAt: p.now(),
	}
	if err := tx.Ledger().InsertCashIn(ctx, row); err != nil {
		return fmt.Errorf("failed to insert cash-in %s: %w", row.TxnID, err)
	}
	balance, err := tx.Balances().AdjustBalance(ctx, models.BalanceAgent, f.amount.Neg())
	if err != nil {
		return fmt.Errorf("failed to debit agent balance: %w", err)
	}

	out.Stored = true
	p.logger.Info("Cash-in recorded",
		logging.F(logging.FieldTxnID, row.TxnID),
		logging.F(logging.FieldAmount, row.Amount.String()),
		logging.F(logging.FieldBalance, balance.String()))
	return nil
}

// evaluate recomputes the flag of a row from its current contents.
func (p *Processor) evaluate(row *models.CashOutTransaction) {
	switch {
	case row.Incomplete():
		row.Flagged = true
		row.FlagReason = models.FlagIncomplete
	case !models.WithinTolerance(row.NewBal.Sub(row.Amount), row.PrevBal):
		row.Flagged = true
		row.FlagReason = models.FlagSuspicious
	default:
		row.Flagged = false
		row.FlagReason = ""
	}
}

// applyBalance credits the agent for a clean row once; the caller persists the row in the
// same unit of work.
func (p *Processor) applyBalance(ctx context.Context, tx repository.Tx, row *models.CashOutTransaction) error {
	if row.Flagged || row.BalanceApplied {
		return nil
	}
	if _, err := tx.Balances().AdjustBalance(ctx, models.BalanceAgent, row.Amount); err != nil {
		return fmt.Errorf("failed to credit agent balance: %w", err)
	}
	row.BalanceApplied = true
	return nil
}

func (p *Processor) previousBalance(ctx context.Context, tx repository.Tx) (decimal.Decimal, error) {
	latest, err := tx.Ledger().LatestSettledCashOut(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load previous balance: %w", err)
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.NewBal, nil
}

func (p *Processor) isDuplicateCashOut(ctx context.Context, tx repository.Tx, txnID string, out *Outcome) (bool, error) {
	existing, err := tx.Ledger().CashOutByTxnID(ctx, txnID)
	if err != nil {
		return false, fmt.Errorf("failed to check cash-out %s: %w", txnID, err)
	}
	if existing == nil {
		return false, nil
	}
	out.Duplicate = true
	out.Note = apperror.ErrDuplicateTransaction.Error()
	p.logger.Info("Duplicate cash-out acknowledged", logging.F(logging.FieldTxnID, txnID))
	return true, nil
}

func (p *Processor) logStored(row *models.CashOutTransaction, msg string) {
	fields := []logging.Field{
		logging.F(logging.FieldTxnID, row.TxnID),
		logging.F(logging.FieldAmount, row.Amount.String()),
		logging.F(logging.FieldBalance, row.NewBal.String()),
		logging.F(logging.FieldStatus, string(row.State())),
	}
	if row.Flagged {
		p.logger.Warn(msg, append(fields, logging.F(logging.FieldReason, row.FlagReason))...)
		return
	}
	p.logger.Info(msg, fields...)
}

// RecordMalformed stores a webhook payload that could not be decoded into a message,
// verbatim, so it can be inspected later. Like Handle it never fails.
func (p *Processor) RecordMalformed(ctx context.Context, sender, raw, reason string) {
	p.logger.Warn("Recording malformed provider payload",
		logging.F(logging.FieldSender, sender),
		logging.F(logging.FieldReason, reason))
	p.record(ctx, sender, raw, Outcome{Kind: models.KindMalformed, Note: reason})
}

// record writes the verbatim message log entry in its own unit of work so that it survives
// a failed processing attempt.
func (p *Processor) record(ctx context.Context, sender, body string, outcome Outcome) {
	entry := &models.MessageLog{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		Kind:      outcome.Kind,
		Note:      outcome.Note,
		CreatedAt: p.now(),
	}
	err := p.uow.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.Messages().LogMessage(ctx, entry)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.WithError(err).Error("Failed to write message log",
			logging.F(logging.FieldSender, sender))
	}
}

func sameSender(sender, expected string) bool {
	normalize := func(s string) string {
		return strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), "+")
	}
	return expected != "" && strings.EqualFold(normalize(sender), normalize(expected))
}
