package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger balance names.
const (
	BalanceAgent = "Agent"
	BalanceMain  = "main"
)

// TraderBalance returns the wallet balance name of a trader.
func TraderBalance(traderID string) string {
	return "trader:" + traderID
}

// Flag reasons recorded on cash-out rows.
const (
	FlagSuspicious = "Suspicious transaction"
	FlagIncomplete = "Incomplete and suspicious"
)

// CashOutTransaction corroborates a provider-side cash-out against the agent ledger.
type CashOutTransaction struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone"`
	TxnID            string          `json:"txn_id"`
	Body             string          `json:"body"`
	PrevBal          decimal.Decimal `json:"prev_bal"`
	NewBal           decimal.Decimal `json:"new_bal"`
	Flagged          bool            `json:"flagged"`
	FlagReason       string          `json:"flag_reason,omitempty"`
	LowLimit         bool            `json:"low_limit"`
	VerificationCode string          `json:"verification_code,omitempty"`
	AwaitingBalance  bool            `json:"awaiting_balance"`
	AwaitingTxnID    bool            `json:"awaiting_txn_id"`
	BalanceApplied   bool            `json:"balance_applied"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CashOutState names where a cash-out row is in fragment reassembly.
type CashOutState string

const (
	CashOutComplete        CashOutState = "complete"
	CashOutAwaitingBalance CashOutState = "incomplete-awaiting-balance"
	CashOutAwaitingTxnID   CashOutState = "incomplete-awaiting-id"
)

// State derives the reassembly state from the awaiting flags. A row missing both pieces
// waits for the balance first.
func (c CashOutTransaction) State() CashOutState {
	switch {
	case c.AwaitingBalance:
		return CashOutAwaitingBalance
	case c.AwaitingTxnID:
		return CashOutAwaitingTxnID
	default:
		return CashOutComplete
	}
}

// Incomplete reports whether a later fragment is still expected.
func (c CashOutTransaction) Incomplete() bool {
	return c.AwaitingBalance || c.AwaitingTxnID
}

// CashInTransaction records an agent accepting a cash deposit.
type CashInTransaction struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	TxnID     string          `json:"txn_id"`
	Body      string          `json:"body"`
	NewBal    decimal.Decimal `json:"new_bal"`
	CreatedAt time.Time       `json:"created_at"`
}

// MessageKind classifies an inbound provider message.
type MessageKind string

const (
	KindCashOutComplete MessageKind = "cashout_complete"
	KindCashOutPartial  MessageKind = "cashout_partial"
	KindContinuation    MessageKind = "continuation"
	KindCashIn          MessageKind = "cashin"
	KindUnrecognized    MessageKind = "unrecognized"
	KindForeignSender   MessageKind = "foreign_sender"
	// KindMalformed is a webhook delivery that could not be decoded at all.
	KindMalformed MessageKind = "malformed"
)

// MessageLog is the verbatim record of an inbound webhook message.
type MessageLog struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Receipt is the persisted outcome of a proof-of-payment extraction for an order.
type Receipt struct {
	ID                string              `json:"id"`
	OrderID           string              `json:"order_id"`
	Amount            decimal.NullDecimal `json:"amount"`
	Reference         string              `json:"reference"`
	Confidence        float64             `json:"confidence"`
	Source            ExtractionSource    `json:"source"`
	ValidationMessage string              `json:"validation_message"`
	CreatedAt         time.Time           `json:"created_at"`
}
