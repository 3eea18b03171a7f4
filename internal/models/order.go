package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes the conversational flows that create orders.
type OrderType string

const (
	OrderDeposit         OrderType = "deposit"
	OrderWithdrawal      OrderType = "withdrawal"
	OrderWeltradeDeposit OrderType = "weltrade_deposit"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderDeposit, OrderWithdrawal, OrderWeltradeDeposit:
		return true
	}
	return false
}

// DepositStyle reports whether the order moves money out of the operational float
// (the agent pays the trader's trading account).
func (t OrderType) DepositStyle() bool {
	return t == OrderDeposit || t == OrderWeltradeDeposit
}

// OrderStatus is the lifecycle state of an order. Completed and Failed are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusCompleted OrderStatus = "Completed"
	StatusFailed    OrderStatus = "Failed"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// POPStatus tracks proof-of-payment review while the order is still Pending.
type POPStatus string

const (
	POPNone        POPStatus = ""
	POPProcessing  POPStatus = "processing"
	POPAwaitingPOP POPStatus = "awaiting_pop"
)

// Order is a trader's deposit or withdrawal request.
type Order struct {
	ID              string          `json:"id"`
	TraderID        string          `json:"trader_id"`
	Type            OrderType       `json:"order_type"`
	Amount          decimal.Decimal `json:"amount"`
	Charge          decimal.Decimal `json:"charge"`
	AccountNumber   string          `json:"account_number"`
	EcocashNumber   string          `json:"ecocash_number"`
	EcocashName     string          `json:"ecocash_name"`
	Status          OrderStatus     `json:"status"`
	POPStatus       POPStatus       `json:"pop_status,omitempty"`
	AdminNote       string          `json:"admin_note,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Gross is the amount the trader pays including the charge.
func (o Order) Gross() decimal.Decimal {
	return o.Amount.Add(o.Charge)
}
