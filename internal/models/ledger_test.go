package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCashOutState(t *testing.T) {
	tests := []struct {
		name     string
		tx       CashOutTransaction
		expected CashOutState
	}{
		{name: "complete", tx: CashOutTransaction{}, expected: CashOutComplete},
		{name: "waiting for balance", tx: CashOutTransaction{AwaitingBalance: true}, expected: CashOutAwaitingBalance},
		{name: "waiting for id", tx: CashOutTransaction{AwaitingTxnID: true}, expected: CashOutAwaitingTxnID},
		{name: "both missing waits for balance first", tx: CashOutTransaction{AwaitingBalance: true, AwaitingTxnID: true}, expected: CashOutAwaitingBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tx.State())
			assert.Equal(t, tt.expected != CashOutComplete, tt.tx.Incomplete())
		})
	}
}

func TestOrderHelpers(t *testing.T) {
	o := Order{Amount: decimal.RequireFromString("20.00"), Charge: decimal.RequireFromString("1.50")}
	assert.Equal(t, "21.50", o.Gross().StringFixed(2))

	assert.True(t, OrderDeposit.Valid())
	assert.False(t, OrderType("refund").Valid())
	assert.True(t, OrderWeltradeDeposit.DepositStyle())
	assert.False(t, OrderWithdrawal.DepositStyle())

	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.Equal(t, "trader:263771234567", TraderBalance("263771234567"))
}

func TestExtractedTransaction_IsValid(t *testing.T) {
	tx := ExtractedTransaction{}
	assert.False(t, tx.IsValid())

	tx.Amount = NullAmount(decimal.NewFromInt(5))
	assert.True(t, tx.HasAmount())
	assert.False(t, tx.IsValid())

	tx.Reference = "CO260125.1226.T9190887"
	assert.True(t, tx.IsValid())
}

func TestFeeRange_Contains(t *testing.T) {
	r := FeeRange{MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(10)}
	assert.True(t, r.Contains(decimal.NewFromInt(1)))
	assert.True(t, r.Contains(decimal.NewFromInt(10)))
	assert.False(t, r.Contains(decimal.RequireFromString("10.01")))
	assert.False(t, r.Contains(decimal.RequireFromString("0.99")))
}
