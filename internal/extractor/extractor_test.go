package extractor

import (
	"testing"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountOf(t *testing.T, tx models.ExtractedTransaction) decimal.Decimal {
	t.Helper()
	require.True(t, tx.HasAmount(), "expected an amount")
	return tx.Amount.Decimal
}

func TestExtract_Formats(t *testing.T) {
	e := New(logging.NewMockLogger())

	tests := []struct {
		name       string
		message    string
		amount     string
		reference  string
		pattern    string
		confidence float64
	}{
		{
			name:       "new format",
			message:    "Ecocash CashOut Confirmation: USD 0.10 transfered from 771542944 - TATENDA NYAKUDZIGUM was successful. Txn ID: CO260125.1226.T9190887",
			amount:     "0.10",
			reference:  "CO260125.1226.T9190887",
			pattern:    "ecocash_cashout_new",
			confidence: 1.0,
		},
		{
			name:       "new format double r",
			message:    "Ecocash CashOut Confirmation: USD 25.50 transferred from 0771234567 - RUDO CHIKORE was successful. Txn ID: CO260201.0930.F1234567",
			amount:     "25.50",
			reference:  "CO260201.0930.F1234567",
			pattern:    "ecocash_cashout_new",
			confidence: 1.0,
		},
		{
			name:       "legacy format",
			message:    "Ecocash: CashOut Confirmation: USD 190 to 057935- LONELY MUUSHA.Txn ID :CO251113.0614.F36867.",
			amount:     "190",
			reference:  "CO251113.0614.F36867",
			pattern:    "ecocash_cashout_legacy",
			confidence: 1.0,
		},
		{
			name:       "diaspora format",
			message:    "Diaspora Funds Cash-out Confirmation. You have received USD 1,250.50 from JOHN MOYO. Txn ID: DF240101.1200.A12345",
			amount:     "1250.50",
			reference:  "DF240101.1200.A12345",
			pattern:    "diaspora_cashout",
			confidence: 1.0,
		},
		{
			name:       "generic cashout",
			message:    "CashOut Confirmation for agent 12345 amount USD 40.00 Txn ID: XY123.4567.Z9",
			amount:     "40.00",
			reference:  "XY123.4567.Z9",
			pattern:    "generic_cashout",
			confidence: 1.0,
		},
		{
			name:       "fully generic",
			message:    "Payment of USD 12 received, reference ID: ab12.cd34",
			amount:     "12",
			reference:  "AB12.CD34",
			pattern:    "generic_usd_id",
			confidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.message)

			assert.True(t, amountOf(t, got).Equal(decimal.RequireFromString(tt.amount)), "amount %s", got.Amount.Decimal)
			assert.Equal(t, tt.reference, got.Reference)
			assert.Equal(t, tt.pattern, got.Pattern)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.True(t, got.Success)
			assert.Equal(t, models.SourceText, got.Source)
		})
	}
}

func TestExtract_StrategyOrder(t *testing.T) {
	e := New(nil)
	// Matches both the new-format and the generic strategies; the earlier one wins.
	got := e.Extract("Ecocash CashOut Confirmation: USD 3.00 transfered from 771 - A B. Txn ID: CO260125.1226.T9190887")
	assert.Equal(t, "ecocash_cashout_new", got.Pattern)
}

func TestExtract_Fallback(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name       string
		message    string
		amount     string
		reference  string
		confidence float64
		success    bool
	}{
		{
			name:       "truncated message keeps amount",
			message:    "Ecocash CashOut Confirmation: USD 5.00 transfered from 771234567 - JOHN",
			amount:     "5.00",
			confidence: 0.5,
			success:    true,
		},
		{
			name:       "dollar sign amount and cashout reference",
			message:    "paid $7.25 ref co260125.1226.t9190887 thanks",
			amount:     "7.25",
			reference:  "CO260125.1226.T9190887",
			confidence: 1.0,
			success:    true,
		},
		{
			name:       "trailing currency",
			message:    "I sent 30 USD",
			amount:     "30",
			confidence: 0.5,
			success:    true,
		},
		{
			name:       "merchant reference only",
			message:    "reference MP240101.1200.A1234567",
			reference:  "MP240101.1200.A1234567",
			confidence: 0.7,
			success:    true,
		},
		{
			name:    "nothing recognisable",
			message: "hello, I paid already",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.message)

			if tt.amount == "" {
				assert.False(t, got.HasAmount())
			} else {
				assert.True(t, amountOf(t, got).Equal(decimal.RequireFromString(tt.amount)))
			}
			assert.Equal(t, tt.reference, got.Reference)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.success, got.Success)
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "USD 1250.50 Txn ID: CO1.2.3", Clean("USD  1,250.50\n Txn ID: CO1.2.3!"))
	assert.Equal(t, "a-b $5", Clean("  a-b\t$5 "))
}
