package repository

import (
	"testing"
	"time"

	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFragmentQuery_Matches(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 26, 0, 0, time.UTC)
	base := models.CashOutTransaction{
		Amount:          decimal.RequireFromString("5.00"),
		Name:            "TATENDA MOYO",
		Phone:           "771234567",
		AwaitingBalance: true,
		CreatedAt:       now.Add(-30 * time.Second),
	}

	tests := []struct {
		name     string
		query    FragmentQuery
		mutate   func(*models.CashOutTransaction)
		expected bool
	}{
		{
			name:     "all fields match",
			query:    FragmentQuery{Since: now.Add(-time.Minute), Amount: models.NullAmount(decimal.RequireFromString("5")), Name: "TATENDA MOYO", Phone: "771234567"},
			expected: true,
		},
		{
			name:     "outside window",
			query:    FragmentQuery{Since: now.Add(-10 * time.Second)},
			expected: false,
		},
		{
			name:     "different amount",
			query:    FragmentQuery{Since: now.Add(-time.Minute), Amount: models.NullAmount(decimal.RequireFromString("6"))},
			expected: false,
		},
		{
			name:     "different phone",
			query:    FragmentQuery{Since: now.Add(-time.Minute), Phone: "772000000"},
			expected: false,
		},
		{
			name:     "needs txn id but only balance is missing",
			query:    FragmentQuery{Since: now.Add(-time.Minute), NeedTxnID: true},
			expected: false,
		},
		{
			name:     "complete rows never match",
			query:    FragmentQuery{Since: now.Add(-time.Minute)},
			mutate:   func(tx *models.CashOutTransaction) { tx.AwaitingBalance = false },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := base
			if tt.mutate != nil {
				tt.mutate(&tx)
			}
			assert.Equal(t, tt.expected, tt.query.Matches(tx))
		})
	}
}
