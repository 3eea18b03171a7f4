package notification

import (
	"testing"

	"ecobridge/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.MessageKind
	}{
		{"complete cash-out", cashOut("10.00", "CO260125.1226.T9190881", "10.00"), models.KindCashOutComplete},
		{"head only", "Cash-Out Confirmation: USD 5.00 from 771234567 - TATENDA MOYO successful.", models.KindCashOutPartial},
		{"balance fragment", "New Wallet balance: USD 212.44.", models.KindContinuation},
		{"txn id fragment", "Txn ID: CO260125.1226.T9190887.", models.KindContinuation},
		{"tail of split message", "TATENDA MOYO successful. Txn ID: CO260125.1226.T9190887. New Wallet balance: USD 17.50.", models.KindContinuation},
		{"merchant payment", "Ecocash: Payment of USD 50.00 to OK ZIMBABWE. Txn ID: MP260125.1230.A123456. New Wallet balance: USD 15.00.", models.KindUnrecognized},
		{"stray amount", "USD 4.00 Txn ID: MP260125.1230.A123456.", models.KindUnrecognized},
		{"bill payment header", "Bill paid to ZESA. New Wallet balance: USD 15.00.", models.KindUnrecognized},
		{"nothing to use", "Your EcoCash PIN was changed", models.KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(parse(tt.body)))
		})
	}
}
