package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstants_Unique(t *testing.T) {
	all := []string{
		FieldOrderID, FieldTraderID, FieldOrderType, FieldStatus, FieldAmount, FieldCharge,
		FieldTxnID, FieldReference, FieldSender, FieldKind, FieldConfidence, FieldSource,
		FieldPattern, FieldReason, FieldOperation, FieldError, FieldDuration, FieldCount,
		FieldBalance, FieldPhone,
	}
	seen := make(map[string]bool, len(all))
	for _, name := range all {
		assert.NotEmpty(t, name)
		assert.False(t, seen[name], "duplicate field name %q", name)
		seen[name] = true
	}
}
