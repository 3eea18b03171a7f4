package pop

import (
	"context"
	"errors"
	"testing"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/ocr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyScreenshot = `EcoCash
Your CashOut of USD 10.00 to agent 12345 was successful.
Approval Code: CO240101.1200.T12345
Your CashOut of USD 20.00 to agent 12345 was successful.
Approval Code: CO240102.0800.T67890`

var image = []byte("\x89PNG\r\n\x1a\nfake")

func TestReconcile_PicksLastBlock(t *testing.T) {
	r := NewReconciler(ocr.NewMockEngine(historyScreenshot, nil), nil, logging.NewMockLogger())

	got := r.Reconcile(context.Background(), image, "")

	require.True(t, got.Valid)
	assert.True(t, got.Transaction.Amount.Decimal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "CO240102.0800.T67890", got.Transaction.Reference)
	assert.Equal(t, models.SourceOCR, got.Transaction.Source)
	assert.Len(t, got.Attempts, 1)
	assert.Contains(t, got.ValidationMessage, "USD 20.00")
}

func TestReconcile_OCRFailureFallsBackToText(t *testing.T) {
	logger := logging.NewMockLogger()
	engine := ocr.NewMockEngine("", errors.New("quota exceeded"))
	r := NewReconciler(engine, nil, logger)

	got := r.Reconcile(context.Background(), image,
		"Ecocash CashOut Confirmation: USD 0.10 transfered from 771542944 - TATENDA NYAKUDZIGUM was successful. Txn ID: CO260125.1226.T9190887")

	require.True(t, got.Valid)
	assert.Equal(t, models.SourceText, got.Transaction.Source)
	require.Len(t, got.Attempts, 2)
	assert.Equal(t, "quota exceeded", got.Attempts[0].Error)
	assert.True(t, logger.HasEntry("WARN", "OCR failed, falling back to message text"))
}

func TestReconcile_CombinesPartialResults(t *testing.T) {
	r := NewReconciler(ocr.NewMockEngine("Receipt\nCO240102.0800.T67890", nil), nil, nil)

	got := r.Reconcile(context.Background(), image, "I sent USD 20")

	require.True(t, got.Valid)
	assert.Equal(t, models.SourceCombined, got.Transaction.Source)
	assert.Equal(t, "CO240102.0800.T67890", got.Transaction.Reference)
	assert.True(t, got.Transaction.Amount.Decimal.Equal(decimal.NewFromInt(20)))
	assert.InDelta(t, 0.8, got.Transaction.Confidence, 1e-9)
}

func TestReconcile_CombinedPrefersLaterAttempt(t *testing.T) {
	r := NewReconciler(ocr.NewMockEngine("CashOut USD 5.00 done", nil), nil, nil)

	got := r.Reconcile(context.Background(), image, "it was USD 6")

	assert.False(t, got.Valid)
	assert.Equal(t, models.SourceCombined, got.Transaction.Source)
	assert.True(t, got.Transaction.Amount.Decimal.Equal(decimal.NewFromInt(6)))
	assert.InDelta(t, 0.4, got.Transaction.Confidence, 1e-9)
	assert.True(t, got.Transaction.Success)
	assert.Contains(t, got.ValidationMessage, "reference could not be read")
}

func TestReconcile_TextOnly(t *testing.T) {
	r := NewReconciler(nil, nil, nil)

	got := r.Reconcile(context.Background(), image, "hello")

	assert.False(t, got.Valid)
	assert.Len(t, got.Attempts, 1)
	assert.Equal(t, "Could not read an amount or a transaction reference from the proof of payment", got.ValidationMessage)
}

func TestReconcile_NothingSupplied(t *testing.T) {
	r := NewReconciler(ocr.NewMockEngine("x", nil), nil, nil)

	got := r.Reconcile(context.Background(), nil, "")

	assert.False(t, got.Valid)
	assert.Empty(t, got.Attempts)
	assert.Equal(t, "No proof of payment supplied", got.ValidationMessage)
}
