// Package pop matches a trader's proof of payment (screenshot and/or typed message) to a
// claimed amount and provider reference. It has no side effects; callers persist the outcome.
package pop

import (
	"context"
	"fmt"

	"ecobridge/internal/extractor"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/ocr"
)

// Confidence assigned to a result assembled from several partial attempts.
const (
	combinedBothConfidence = 0.8
	combinedOneConfidence  = 0.4
	combinedSuccessFloor   = 0.3
)

// Attempt records one extraction pass.
type Attempt struct {
	Source      models.ExtractionSource     `json:"source"`
	Transaction models.ExtractedTransaction `json:"transaction"`
	Error       string                      `json:"error,omitempty"`
}

// Result is the reconciliation outcome.
type Result struct {
	Transaction       models.ExtractedTransaction `json:"transaction"`
	Valid             bool                        `json:"valid"`
	ValidationMessage string                      `json:"validation_message"`
	Attempts          []Attempt                   `json:"attempts"`
}

// Reconciler runs OCR first, then text extraction, then combines partial results.
type Reconciler struct {
	engine    ocr.Engine
	extractor *extractor.Extractor
	logger    logging.Logger
}

// NewReconciler creates a Reconciler. A nil engine disables image processing.
func NewReconciler(engine ocr.Engine, ext *extractor.Extractor, logger logging.Logger) *Reconciler {
	logger = logging.OrDefault(logger)
	if ext == nil {
		ext = extractor.New(logger)
	}
	return &Reconciler{
		engine:    engine,
		extractor: ext,
		logger:    logger,
	}
}

// Reconcile extracts the claimed payment from image and message.
func (r *Reconciler) Reconcile(ctx context.Context, image []byte, message string) Result {
	var result Result

	if len(image) > 0 && r.engine != nil {
		attempt := r.fromImage(ctx, image)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Transaction.IsValid() {
			return finish(result, attempt.Transaction)
		}
	}

	if message != "" {
		tx := r.extractor.Extract(message)
		result.Attempts = append(result.Attempts, Attempt{Source: models.SourceText, Transaction: tx})
		if tx.IsValid() {
			return finish(result, tx)
		}
	}

	switch len(result.Attempts) {
	case 0:
		result.ValidationMessage = "No proof of payment supplied"
		return result
	case 1:
		return finish(result, result.Attempts[0].Transaction)
	default:
		return finish(result, combine(result.Attempts))
	}
}

func (r *Reconciler) fromImage(ctx context.Context, image []byte) Attempt {
	text, err := r.engine.ExtractText(ctx, image)
	if err != nil {
		r.logger.WithError(err).Warn("OCR failed, falling back to message text",
			logging.F(logging.FieldSource, models.SourceOCR))
		return Attempt{
			Source:      models.SourceOCR,
			Transaction: models.ExtractedTransaction{Source: models.SourceOCR},
			Error:       err.Error(),
		}
	}

	blocks := extractor.SegmentBlocks(text)
	selected := text
	if len(blocks) > 0 {
		// Screenshots list history oldest first; the payment being claimed is the last block.
		selected = blocks[len(blocks)-1]
	}
	r.logger.Debug("Segmented OCR text",
		logging.F(logging.FieldCount, len(blocks)))

	return Attempt{Source: models.SourceOCR, Transaction: r.extractor.ExtractFromBlock(selected)}
}

// combine takes the last non-empty amount and reference across attempts.
func combine(attempts []Attempt) models.ExtractedTransaction {
	combined := models.ExtractedTransaction{Source: models.SourceCombined, Pattern: "combined"}
	for _, a := range attempts {
		if a.Transaction.HasAmount() {
			combined.Amount = a.Transaction.Amount
		}
		if a.Transaction.HasReference() {
			combined.Reference = a.Transaction.Reference
		}
	}

	switch {
	case combined.IsValid():
		combined.Confidence = combinedBothConfidence
	case combined.HasAmount() || combined.HasReference():
		combined.Confidence = combinedOneConfidence
	}
	combined.Success = combined.Confidence > combinedSuccessFloor
	return combined
}

func finish(result Result, tx models.ExtractedTransaction) Result {
	result.Transaction = tx
	result.Valid = tx.IsValid()
	result.ValidationMessage = validationMessage(tx)
	return result
}

func validationMessage(tx models.ExtractedTransaction) string {
	switch {
	case tx.IsValid():
		return fmt.Sprintf("Payment of %s with reference %s detected", models.FormatUSD(tx.Amount.Decimal), tx.Reference)
	case tx.HasAmount():
		return fmt.Sprintf("Amount %s found but the transaction reference could not be read", models.FormatUSD(tx.Amount.Decimal))
	case tx.HasReference():
		return fmt.Sprintf("Reference %s found but the amount could not be read", tx.Reference)
	default:
		return "Could not read an amount or a transaction reference from the proof of payment"
	}
}
