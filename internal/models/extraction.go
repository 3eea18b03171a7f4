package models

import "github.com/shopspring/decimal"

// ExtractionSource records where an extracted amount/reference pair came from.
type ExtractionSource string

const (
	SourceOCR      ExtractionSource = "ocr"
	SourceText     ExtractionSource = "text"
	SourceCombined ExtractionSource = "combined"
)

// ExtractedTransaction is the transient result of one extraction attempt over a provider
// message or a proof-of-payment screenshot. It is never persisted directly.
type ExtractedTransaction struct {
	Amount     decimal.NullDecimal `json:"amount"`
	Reference  string              `json:"reference,omitempty"`
	Confidence float64             `json:"confidence"`
	Success    bool                `json:"success"`
	Source     ExtractionSource    `json:"source"`
	Pattern    string              `json:"pattern,omitempty"`
	RawText    string              `json:"-"`
}

// HasAmount reports whether an amount was found.
func (t ExtractedTransaction) HasAmount() bool {
	return t.Amount.Valid
}

// HasReference reports whether a reference was found.
func (t ExtractedTransaction) HasReference() bool {
	return t.Reference != ""
}

// IsValid reports whether both amount and reference are present.
func (t ExtractedTransaction) IsValid() bool {
	return t.HasAmount() && t.HasReference()
}
