// Package extractor pulls the claimed amount and transaction reference out of free-text
// provider messages and OCR output. Provider formats changed over time and SMS transport
// truncates messages, so extraction degrades through ordered pattern lists instead of failing.
package extractor

import (
	"regexp"
	"strings"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"
)

// Confidence contributions.
const (
	amountWeight       = 0.5
	referenceWeight    = 0.5
	dottedShapeBonus   = 0.2
	cashOutShapeBonus  = 0.3
	successThreshold   = 0.3
	maxConfidenceScore = 1.0
)

const amountGroup = `(\d[\d,]*(?:\.\d{1,2})?)`

// strategy is one named pattern. Group 1 captures the amount, group 2 the reference.
type strategy struct {
	name    string
	pattern *regexp.Regexp
}

// messageStrategies are tried in order against the cleaned message; the first match wins.
var messageStrategies = []strategy{
	{
		name:    "ecocash_cashout_new",
		pattern: regexp.MustCompile(`(?i)Ecocash\s+CashOut\s+Confirmation:?\s*USD\s*` + amountGroup + `\s+transfer(?:r)?ed\s+from.*?Txn\s*ID\s*:?\s*([A-Z]{2}\d{6}\.\d{4}\.[A-Z]\d{5,7})`),
	},
	{
		name:    "ecocash_cashout_legacy",
		pattern: regexp.MustCompile(`(?i)Ecocash:\s*CashOut\s+Confirmation:?\s*USD\s*` + amountGroup + `\s+to\s+.*?Txn\s*ID\s*:?\s*([A-Z]{2}\d{6}\.\d{4}\.[A-Z]\d{5,7})`),
	},
	{
		name:    "diaspora_cashout",
		pattern: regexp.MustCompile(`(?i)Diaspora\s+Funds\s+Cash-?out.*?USD\s*` + amountGroup + `.*?Txn\s*ID\s*:?\s*([A-Z0-9]+\.\d{4}\.[A-Z0-9]+)`),
	},
	{
		name:    "generic_cashout",
		pattern: regexp.MustCompile(`(?i)CashOut\s+Confirmation.*?USD\s*` + amountGroup + `.*?Txn\s*ID\s*:?\s*([A-Z0-9]+\.\d{4}\.[A-Z0-9]+)`),
	},
	{
		name:    "generic_usd_id",
		pattern: regexp.MustCompile(`(?i)USD\s*` + amountGroup + `.*?\bID\b\s*:?\s*([A-Z0-9]+(?:\.[A-Z0-9]+)+)`),
	},
}

// Fallback patterns applied to the original message when the strategies leave a field empty.
var (
	fallbackAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)USD\s*` + amountGroup),
		regexp.MustCompile(`\$\s*` + amountGroup),
		regexp.MustCompile(`(?i)` + amountGroup + `\s*USD`),
	}

	fallbackReferencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(CO\d{6}\.\d{4}\.[TF]\d{5,7})\b`),
		regexp.MustCompile(`(?i)\b((?:MP|PP|CI|CT)\d{6}\.\d{4}\.[A-Z]\d{5,7})\b`),
		regexp.MustCompile(`(?i)\b([A-Z]{2}\d{6}\.\d{4}\.[A-Z]\d{5,7})\b`),
	}

	whitespacePattern  = regexp.MustCompile(`\s+`)
	disallowedPattern  = regexp.MustCompile(`[^\w\s.:\-$]`)
	dottedShapePattern = regexp.MustCompile(`^[A-Z0-9]+\.\d+\.[A-Z0-9]+$`)
	cashOutShape       = regexp.MustCompile(`^CO\d{6}\.\d{4}\.[TF]\d{5,7}$`)
)

// Extractor extracts amount/reference pairs from message text.
type Extractor struct {
	logger logging.Logger
}

// New creates an Extractor.
func New(logger logging.Logger) *Extractor {
	return &Extractor{logger: logging.OrDefault(logger)}
}

// Clean collapses whitespace and drops characters outside word characters, whitespace,
// '.', ':', '-' and '$'.
func Clean(message string) string {
	cleaned := whitespacePattern.ReplaceAllString(message, " ")
	cleaned = disallowedPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// Extract runs the message strategies and the raw-message fallback over message.
func (e *Extractor) Extract(message string) models.ExtractedTransaction {
	result := models.ExtractedTransaction{
		Source:  models.SourceText,
		RawText: message,
	}

	cleaned := Clean(message)
	for _, s := range messageStrategies {
		m := s.pattern.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		applyMatch(&result, m[1], m[2])
		result.Pattern = s.name
		break
	}

	if !result.IsValid() {
		fillMissing(&result, message)
	}

	score(&result)
	e.logger.Debug("Extracted transaction from text",
		logging.F(logging.FieldPattern, result.Pattern),
		logging.F(logging.FieldReference, result.Reference),
		logging.F(logging.FieldConfidence, result.Confidence))
	return result
}

// fillMissing fills only the fields still empty using the permissive patterns.
func fillMissing(result *models.ExtractedTransaction, message string) {
	if !result.HasAmount() {
		for _, p := range fallbackAmountPatterns {
			m := p.FindStringSubmatch(message)
			if m == nil {
				continue
			}
			if amount, err := models.ParseAmount(m[1]); err == nil {
				result.Amount = models.NullAmount(amount)
				break
			}
		}
	}
	if !result.HasReference() {
		for _, p := range fallbackReferencePatterns {
			if m := p.FindStringSubmatch(message); m != nil {
				result.Reference = normalizeReference(m[1])
				break
			}
		}
	}
	if result.Pattern == "" && (result.HasAmount() || result.HasReference()) {
		result.Pattern = "fallback"
	}
}

func applyMatch(result *models.ExtractedTransaction, rawAmount, rawReference string) {
	if amount, err := models.ParseAmount(rawAmount); err == nil {
		result.Amount = models.NullAmount(amount)
	}
	result.Reference = normalizeReference(rawReference)
}

func normalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(ref), "."))
}

// score sets Confidence and Success from the fields found.
func score(result *models.ExtractedTransaction) {
	confidence := 0.0
	if result.HasAmount() {
		confidence += amountWeight
	}
	if result.HasReference() {
		confidence += referenceWeight
		if dottedShapePattern.MatchString(result.Reference) {
			confidence += dottedShapeBonus
		}
		if cashOutShape.MatchString(result.Reference) {
			confidence += cashOutShapeBonus
		}
	}
	if confidence > maxConfidenceScore {
		confidence = maxConfidenceScore
	}
	result.Confidence = confidence
	result.Success = confidence > successThreshold
}
