package extractor

import (
	"regexp"
	"strings"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"
)

// structuredBlockPatterns each match one whole transaction block in OCR text. The first
// pattern with any match decides the segmentation.
var structuredBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)Your\s+CashOut\s+of\s+USD\s*\d[\d,]*(?:\.\d{1,2})?.*?Approval\s+Code\s*:?\s*[A-Z0-9]+\.[A-Z0-9]+\.[A-Z0-9]+`),
	regexp.MustCompile(`(?is)Ecocash:?\s*CashOut\s+Confirmation.*?USD\s*\d[\d,]*(?:\.\d{1,2})?.*?Txn\s*ID\s*:?\s*[A-Z0-9]+\.\d{4}\.[A-Z0-9]+`),
	regexp.MustCompile(`(?is)CashOut.*?USD\s*\d[\d,]*(?:\.\d{1,2})?.*?Approval\s+Code\s*:?\s*[A-Z0-9]+\.[A-Z0-9]+\.[A-Z0-9]+`),
}

var (
	blockMarkerPattern = regexp.MustCompile(`(?i)Your\s+CashOut|Ecocash:\s*CashOut|Ecocash:|CashOut`)

	plausibleBlockPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)USD\s*\d`),
		regexp.MustCompile(`\$\s*\d`),
		regexp.MustCompile(`(?i)Txn\s*ID|Approval\s+Code`),
		regexp.MustCompile(`(?i)[A-Z]{2}\d{6}\.\d{4}\.[A-Z]\d{5,7}`),
	}
)

// blockStrategies are tried in order within one block.
var blockStrategies = []strategy{
	{
		name:    "block_your_cashout_approval",
		pattern: regexp.MustCompile(`(?is)Your\s+CashOut\s+of\s+USD\s*` + amountGroup + `.*?Approval\s+Code\s*:?\s*([A-Z0-9]+\.[A-Z0-9]+\.[A-Z0-9]+)`),
	},
	{
		name:    "block_txn_id",
		pattern: regexp.MustCompile(`(?is)USD\s*` + amountGroup + `.*?Txn\s*ID\s*:?\s*([A-Z0-9]+\.\d{4}\.[A-Z0-9]+)`),
	},
	{
		name:    "block_approval_code",
		pattern: regexp.MustCompile(`(?is)USD\s*` + amountGroup + `.*?Approval\s+Code\s*:?\s*([A-Z0-9]+\.[A-Z0-9]+\.[A-Z0-9]+)`),
	},
}

// SegmentBlocks splits OCR text into candidate CashOut transaction blocks in textual order.
func SegmentBlocks(text string) []string {
	for _, p := range structuredBlockPatterns {
		if matches := p.FindAllString(text, -1); len(matches) > 0 {
			return matches
		}
	}

	starts := blockMarkerPattern.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	var blocks []string
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		block := strings.TrimSpace(text[loc[0]:end])
		if plausibleBlock(block) {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func plausibleBlock(block string) bool {
	for _, p := range plausibleBlockPatterns {
		if p.MatchString(block) {
			return true
		}
	}
	return false
}

// ExtractFromBlock extracts from a single OCR block, falling back to Extract.
func (e *Extractor) ExtractFromBlock(block string) models.ExtractedTransaction {
	for _, s := range blockStrategies {
		m := s.pattern.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		result := models.ExtractedTransaction{
			Source:  models.SourceOCR,
			RawText: block,
			Pattern: s.name,
		}
		applyMatch(&result, m[1], m[2])
		score(&result)
		e.logger.Debug("Extracted transaction from OCR block",
			logging.F(logging.FieldPattern, s.name),
			logging.F(logging.FieldReference, result.Reference))
		return result
	}

	result := e.Extract(block)
	result.Source = models.SourceOCR
	return result
}
