package notification

import (
	"regexp"
	"strings"

	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
)

const amountGroup = `(\d[\d,]*(?:\.\d{1,2})?)`

var (
	cashOutHeadPattern = regexp.MustCompile(`(?i)Cash-?Out\s+Confirmation:?\s*USD\s*` + amountGroup +
		`\s+(?:transfer(?:r)?ed\s+)?from\s+(\+?\d+)\s*-\s*([A-Za-z][A-Za-z .'-]*?)\s*(?:was\s+)?successful`)
	cashInPattern = regexp.MustCompile(`(?i)Cash-?In\s+Confirmation:?\s*USD\s*` + amountGroup +
		`\s+to\s+(?:(\+?\d+)\s*-\s*)?([A-Za-z][A-Za-z .'-]*?)\s*(?:was\s+)?successful`)
	txnIDPattern        = regexp.MustCompile(`(?i)Txn\s*ID\s*:?\s*([A-Z]{2}\d{6}\.\d{4}\.[A-Z]\d{5,7})`)
	balancePattern      = regexp.MustCompile(`(?i)(?:New\s+)?Wallet\s+balance\s*(?:is)?:?\s*USD\s*` + amountGroup)
	verificationPattern = regexp.MustCompile(`(?i)Verification\s+Code\s*:?\s*([A-Z0-9]+)`)
	spacePattern        = regexp.MustCompile(`\s+`)

	// A fragment carries no amount or transaction header of its own once the balance,
	// Txn ID and verification code clauses are removed.
	strayAmountPattern = regexp.MustCompile(`(?i)(?:USD|\$)\s*\d|\d(?:[\d,]*\.\d{1,2})?\s*USD\b`)
	headerPattern      = regexp.MustCompile(`(?i)\b(?:payment|paid|pay|transfer(?:red)?|sent|received|cash-?\s*(?:in|out)|deposit|withdrawal|airtime|purchase|bill|confirmation)\b`)
)

// fields holds whatever one provider message revealed.
type fields struct {
	cashIn           bool
	head             bool
	amount           decimal.Decimal
	phone            string
	name             string
	txnID            string
	balance          decimal.NullDecimal
	verificationCode string
	// bare is set when nothing but fragment clauses was found.
	bare bool
}

func (f fields) hasTxnID() bool { return f.txnID != "" }

func parse(body string) fields {
	text := strings.TrimSpace(spacePattern.ReplaceAllString(body, " "))
	var f fields

	if m := cashInPattern.FindStringSubmatch(text); m != nil {
		if amount, err := models.ParseAmount(m[1]); err == nil {
			f.cashIn = true
			f.amount = amount
			f.phone = m[2]
			f.name = strings.TrimSpace(m[3])
		}
	} else if m := cashOutHeadPattern.FindStringSubmatch(text); m != nil {
		if amount, err := models.ParseAmount(m[1]); err == nil {
			f.head = true
			f.amount = amount
			f.phone = m[2]
			f.name = strings.TrimSpace(m[3])
		}
	}

	if m := txnIDPattern.FindStringSubmatch(text); m != nil {
		f.txnID = strings.ToUpper(m[1])
	}
	if m := balancePattern.FindStringSubmatch(text); m != nil {
		if balance, err := models.ParseAmount(m[1]); err == nil {
			f.balance = models.NullAmount(balance)
		}
	}
	if m := verificationPattern.FindStringSubmatch(text); m != nil {
		f.verificationCode = strings.ToUpper(m[1])
	}
	f.bare = !f.cashIn && !f.head && bareFragment(text)
	return f
}

// bareFragment reports whether text is only the tail of a split cash-out message.
func bareFragment(text string) bool {
	rest := text
	for _, p := range []*regexp.Regexp{balancePattern, txnIDPattern, verificationPattern} {
		rest = p.ReplaceAllString(rest, " ")
	}
	return !strayAmountPattern.MatchString(rest) && !headerPattern.MatchString(rest)
}

// classify orders the message kinds: cash-in, complete cash-out, partial cash-out,
// continuation fragment, unrecognised. Messages of any other transaction type are
// unrecognised even when they carry a Txn ID or a wallet balance.
func classify(f fields) models.MessageKind {
	switch {
	case f.cashIn && f.hasTxnID():
		return models.KindCashIn
	case f.head && f.hasTxnID() && f.balance.Valid:
		return models.KindCashOutComplete
	case f.head:
		return models.KindCashOutPartial
	case f.bare && (f.hasTxnID() || f.balance.Valid):
		return models.KindContinuation
	default:
		return models.KindUnrecognized
	}
}
