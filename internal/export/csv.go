// Package export writes ledger records to CSV for reconciliation audits.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"

	"github.com/gocarina/gocsv"
)

// DateTimeFormat is the timestamp layout used in exported files.
const DateTimeFormat = "2006-01-02 15:04:05"

// CashOutRow is one exported cash-out line.
type CashOutRow struct {
	CreatedAt        string `csv:"created_at"`
	TxnID            string `csv:"txn_id"`
	Amount           string `csv:"amount"`
	Name             string `csv:"name"`
	Phone            string `csv:"phone"`
	PrevBal          string `csv:"prev_bal"`
	NewBal           string `csv:"new_bal"`
	State            string `csv:"state"`
	Flagged          bool   `csv:"flagged"`
	FlagReason       string `csv:"flag_reason"`
	LowLimit         bool   `csv:"low_limit"`
	BalanceApplied   bool   `csv:"balance_applied"`
	VerificationCode string `csv:"verification_code"`
}

// NewCashOutRow formats a cash-out for export. Amounts carry two decimals.
func NewCashOutRow(tx models.CashOutTransaction, loc *time.Location) CashOutRow {
	if loc == nil {
		loc = time.UTC
	}
	return CashOutRow{
		CreatedAt:        tx.CreatedAt.In(loc).Format(DateTimeFormat),
		TxnID:            tx.TxnID,
		Amount:           tx.Amount.StringFixed(models.MoneyPlaces),
		Name:             tx.Name,
		Phone:            tx.Phone,
		PrevBal:          tx.PrevBal.StringFixed(models.MoneyPlaces),
		NewBal:           tx.NewBal.StringFixed(models.MoneyPlaces),
		State:            string(tx.State()),
		Flagged:          tx.Flagged,
		FlagReason:       tx.FlagReason,
		LowLimit:         tx.LowLimit,
		BalanceApplied:   tx.BalanceApplied,
		VerificationCode: tx.VerificationCode,
	}
}

// Writer marshals rows with a configurable delimiter.
type Writer struct {
	Delimiter rune
	Location  *time.Location
	logger    logging.Logger
}

// NewWriter creates a Writer using delim (',' when zero).
func NewWriter(delim rune, logger logging.Logger) *Writer {
	if delim == 0 {
		delim = ','
	}
	return &Writer{Delimiter: delim, Location: time.UTC, logger: logging.OrDefault(logger)}
}

// WriteCashOuts writes a header line and one row per cash-out to w.
func (wr *Writer) WriteCashOuts(w io.Writer, txs []models.CashOutTransaction) error {
	rows := make([]CashOutRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, NewCashOutRow(tx, wr.Location))
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = wr.Delimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// WriteCashOutsToFile creates path and writes the cash-outs into it.
func (wr *Writer) WriteCashOutsToFile(path string, txs []models.CashOutTransaction) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			wr.logger.WithError(err).Warn("Failed to close file")
		}
	}()

	if err := wr.WriteCashOuts(file, txs); err != nil {
		return err
	}
	wr.logger.Info("Successfully wrote cash-outs to CSV file",
		logging.F("file", path),
		logging.F(logging.FieldCount, len(txs)))
	return nil
}

// ReadCashOutRows reads a file previously written by WriteCashOutsToFile.
func ReadCashOutRows(path string, delim rune) ([]CashOutRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if delim != 0 {
		reader.Comma = delim
	}
	var rows []CashOutRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV file: %w", err)
	}
	return rows, nil
}
