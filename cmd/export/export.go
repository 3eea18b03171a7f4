// Package export writes the cash-out ledger to CSV
package export

import (
	"fmt"
	"time"

	"ecobridge/cmd/root"
	ledgerexport "ecobridge/internal/export"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/spf13/cobra"
)

var (
	output    string
	since     string
	delimiter string
)

// Cmd represents the export command
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded cash-outs to CSV",
	Long: `Export the cash-out transactions reconstructed from provider notifications to a CSV
file, oldest first, for audit against the agent statement.`,
	RunE: exportFunc,
}

func init() {
	Cmd.Flags().StringVarP(&output, "output", "o", "cashouts.csv", "Output CSV file")
	Cmd.Flags().StringVar(&since, "since", "", "Only cash-outs created on or after this date (YYYY-MM-DD)")
	Cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV delimiter")
}

func exportFunc(cmd *cobra.Command, args []string) error {
	from, err := parseSince(since)
	if err != nil {
		return err
	}
	delim, err := parseDelimiter(delimiter)
	if err != nil {
		return err
	}

	c, err := root.NewContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	var rows []models.CashOutTransaction
	err = c.GetStore().WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		rows, err = tx.Ledger().ListCashOuts(ctx, from)
		return err
	})
	if err != nil {
		return fmt.Errorf("error loading cash-outs: %w", err)
	}

	if err := ledgerexport.NewWriter(delim, root.Log).WriteCashOutsToFile(output, rows); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d cash-outs to %s\n", len(rows), output)
	return err
}

// parseSince returns the zero time for an empty value.
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func parseDelimiter(value string) (rune, error) {
	runes := []rune(value)
	if len(runes) != 1 {
		return 0, fmt.Errorf("CSV delimiter must be a single character, got: %s", value)
	}
	return runes[0], nil
}
