// Package fees holds the fee schedule commands
package fees

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"ecobridge/cmd/root"
	"ecobridge/internal/container"
	"ecobridge/internal/fees"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var scheduleFile string

// Cmd represents the fees command
var Cmd = &cobra.Command{
	Use:   "fees",
	Short: "Inspect and import the transaction charge schedule",
}

var chargeCmd = &cobra.Command{
	Use:   "charge AMOUNT",
	Short: "Charge owed on a net amount",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(ctx context.Context, c *container.Container, out io.Writer, args []string) error {
		amount, err := parse(args[0])
		if err != nil {
			return err
		}
		charge := c.GetEvaluator().ChargeFor(ctx, amount)
		return printSplit(out, amount.Add(charge), amount, charge)
	}),
}

var netCmd = &cobra.Command{
	Use:   "net GROSS",
	Short: "Split a gross payment into net amount and charge",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(ctx context.Context, c *container.Container, out io.Writer, args []string) error {
		gross, err := parse(args[0])
		if err != nil {
			return err
		}
		net, charge := c.GetEvaluator().NetAndChargeForGross(ctx, gross)
		return printSplit(out, gross, net, charge)
	}),
}

var grossCmd = &cobra.Command{
	Use:   "gross NET",
	Short: "Gross payment needed for a net amount to be credited",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(ctx context.Context, c *container.Container, out io.Writer, args []string) error {
		net, err := parse(args[0])
		if err != nil {
			return err
		}
		gross, charge := c.GetEvaluator().GrossForNet(ctx, net)
		return printSplit(out, gross, net, charge)
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active charge ranges",
	Args:  cobra.NoArgs,
	RunE: withContainer(func(ctx context.Context, c *container.Container, out io.Writer, args []string) error {
		ranges, err := c.GetStore().ActiveFeeRanges(ctx)
		if err != nil {
			return err
		}
		return printRanges(out, ranges)
	}),
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the stored schedule with a YAML file",
	Args:  cobra.NoArgs,
	RunE: withContainer(func(ctx context.Context, c *container.Container, out io.Writer, args []string) error {
		if scheduleFile == "" {
			scheduleFile = c.GetConfig().Fees.ScheduleFile
		}
		if scheduleFile == "" {
			return fmt.Errorf("--file or fees.schedule_file is required")
		}
		n, err := fees.Import(ctx, scheduleFile, c.GetStore())
		if err != nil {
			return err
		}
		c.GetFeeCache().Invalidate()
		root.Log.Info("Fee schedule imported",
			logging.F("file", scheduleFile),
			logging.F(logging.FieldCount, n))
		_, err = fmt.Fprintf(out, "imported %d fee ranges from %s\n", n, scheduleFile)
		return err
	}),
}

func init() {
	importCmd.Flags().StringVarP(&scheduleFile, "file", "f", "", "YAML fee schedule")
	Cmd.AddCommand(chargeCmd, netCmd, grossCmd, listCmd, importCmd)
}

type containerFunc func(ctx context.Context, c *container.Container, out io.Writer, args []string) error

func withContainer(fn containerFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := root.NewContainer()
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd.Context(), c, cmd.OutOrStdout(), args)
	}
}

func parse(raw string) (decimal.Decimal, error) {
	amount, err := models.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", raw)
	}
	return amount, nil
}

func printSplit(out io.Writer, gross, net, charge decimal.Decimal) error {
	_, err := fmt.Fprintf(out, "gross:  %s\nnet:    %s\ncharge: %s\n",
		models.FormatUSD(gross), models.FormatUSD(net), models.FormatUSD(charge))
	return err
}

func printRanges(out io.Writer, ranges []models.FeeRange) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIN\tMAX\tCHARGE")
	for _, r := range ranges {
		charge := models.FormatUSD(r.FixedCharge)
		if r.IsPercentage {
			charge = fmt.Sprintf("%s%% + %s", r.PercentageRate.String(), models.FormatUSD(r.AdditionalFee))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.MinAmount.StringFixed(2), r.MaxAmount.StringFixed(2), charge)
	}
	return tw.Flush()
}
