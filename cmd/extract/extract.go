// Package extract runs the proof-of-payment reader from the command line
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"ecobridge/cmd/root"
	"ecobridge/internal/config"
	"ecobridge/internal/extractor"
	"ecobridge/internal/ocr"
	"ecobridge/internal/pop"

	"github.com/spf13/cobra"
)

var (
	message   string
	inputFile string
	imageFile string
)

// Cmd represents the extract command
var Cmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract amount and reference from a payment message or screenshot",
	Long: `Extract the claimed amount and transaction reference from an EcoCash confirmation,
given as text (--message or --input) and/or a screenshot (--image, requires OCR to be enabled).
Prints the reconciliation result as JSON.`,
	RunE: extractFunc,
}

func init() {
	Cmd.Flags().StringVarP(&message, "message", "m", "", "Confirmation message text")
	Cmd.Flags().StringVarP(&inputFile, "input", "i", "", "File containing the confirmation message")
	Cmd.Flags().StringVar(&imageFile, "image", "", "Screenshot of the confirmation")
}

func extractFunc(cmd *cobra.Command, args []string) error {
	text := message
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("error reading input file: %w", err)
		}
		text = string(data)
	}

	var image []byte
	if imageFile != "" {
		data, err := os.ReadFile(imageFile)
		if err != nil {
			return fmt.Errorf("error reading image file: %w", err)
		}
		image = data
	}

	if text == "" && len(image) == 0 {
		return fmt.Errorf("one of --message, --input or --image is required")
	}

	cfg := root.AppConfig
	var engine ocr.Engine
	if len(image) > 0 {
		if cfg == nil || !cfg.OCR.Enabled {
			return fmt.Errorf("--image requires ocr.enabled and GEMINI_API_KEY")
		}
		gemini := ocr.NewGeminiEngine(cfg.OCR.APIKey, cfg.OCR.Model, config.Seconds(cfg.OCR.TimeoutSeconds), root.Log)
		defer gemini.Close()
		engine = gemini
	}

	reconciler := pop.NewReconciler(engine, extractor.New(root.Log), root.Log)
	return run(cmd.Context(), cmd.OutOrStdout(), reconciler, image, text)
}

func run(ctx context.Context, out io.Writer, reconciler *pop.Reconciler, image []byte, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result := reconciler.Reconcile(ctx, image, text)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("error writing result: %w", err)
	}
	return nil
}
