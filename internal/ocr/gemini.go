package ocr

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-1.5-flash"

	// DefaultTimeout bounds a single OCR call.
	DefaultTimeout = 30 * time.Second

	operationExtractText = "ocr_extract_text"

	transcriptionPrompt = `Transcribe all text visible in this mobile money screenshot exactly as it appears.
Keep the original line order, amounts, currency codes, transaction IDs and approval codes.
Do not summarise or add commentary. Return plain text only.`
)

// GeminiEngine implements Engine with Gemini vision.
type GeminiEngine struct {
	apiKey    string
	modelName string
	timeout   time.Duration
	logger    logging.Logger

	once   sync.Once
	client *genai.Client
	model  *genai.GenerativeModel
	err    error
}

// NewGeminiEngine creates a GeminiEngine. The client is created on first use.
func NewGeminiEngine(apiKey, modelName string, timeout time.Duration, logger logging.Logger) *GeminiEngine {
	if modelName == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiEngine{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   timeout,
		logger:    logging.OrDefault(logger),
	}
}

// ensureClient ensures the Gemini client is initialized.
func (g *GeminiEngine) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		if g.apiKey == "" {
			g.err = fmt.Errorf("GEMINI_API_KEY environment variable not set")
			return
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
		if err != nil {
			g.err = fmt.Errorf("failed to create Gemini client: %w", err)
			return
		}
		g.client = client
		g.model = client.GenerativeModel(g.modelName)
	})
	return g.err
}

// ExtractText sends the image to Gemini and returns the transcription.
func (g *GeminiEngine) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", &apperror.ExtractionError{Source: "ocr", Field: "image", Reason: "empty image"}
	}
	if err := g.ensureClient(ctx); err != nil {
		return "", &apperror.ExternalAPIError{Operation: operationExtractText, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	format := imageFormat(image)
	started := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(transcriptionPrompt))
	if err != nil {
		return "", &apperror.ExternalAPIError{Operation: operationExtractText, Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &apperror.ExternalAPIError{Operation: operationExtractText, Message: "no response from Gemini API"}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	g.logger.Debug("OCR transcription finished",
		logging.F(logging.FieldSource, "gemini"),
		logging.F(logging.FieldDuration, time.Since(started).String()),
		logging.F(logging.FieldCount, sb.Len()))
	return sb.String(), nil
}

// Close releases the underlying client.
func (g *GeminiEngine) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// imageFormat maps the sniffed MIME type to the format name genai.ImageData expects.
func imageFormat(image []byte) string {
	switch http.DetectContentType(image) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpeg"
	}
}
