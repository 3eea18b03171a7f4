package ocr

import (
	"context"
	"errors"
	"testing"

	"ecobridge/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEngine(t *testing.T) {
	engine := NewMockEngine("Your CashOut of USD 1.00", nil)

	text, err := engine.ExtractText(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, "Your CashOut of USD 1.00", text)
	assert.Equal(t, 1, engine.Calls)
}

func TestMockEngine_Error(t *testing.T) {
	boom := errors.New("boom")
	engine := NewMockEngine("", boom)

	_, err := engine.ExtractText(context.Background(), nil)

	assert.ErrorIs(t, err, boom)
}

func TestGeminiEngine_EmptyImage(t *testing.T) {
	engine := NewGeminiEngine("key", "", 0, nil)

	_, err := engine.ExtractText(context.Background(), nil)

	var extractionErr *apperror.ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func TestGeminiEngine_MissingAPIKey(t *testing.T) {
	engine := NewGeminiEngine("", "", 0, nil)

	_, err := engine.ExtractText(context.Background(), []byte{0x89, 'P', 'N', 'G'})

	var apiErr *apperror.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, operationExtractText, apiErr.Operation)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestGeminiEngine_Defaults(t *testing.T) {
	engine := NewGeminiEngine("key", "", 0, nil)

	assert.Equal(t, DefaultModel, engine.modelName)
	assert.Equal(t, DefaultTimeout, engine.timeout)
	assert.NoError(t, engine.Close())
}

func TestImageFormat(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	jpeg := []byte("\xff\xd8\xff\xe0")

	assert.Equal(t, "png", imageFormat(png))
	assert.Equal(t, "jpeg", imageFormat(jpeg))
	assert.Equal(t, "jpeg", imageFormat([]byte("unknown")))
}
