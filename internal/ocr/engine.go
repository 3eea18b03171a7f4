// Package ocr turns proof-of-payment screenshots into text.
package ocr

import "context"

// Engine extracts the visible text of an image. Production uses Gemini vision; tests use
// MockEngine.
type Engine interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// MockEngine implements Engine for testing purposes.
// It returns predefined text instead of calling an OCR service.
type MockEngine struct {
	MockText string
	MockErr  error
	Calls    int
}

// NewMockEngine creates a new MockEngine with the given mock data.
func NewMockEngine(mockText string, mockErr error) *MockEngine {
	return &MockEngine{
		MockText: mockText,
		MockErr:  mockErr,
	}
}

// ExtractText returns the predefined mock text or error.
func (e *MockEngine) ExtractText(ctx context.Context, image []byte) (string, error) {
	e.Calls++
	if e.MockErr != nil {
		return "", e.MockErr
	}
	return e.MockText, nil
}
