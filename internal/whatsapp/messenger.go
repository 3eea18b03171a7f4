// Package whatsapp delivers outbound trader notifications. Sends are best effort: a failed
// send is logged and reported as false, never as an error the caller must handle.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ecobridge/internal/logging"
)

// DefaultAPIURL is the WhatsApp Cloud API base URL.
const DefaultAPIURL = "https://graph.facebook.com/v19.0"

// Messenger sends a text message to a phone number.
type Messenger interface {
	Send(ctx context.Context, to, message string) bool
}

// CloudSender sends through the WhatsApp Cloud API.
type CloudSender struct {
	apiURL        string
	phoneNumberID string
	token         string
	client        *http.Client
	logger        logging.Logger
}

// NewCloudSender creates a CloudSender.
func NewCloudSender(apiURL, phoneNumberID, token string, timeout time.Duration, logger logging.Logger) *CloudSender {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CloudSender{
		apiURL:        strings.TrimRight(apiURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		client:        &http.Client{Timeout: timeout},
		logger:        logging.OrDefault(logger),
	}
}

type textBody struct {
	Body string `json:"body"`
}

type outboundMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// Send implements Messenger.
func (s *CloudSender) Send(ctx context.Context, to, message string) bool {
	logger := s.logger.WithFields(logging.F(logging.FieldPhone, to))
	if err := s.send(ctx, to, message); err != nil {
		logger.WithError(err).Error("Failed to send WhatsApp message")
		return false
	}
	logger.Debug("WhatsApp message sent")
	return true
}

func (s *CloudSender) send(ctx context.Context, to, message string) error {
	payload, err := json.Marshal(outboundMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             textBody{Body: message},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.apiURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// LogSender records messages in the log instead of sending them. It is used when outbound
// messaging is disabled.
type LogSender struct {
	logger logging.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logging.OrDefault(logger)}
}

// Send implements Messenger.
func (s *LogSender) Send(ctx context.Context, to, message string) bool {
	s.logger.Info("WhatsApp disabled, message not sent",
		logging.F(logging.FieldPhone, to),
		logging.F("message", message))
	return true
}
