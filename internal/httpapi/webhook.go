package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"ecobridge/internal/logging"
)

const maxWebhookBytes = 64 << 10

var errEmptyMessage = errors.New("message body is empty")

type providerMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// handleProviderWebhook always acknowledges with 200 so the forwarder does not retry.
// Payloads that cannot be decoded are stored raw in the message log.
func (s *server) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	defer acknowledge(w)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		s.logger.WithError(err).Warn("Unreadable provider webhook payload")
		s.deps.Notifications.RecordMalformed(r.Context(), "", string(raw), err.Error())
		return
	}

	msg, err := decodeProviderMessage(r.Header.Get("Content-Type"), raw)
	if err == nil && msg.Message == "" {
		err = errEmptyMessage
	}
	if err != nil {
		s.logger.WithError(err).Warn("Malformed provider webhook payload",
			logging.F(logging.FieldSender, msg.From))
		s.deps.Notifications.RecordMalformed(r.Context(), msg.From, string(raw), err.Error())
		return
	}

	outcome := s.deps.Notifications.Handle(r.Context(), msg.From, msg.Message)
	s.logger.Debug("Provider webhook handled",
		logging.F(logging.FieldSender, msg.From),
		logging.F(logging.FieldKind, outcome.Kind),
		logging.F(logging.FieldTxnID, outcome.TxnID))
}

// decodeProviderMessage accepts a JSON object or url-encoded form fields "from" and "message".
func decodeProviderMessage(contentType string, raw []byte) (providerMessage, error) {
	var msg providerMessage

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		err := json.Unmarshal(raw, &msg)
		return msg, err
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return msg, err
	}
	msg.From = form.Get("from")
	msg.Message = form.Get("message")
	return msg, nil
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "received")
}
