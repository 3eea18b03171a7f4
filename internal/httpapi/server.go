// Package httpapi exposes the reconciliation engine over HTTP: the provider SMS webhook,
// order administration, proof-of-payment upload and fee queries.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/notification"
	"ecobridge/internal/orders"
	"ecobridge/internal/payout"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// NotificationHandler processes one inbound provider message.
type NotificationHandler interface {
	Handle(ctx context.Context, sender, body string) notification.Outcome
	RecordMalformed(ctx context.Context, sender, raw, reason string)
}

// OrderService is the order state machine.
type OrderService interface {
	Create(ctx context.Context, req orders.CreateRequest) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	Process(ctx context.Context, orderID string, status models.OrderStatus, reference string) (*models.Order, error)
	SubmitProof(ctx context.Context, orderID string, image []byte, message string) (*orders.ProofOutcome, error)
}

// PayoutService releases funds through the trading API.
type PayoutService interface {
	ReleaseDeposit(ctx context.Context, orderID string) (*models.Order, error)
	ReleaseWithdrawal(ctx context.Context, orderID, verificationCode, clientToken string) (*models.Order, error)
}

// FeeCalculator answers charge queries.
type FeeCalculator interface {
	ChargeFor(ctx context.Context, amount decimal.Decimal) decimal.Decimal
	NetAndChargeForGross(ctx context.Context, total decimal.Decimal) (net, charge decimal.Decimal)
	GrossForNet(ctx context.Context, net decimal.Decimal) (gross, charge decimal.Decimal)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Payout may be nil when the trading API is disabled.
type Deps struct {
	Notifications NotificationHandler
	Orders        OrderService
	Payout        PayoutService
	Fees          FeeCalculator
	Health        Pinger
	// MaxUploadBytes bounds proof-of-payment uploads.
	MaxUploadBytes int64
}

// DefaultMaxUploadBytes is used when Deps.MaxUploadBytes is not set.
const DefaultMaxUploadBytes = 10 << 20

type server struct {
	deps   Deps
	logger logging.Logger
}

// NewRouter builds the chi router serving every route.
func NewRouter(deps Deps, logger logging.Logger) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &server{deps: deps, logger: logging.OrDefault(logger)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhooks/ecocash", s.handleProviderWebhook)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.handleCreateOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetOrder)
			r.Post("/pop", s.handleSubmitProof)
			r.Post("/process", s.handleProcessOrder)
			r.Post("/release", s.handleReleaseOrder)
		})
	})

	r.Route("/fees", func(r chi.Router) {
		r.Get("/charge", s.handleFeeCharge)
		r.Get("/net", s.handleFeeNet)
		r.Get("/gross", s.handleFeeGross)
	})

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F(logging.FieldStatus, ww.Status()),
			logging.F("request_id", middleware.GetReqID(r.Context())),
			logging.F(logging.FieldDuration, time.Since(start).String()))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Error("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeError maps service errors onto HTTP status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var (
		validation *apperror.ValidationError
		external   *apperror.ExternalAPIError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validation.Reason, Field: validation.Field})
	case errors.Is(err, apperror.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, apperror.ErrOrderNotPending):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payout.ErrNameMismatch):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.As(err, &external):
		writeJSONError(w, http.StatusBadGateway, external.UserMessage())
	default:
		s.logger.WithError(err).Error("Request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
