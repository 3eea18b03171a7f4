package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/orders"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	TraderID      string           `json:"trader_id"`
	Type          models.OrderType `json:"order_type"`
	Amount        decimal.Decimal  `json:"amount"`
	AccountNumber string           `json:"account_number"`
	EcocashNumber string           `json:"ecocash_number"`
	EcocashName   string           `json:"ecocash_name"`
}

type processOrderRequest struct {
	Status    models.OrderStatus `json:"status"`
	Reference string             `json:"reference"`
}

type releaseOrderRequest struct {
	VerificationCode string `json:"verification_code"`
	ClientToken      string `json:"client_token"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.deps.Orders.Create(r.Context(), orders.CreateRequest{
		TraderID:      req.TraderID,
		Type:          req.Type,
		Amount:        req.Amount,
		AccountNumber: req.AccountNumber,
		EcocashNumber: req.EcocashNumber,
		EcocashName:   req.EcocashName,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *server) handleProcessOrder(w http.ResponseWriter, r *http.Request) {
	var req processOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.deps.Orders.Process(r.Context(), chi.URLParam(r, "id"), req.Status, req.Reference)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleReleaseOrder pays out a Pending order through the trading API.
func (s *server) handleReleaseOrder(w http.ResponseWriter, r *http.Request) {
	if s.deps.Payout == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "trading API is not configured")
		return
	}

	var req releaseOrderRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	order, err := s.deps.Orders.Get(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch order.Type {
	case models.OrderWithdrawal:
		order, err = s.deps.Payout.ReleaseWithdrawal(ctx, id, req.VerificationCode, req.ClientToken)
	default:
		order, err = s.deps.Payout.ReleaseDeposit(ctx, id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleSubmitProof accepts a multipart form with an optional "image" file and an optional
// "message" field.
func (s *server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		s.logger.WithError(err).Warn("Failed to parse proof of payment upload")
		writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid upload (max %d MB)", s.deps.MaxUploadBytes>>20))
		return
	}

	image, err := readUpload(r, "image")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not read image upload")
		return
	}
	message := strings.TrimSpace(r.FormValue("message"))

	outcome, err := s.deps.Orders.SubmitProof(r.Context(), chi.URLParam(r, "id"), image, message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Proof of payment submitted",
		logging.F(logging.FieldOrderID, outcome.Order.ID),
		logging.F(logging.FieldStatus, outcome.Order.POPStatus))
	writeJSON(w, http.StatusOK, outcome)
}

// readUpload returns nil when the field is absent.
func readUpload(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// parseAmountParam reads a positive decimal query parameter.
func parseAmountParam(r *http.Request, name string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.Zero, &apperror.ValidationError{Field: name, Reason: "is required"}
	}
	amount, err := models.ParseAmount(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, &apperror.ValidationError{Field: name, Reason: "must be a positive amount"}
	}
	return amount, nil
}
