// Package deriv is a payment-agent client for the Deriv trading platform's websocket API.
// Every operation opens its own session (ping, authorize, request) and closes it; calls block
// until the configured timeout and are never retried.
package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"
	DefaultOrigin   = "https://app.deriv.com"
	DefaultTimeout  = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	Endpoint          string
	Origin            string
	AppID             string
	Token             string
	AgentLoginID      string
	Currency          string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// TransferDetails is the trading account a transfer would credit.
type TransferDetails struct {
	LoginID  string `json:"client_to_loginid"`
	FullName string `json:"client_to_full_name"`
}

// TransferResult is an executed payment-agent transfer.
type TransferResult struct {
	TransactionID string
	LoginID       string
	FullName      string
}

// WithdrawResult is an executed payment-agent withdrawal.
type WithdrawResult struct {
	TransactionID string
	AgentName     string
}

// Client talks to the Deriv API as a payment agent.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger logging.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.Currency == "" {
		cfg.Currency = models.Currency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrDefault(logger),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	ReqID   int       `json:"req_id"`
	MsgType string    `json:"msg_type"`
	Error   *apiError `json:"error"`
}

type transferResponse struct {
	ClientToFullName string      `json:"client_to_full_name"`
	ClientToLoginID  string      `json:"client_to_loginid"`
	TransactionID    json.Number `json:"transaction_id"`
}

type withdrawResponse struct {
	PaymentagentName string      `json:"paymentagent_name"`
	TransactionID    json.Number `json:"transaction_id"`
}

// FetchTransferDetails dry-runs a transfer to loginID and returns the account holder.
func (c *Client) FetchTransferDetails(ctx context.Context, loginID string, amount decimal.Decimal) (*TransferDetails, error) {
	var resp transferResponse
	err := c.session(ctx, c.cfg.Token, func(s *session) error {
		return s.call("paymentagent_transfer", map[string]interface{}{
			"paymentagent_transfer": 1,
			"transfer_to":           strings.ToUpper(loginID),
			"amount":                wireAmount(amount),
			"currency":              c.cfg.Currency,
			"dry_run":               1,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &TransferDetails{LoginID: resp.ClientToLoginID, FullName: resp.ClientToFullName}, nil
}

// CreateTransfer moves amount from the agent to loginID.
func (c *Client) CreateTransfer(ctx context.Context, loginID string, amount decimal.Decimal, description string) (*TransferResult, error) {
	var resp transferResponse
	err := c.session(ctx, c.cfg.Token, func(s *session) error {
		return s.call("paymentagent_transfer", map[string]interface{}{
			"paymentagent_transfer": 1,
			"transfer_to":           strings.ToUpper(loginID),
			"amount":                wireAmount(amount),
			"currency":              c.cfg.Currency,
			"description":           description,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Deriv transfer executed",
		logging.F(logging.FieldTxnID, resp.TransactionID.String()),
		logging.F(logging.FieldAmount, amount.String()))
	return &TransferResult{
		TransactionID: resp.TransactionID.String(),
		LoginID:       resp.ClientToLoginID,
		FullName:      resp.ClientToFullName,
	}, nil
}

// Withdraw moves amount from the client (authorised by clientToken) to the agent.
func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal, verificationCode, clientToken string) (*WithdrawResult, error) {
	var resp withdrawResponse
	err := c.session(ctx, clientToken, func(s *session) error {
		return s.call("paymentagent_withdraw", map[string]interface{}{
			"paymentagent_withdraw": 1,
			"paymentagent_loginid":  c.cfg.AgentLoginID,
			"amount":                wireAmount(amount),
			"currency":              c.cfg.Currency,
			"verification_code":     verificationCode,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Deriv withdrawal executed",
		logging.F(logging.FieldTxnID, resp.TransactionID.String()),
		logging.F(logging.FieldAmount, amount.String()))
	return &WithdrawResult{TransactionID: resp.TransactionID.String(), AgentName: resp.PaymentagentName}, nil
}

func wireAmount(amount decimal.Decimal) json.Number {
	return json.Number(models.Quantize(amount).StringFixed(models.MoneyPlaces))
}

func (c *Client) url() string {
	if c.cfg.AppID == "" {
		return c.cfg.Endpoint
	}
	return c.cfg.Endpoint + "?app_id=" + c.cfg.AppID
}

// session dials, performs the ping/authorize handshake and runs fn.
func (c *Client) session(ctx context.Context, token string, fn func(s *session) error) error {
	if token == "" {
		return &apperror.ExternalAPIError{Operation: "authorize", Code: "MissingToken", Message: "API token is not configured"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &apperror.ExternalAPIError{Operation: "rate_limit", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	wsCfg, err := websocket.NewConfig(c.url(), c.cfg.Origin)
	if err != nil {
		return &apperror.ExternalAPIError{Operation: "connect", Err: err}
	}
	ws, err := wsCfg.DialContext(ctx)
	if err != nil {
		return &apperror.ExternalAPIError{Operation: "connect", Err: err}
	}
	defer ws.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := ws.SetDeadline(deadline); err != nil {
			return &apperror.ExternalAPIError{Operation: "connect", Err: err}
		}
	}

	s := &session{ws: ws}
	if err := s.call("ping", map[string]interface{}{"ping": 1}, nil); err != nil {
		return err
	}
	if err := s.call("authorize", map[string]interface{}{"authorize": token}, nil); err != nil {
		return err
	}
	return fn(s)
}

type session struct {
	ws    *websocket.Conn
	reqID int
}

// call sends request and decodes the response with the same req_id into out.
func (s *session) call(operation string, request map[string]interface{}, out interface{}) error {
	s.reqID++
	request["req_id"] = s.reqID

	if err := websocket.JSON.Send(s.ws, request); err != nil {
		return &apperror.ExternalAPIError{Operation: operation, Err: fmt.Errorf("send: %w", err)}
	}

	for {
		var raw json.RawMessage
		if err := websocket.JSON.Receive(s.ws, &raw); err != nil {
			return &apperror.ExternalAPIError{Operation: operation, Err: fmt.Errorf("receive: %w", err)}
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return &apperror.ExternalAPIError{Operation: operation, Err: fmt.Errorf("decode: %w", err)}
		}
		if env.ReqID != s.reqID {
			continue
		}
		if env.Error != nil {
			return &apperror.ExternalAPIError{Operation: operation, Code: env.Error.Code, Message: env.Error.Message}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &apperror.ExternalAPIError{Operation: operation, Err: fmt.Errorf("decode %q: %w", env.MsgType, err)}
		}
		return nil
	}
}
