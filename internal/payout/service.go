// Package payout releases funds through the trading platform once an order is approved.
// Deposits are gated on the trading account holder sharing a name token with the EcoCash
// payer. Any failure fails the order (refunding the trader) and tells the trader to contact
// support; transfers are never retried automatically.
package payout

import (
	"context"
	"errors"
	"fmt"

	"ecobridge/internal/apperror"
	"ecobridge/internal/deriv"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/namematch"

	"github.com/shopspring/decimal"
)

// TradingAPI is the payment-agent surface of the trading platform.
type TradingAPI interface {
	FetchTransferDetails(ctx context.Context, loginID string, amount decimal.Decimal) (*deriv.TransferDetails, error)
	CreateTransfer(ctx context.Context, loginID string, amount decimal.Decimal, description string) (*deriv.TransferResult, error)
	Withdraw(ctx context.Context, amount decimal.Decimal, verificationCode, clientToken string) (*deriv.WithdrawResult, error)
}

// OrderProcessor is the part of the order state machine payouts drive.
type OrderProcessor interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
	Process(ctx context.Context, orderID string, status models.OrderStatus, reference string) (*models.Order, error)
}

// Notifier delivers a message to a trader.
type Notifier interface {
	Send(ctx context.Context, to, message string) bool
}

// ErrNameMismatch is returned when the trading account holder does not match the payer.
var ErrNameMismatch = errors.New("trading account name does not match EcoCash name")

// Service releases deposits and withdrawals.
type Service struct {
	orders         OrderProcessor
	api            TradingAPI
	notifier       Notifier
	supportContact string
	logger         logging.Logger
}

// NewService creates a Service.
func NewService(orders OrderProcessor, api TradingAPI, notifier Notifier, supportContact string, logger logging.Logger) *Service {
	return &Service{
		orders:         orders,
		api:            api,
		notifier:       notifier,
		supportContact: supportContact,
		logger:         logging.OrDefault(logger),
	}
}

// ReleaseDeposit credits the trader's trading account for a Pending deposit order.
func (s *Service) ReleaseDeposit(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.pending(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != models.OrderDeposit {
		return nil, &apperror.ValidationError{Field: "order_type", Reason: fmt.Sprintf("%s orders are not released through the trading API", order.Type)}
	}

	details, err := s.api.FetchTransferDetails(ctx, order.AccountNumber, order.Amount)
	if err != nil {
		return nil, s.fail(ctx, order, err)
	}
	if !namematch.SharesToken(details.FullName, order.EcocashName) {
		s.logger.Warn("Deposit blocked by name check",
			logging.F(logging.FieldOrderID, order.ID),
			logging.F("account_name", details.FullName),
			logging.F("ecocash_name", order.EcocashName))
		return nil, s.fail(ctx, order, ErrNameMismatch)
	}

	result, err := s.api.CreateTransfer(ctx, order.AccountNumber, order.Amount, "EcoCash deposit "+order.ID)
	if err != nil {
		return nil, s.fail(ctx, order, err)
	}

	done, err := s.orders.Process(ctx, order.ID, models.StatusCompleted, result.TransactionID)
	if err != nil {
		// The transfer went through; the order needs manual attention, not a refund.
		s.logger.WithError(err).Error("Transfer executed but order could not be completed",
			logging.F(logging.FieldOrderID, order.ID),
			logging.F(logging.FieldTxnID, result.TransactionID))
		return nil, err
	}

	s.notifier.Send(ctx, order.TraderID, fmt.Sprintf("Your deposit of %s to %s is complete. Reference: %s",
		models.FormatUSD(order.Amount), order.AccountNumber, result.TransactionID))
	return done, nil
}

// ReleaseWithdrawal pulls a Pending withdrawal from the trader's trading account to the agent.
func (s *Service) ReleaseWithdrawal(ctx context.Context, orderID, verificationCode, clientToken string) (*models.Order, error) {
	order, err := s.pending(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != models.OrderWithdrawal {
		return nil, &apperror.ValidationError{Field: "order_type", Reason: "not a withdrawal order"}
	}
	if verificationCode == "" {
		return nil, &apperror.ValidationError{Field: "verification_code", Reason: "is required"}
	}

	result, err := s.api.Withdraw(ctx, order.Amount, verificationCode, clientToken)
	if err != nil {
		return nil, s.fail(ctx, order, err)
	}

	done, err := s.orders.Process(ctx, order.ID, models.StatusCompleted, result.TransactionID)
	if err != nil {
		s.logger.WithError(err).Error("Withdrawal executed but order could not be completed",
			logging.F(logging.FieldOrderID, order.ID),
			logging.F(logging.FieldTxnID, result.TransactionID))
		return nil, err
	}

	s.notifier.Send(ctx, order.TraderID, fmt.Sprintf("Your withdrawal of %s was received. %s will be sent to %s.",
		models.FormatUSD(order.Amount), models.FormatUSD(order.Amount), order.EcocashNumber))
	return done, nil
}

// AdminNameCheck is the similarity check shown to administrators reviewing an order.
func (s *Service) AdminNameCheck(accountName, ecocashName string) bool {
	return namematch.Similar(accountName, ecocashName)
}

func (s *Service) pending(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, apperror.ErrOrderNotPending
	}
	return order, nil
}

// fail marks the order Failed, tells the trader to contact support and returns cause.
func (s *Service) fail(ctx context.Context, order *models.Order, cause error) error {
	logger := s.logger.WithError(cause).WithFields(
		logging.F(logging.FieldOrderID, order.ID),
		logging.F(logging.FieldOrderType, order.Type))
	logger.Error("Payout failed")

	if _, err := s.orders.Process(ctx, order.ID, models.StatusFailed, ""); err != nil {
		logger.WithError(err).Error("Failed to mark order as failed")
	}

	reason := "we could not complete it"
	var apiErr *apperror.ExternalAPIError
	switch {
	case errors.Is(cause, ErrNameMismatch):
		reason = "the trading account name does not match your EcoCash name"
	case errors.As(cause, &apiErr):
		reason = apiErr.UserMessage()
	}
	s.notifier.Send(ctx, order.TraderID, fmt.Sprintf("Your %s of %s failed: %s. Please contact support on %s.",
		order.Type, models.FormatUSD(order.Amount), reason, s.supportContact))

	return fmt.Errorf("payout for order %s failed: %w", order.ID, cause)
}
