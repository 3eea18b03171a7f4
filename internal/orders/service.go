// Package orders owns the lifecycle of trader deposit and withdrawal orders:
// creation guards, the Pending to Completed/Failed transition and proof-of-payment review.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecobridge/internal/apperror"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/pop"
	"ecobridge/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCooldown is the minimum gap between two orders of the same trader.
const DefaultCooldown = 2 * time.Minute

// ChargeCalculator computes the charge owed on a net amount.
type ChargeCalculator interface {
	ChargeFor(ctx context.Context, amount decimal.Decimal) decimal.Decimal
}

// ProofReconciler extracts the claimed payment from a proof of payment.
type ProofReconciler interface {
	Reconcile(ctx context.Context, image []byte, message string) pop.Result
}

// Config holds the creation guards.
type Config struct {
	Cooldown time.Duration
	Minimums map[models.OrderType]decimal.Decimal
}

// CreateRequest is a completed conversational order flow.
type CreateRequest struct {
	TraderID      string
	Type          models.OrderType
	Amount        decimal.Decimal
	AccountNumber string
	EcocashNumber string
	EcocashName   string
	// Cooldown overrides Config.Cooldown for this call site when positive.
	Cooldown time.Duration
}

// ProofOutcome is the result of a proof-of-payment submission.
type ProofOutcome struct {
	Order   *models.Order   `json:"order"`
	Receipt *models.Receipt `json:"receipt"`
	Result  pop.Result      `json:"result"`
}

// Service implements the order state machine.
type Service struct {
	uow        repository.UnitOfWork
	charges    ChargeCalculator
	reconciler ProofReconciler
	cfg        Config
	now        func() time.Time
	logger     logging.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(uow repository.UnitOfWork, charges ChargeCalculator, reconciler ProofReconciler, cfg Config, logger logging.Logger, options ...Option) *Service {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	s := &Service{
		uow:        uow,
		charges:    charges,
		reconciler: reconciler,
		cfg:        cfg,
		now:        time.Now,
		logger:     logging.OrDefault(logger),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Create validates req and stores a new Pending order, superseding the trader's other
// Pending orders of the same type. The order's gross is held on the trader's wallet until
// the order fails or is superseded.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	amount := models.Quantize(req.Amount)
	// Charges are read before the unit of work: the store serialises on one connection.
	charge := s.charges.ChargeFor(ctx, amount)

	cooldown := s.cfg.Cooldown
	if req.Cooldown > 0 {
		cooldown = req.Cooldown
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.NewString(),
		TraderID:      req.TraderID,
		Type:          req.Type,
		Amount:        amount,
		Charge:        charge,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		EcocashNumber: strings.TrimSpace(req.EcocashNumber),
		EcocashName:   strings.TrimSpace(req.EcocashName),
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var superseded []models.Order
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		recent, err := tx.Orders().CountOrdersSince(ctx, req.TraderID, now.Add(-cooldown))
		if err != nil {
			return fmt.Errorf("failed to count recent orders: %w", err)
		}
		if recent > 0 {
			return &apperror.ValidationError{
				Field:  "trader_id",
				Reason: fmt.Sprintf("please wait %s between orders", cooldown),
			}
		}

		if req.Type.DepositStyle() {
			available, err := tx.Balances().Balance(ctx, models.BalanceMain)
			if err != nil {
				return fmt.Errorf("failed to read operational balance: %w", err)
			}
			if available.LessThan(amount) {
				return &apperror.ValidationError{
					Field:  "amount",
					Reason: fmt.Sprintf("insufficient operational balance for %s", models.FormatUSD(amount)),
				}
			}
		}

		if err := tx.Orders().CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if _, err := tx.Balances().AdjustBalance(ctx, models.TraderBalance(order.TraderID), order.Gross().Neg()); err != nil {
			return fmt.Errorf("failed to reserve trader wallet: %w", err)
		}

		superseded, err = tx.Orders().DeletePendingOrders(ctx, req.TraderID, req.Type, order.ID)
		if err != nil {
			return fmt.Errorf("failed to supersede pending orders: %w", err)
		}
		for _, old := range superseded {
			if _, err := tx.Balances().AdjustBalance(ctx, models.TraderBalance(old.TraderID), old.Gross()); err != nil {
				return fmt.Errorf("failed to release reservation of order %s: %w", old.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		logging.F(logging.FieldOrderID, order.ID),
		logging.F(logging.FieldTraderID, order.TraderID),
		logging.F(logging.FieldOrderType, order.Type),
		logging.F(logging.FieldAmount, order.Amount.String()),
		logging.F(logging.FieldCharge, order.Charge.String()),
		logging.F(logging.FieldCount, len(superseded)))
	return order, nil
}

func (s *Service) validate(req CreateRequest) error {
	if strings.TrimSpace(req.TraderID) == "" {
		return &apperror.ValidationError{Field: "trader_id", Reason: "is required"}
	}
	if !req.Type.Valid() {
		return &apperror.ValidationError{Field: "order_type", Reason: fmt.Sprintf("unknown order type %q", req.Type)}
	}
	if !req.Amount.IsPositive() {
		return &apperror.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if minimum, ok := s.cfg.Minimums[req.Type]; ok && req.Amount.LessThan(minimum) {
		return &apperror.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("minimum %s is %s", req.Type, models.FormatUSD(minimum)),
		}
	}
	return nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		order, err = tx.Orders().GetOrder(ctx, orderID)
		return err
	})
	return order, err
}

// Process moves a Pending order to Completed or Failed. Any other current state is
// apperror.ErrOrderNotPending. Failed releases the amount+charge reserved by Create back to
// the trader's wallet; Completed deposit-style orders are paid out of the operational "main" balance.
func (s *Service) Process(ctx context.Context, orderID string, status models.OrderStatus, reference string) (*models.Order, error) {
	if !status.Terminal() {
		return nil, &apperror.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot transition to %q", status)}
	}

	var order *models.Order
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Orders().TransitionOrder(ctx, orderID, status, reference, s.now()); err != nil {
			return err
		}

		switch {
		case status == models.StatusFailed:
			if _, err := tx.Balances().AdjustBalance(ctx, models.TraderBalance(current.TraderID), current.Gross()); err != nil {
				return fmt.Errorf("failed to refund trader: %w", err)
			}
		case current.Type.DepositStyle():
			if _, err := tx.Balances().AdjustBalance(ctx, models.BalanceMain, current.Amount.Neg()); err != nil {
				return fmt.Errorf("failed to debit operational balance: %w", err)
			}
		}

		order, err = tx.Orders().GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		if errors.Is(err, apperror.ErrOrderNotPending) {
			s.logger.Warn("Rejected transition of non-pending order",
				logging.F(logging.FieldOrderID, orderID),
				logging.F(logging.FieldStatus, status))
		}
		return nil, err
	}

	s.logger.Info("Order processed",
		logging.F(logging.FieldOrderID, order.ID),
		logging.F(logging.FieldStatus, order.Status),
		logging.F(logging.FieldReference, order.ReferenceNumber))
	return order, nil
}

// SubmitProof reconciles a proof of payment against a Pending order and records the
// outcome. Extraction problems never fail the call; they leave the order awaiting review.
func (s *Service) SubmitProof(ctx context.Context, orderID string, image []byte, message string) (*ProofOutcome, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, apperror.ErrOrderNotPending
	}

	result := s.reconciler.Reconcile(ctx, image, message)
	status, note := s.review(order, result)

	receipt := &models.Receipt{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		Amount:            result.Transaction.Amount,
		Reference:         result.Transaction.Reference,
		Confidence:        result.Transaction.Confidence,
		Source:            result.Transaction.Source,
		ValidationMessage: result.ValidationMessage,
		CreatedAt:         s.now(),
	}

	err = s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		if receipt.Reference != "" {
			existing, err := tx.Receipts().ReceiptByReference(ctx, receipt.Reference)
			if err != nil {
				return fmt.Errorf("failed to look up receipt: %w", err)
			}
			switch {
			case existing != nil && existing.OrderID == order.ID:
				receipt = existing
				return nil
			case existing != nil:
				status = models.POPAwaitingPOP
				note = fmt.Sprintf("Reference %s was already used for order %s", receipt.Reference, existing.OrderID)
				receipt.Reference = ""
			}
		}

		if err := tx.Receipts().InsertReceipt(ctx, receipt); err != nil {
			return fmt.Errorf("failed to store receipt: %w", err)
		}
		if err := tx.Orders().UpdateProofStatus(ctx, order.ID, status, note, s.now()); err != nil {
			return err
		}
		order, err = tx.Orders().GetOrder(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proof of payment reviewed",
		logging.F(logging.FieldOrderID, order.ID),
		logging.F(logging.FieldStatus, order.POPStatus),
		logging.F(logging.FieldReference, receipt.Reference),
		logging.F(logging.FieldConfidence, result.Transaction.Confidence))
	return &ProofOutcome{Order: order, Receipt: receipt, Result: result}, nil
}

// review decides the POP status and admin note for a reconciliation result.
func (s *Service) review(order *models.Order, result pop.Result) (models.POPStatus, string) {
	if !result.Valid {
		return models.POPAwaitingPOP, result.ValidationMessage
	}
	if order.Type.DepositStyle() {
		claimed := result.Transaction.Amount.Decimal
		if !models.WithinTolerance(claimed, order.Gross()) && !models.WithinTolerance(claimed, order.Amount) {
			return models.POPAwaitingPOP, fmt.Sprintf("Claimed %s does not match expected %s",
				models.FormatUSD(claimed), models.FormatUSD(order.Gross()))
		}
	}
	return models.POPProcessing, result.ValidationMessage
}
