package payout

import (
	"context"
	"errors"
	"testing"

	"ecobridge/internal/apperror"
	"ecobridge/internal/deriv"
	"ecobridge/internal/fees"
	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/orders"
	"ecobridge/internal/pop"
	"ecobridge/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTradingAPI struct {
	mock.Mock
}

func (m *mockTradingAPI) FetchTransferDetails(ctx context.Context, loginID string, amount decimal.Decimal) (*deriv.TransferDetails, error) {
	args := m.Called(ctx, loginID, amount)
	details, _ := args.Get(0).(*deriv.TransferDetails)
	return details, args.Error(1)
}

func (m *mockTradingAPI) CreateTransfer(ctx context.Context, loginID string, amount decimal.Decimal, description string) (*deriv.TransferResult, error) {
	args := m.Called(ctx, loginID, amount, description)
	result, _ := args.Get(0).(*deriv.TransferResult)
	return result, args.Error(1)
}

func (m *mockTradingAPI) Withdraw(ctx context.Context, amount decimal.Decimal, verificationCode, clientToken string) (*deriv.WithdrawResult, error) {
	args := m.Called(ctx, amount, verificationCode, clientToken)
	result, _ := args.Get(0).(*deriv.WithdrawResult)
	return result, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, to, message string) bool {
	return m.Called(ctx, to, message).Bool(0)
}

type fixture struct {
	store    *memory.Store
	orders   *orders.Service
	api      *mockTradingAPI
	notifier *mockNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		api:      &mockTradingAPI{},
		notifier: &mockNotifier{},
	}
	f.store.SetBalance(models.BalanceMain, decimal.NewFromInt(1000))
	logger := logging.NewMockLogger()
	f.orders = orders.NewService(f.store, fees.NewEvaluator(f.store, logger), pop.NewReconciler(nil, nil, logger), orders.Config{}, logger)
	f.svc = NewService(f.orders, f.api, f.notifier, "+263770000000", logger)
	return f
}

func (f *fixture) create(t *testing.T, orderType models.OrderType, trader string) *models.Order {
	t.Helper()
	order, err := f.orders.Create(context.Background(), orders.CreateRequest{
		TraderID:      trader,
		Type:          orderType,
		Amount:        decimal.NewFromInt(50),
		AccountNumber: "CR1234567",
		EcocashNumber: "0771234567",
		EcocashName:   "Mr Tatenda Moyo",
	})
	require.NoError(t, err)
	return order
}

func TestReleaseDeposit(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderDeposit, "263771234567")
	amount := decimal.NewFromInt(50)

	f.api.On("FetchTransferDetails", mock.Anything, "CR1234567", amount).
		Return(&deriv.TransferDetails{LoginID: "CR1234567", FullName: "tatenda moyo"}, nil)
	f.api.On("CreateTransfer", mock.Anything, "CR1234567", amount, "EcoCash deposit "+order.ID).
		Return(&deriv.TransferResult{TransactionID: "987654"}, nil)
	f.notifier.On("Send", mock.Anything, "263771234567", "Your deposit of USD 50.00 to CR1234567 is complete. Reference: 987654").
		Return(true)

	done, err := f.svc.ReleaseDeposit(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "987654", done.ReferenceNumber)
	assert.True(t, f.store.BalanceOf(models.BalanceMain).Equal(decimal.NewFromInt(950)))
	f.api.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestReleaseDeposit_NameMismatchFailsAndRefunds(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderDeposit, "263771234567")

	f.api.On("FetchTransferDetails", mock.Anything, "CR1234567", mock.Anything).
		Return(&deriv.TransferDetails{FullName: "Rudo Chikore"}, nil)
	f.notifier.On("Send", mock.Anything, "263771234567", mock.Anything).Return(true)

	_, err := f.svc.ReleaseDeposit(context.Background(), order.ID)

	assert.ErrorIs(t, err, ErrNameMismatch)
	f.api.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	failed, getErr := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.True(t, f.store.BalanceOf(models.TraderBalance("263771234567")).IsZero(), "reservation released")

	msg := f.notifier.Calls[0].Arguments.String(2)
	assert.Contains(t, msg, "does not match your EcoCash name")
	assert.Contains(t, msg, "+263770000000")
}

func TestReleaseDeposit_APIErrorRelaysMessage(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderDeposit, "263771234567")

	f.api.On("FetchTransferDetails", mock.Anything, mock.Anything, mock.Anything).
		Return(&deriv.TransferDetails{FullName: "Tatenda Moyo"}, nil)
	f.api.On("CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &apperror.ExternalAPIError{Operation: "paymentagent_transfer", Code: "PaymentAgentTransferError", Message: "Insufficient balance."})
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(false)

	_, err := f.svc.ReleaseDeposit(context.Background(), order.ID)

	var apiErr *apperror.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, f.notifier.Calls[0].Arguments.String(2), "Insufficient balance.")
	f.api.AssertNumberOfCalls(t, "CreateTransfer", 1)
}

func TestReleaseDeposit_RejectsNonDeposit(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderWeltradeDeposit, "263771234567")

	_, err := f.svc.ReleaseDeposit(context.Background(), order.ID)

	assert.True(t, apperror.IsValidation(err))
	f.api.AssertNotCalled(t, "FetchTransferDetails", mock.Anything, mock.Anything, mock.Anything)
}

func TestReleaseDeposit_AlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderDeposit, "263771234567")
	_, err := f.orders.Process(context.Background(), order.ID, models.StatusFailed, "")
	require.NoError(t, err)

	_, err = f.svc.ReleaseDeposit(context.Background(), order.ID)

	assert.ErrorIs(t, err, apperror.ErrOrderNotPending)
}

func TestReleaseWithdrawal(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderWithdrawal, "263771234567")

	f.api.On("Withdraw", mock.Anything, decimal.NewFromInt(50), "code-1", "client-token").
		Return(&deriv.WithdrawResult{TransactionID: "555"}, nil)
	f.notifier.On("Send", mock.Anything, "263771234567", mock.Anything).Return(true)

	done, err := f.svc.ReleaseWithdrawal(context.Background(), order.ID, "code-1", "client-token")

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "555", done.ReferenceNumber)
	assert.True(t, f.store.BalanceOf(models.BalanceMain).Equal(decimal.NewFromInt(1000)))
}

func TestReleaseWithdrawal_Failure(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderWithdrawal, "263771234567")

	f.api.On("Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &apperror.ExternalAPIError{Operation: "paymentagent_withdraw", Err: context.DeadlineExceeded})
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(true)

	_, err := f.svc.ReleaseWithdrawal(context.Background(), order.ID, "code-1", "client-token")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	failed, _ := f.orders.Get(context.Background(), order.ID)
	assert.Equal(t, models.StatusFailed, failed.Status)
}

func TestReleaseWithdrawal_RequiresCode(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, models.OrderWithdrawal, "263771234567")

	_, err := f.svc.ReleaseWithdrawal(context.Background(), order.ID, "", "client-token")

	assert.True(t, apperror.IsValidation(err))
}

func TestAdminNameCheck(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.svc.AdminNameCheck("Mr John Moyo", "john moyo"))
	assert.False(t, f.svc.AdminNameCheck("Tatenda Moyo", "Farai Moyo"))
}
