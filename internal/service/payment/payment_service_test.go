package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/avelio/flightdesk/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// reconciledTotal reads the payment_reconciled_total counter for one
// outcome label from the default registry.
func reconciledTotal(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "payment_reconciled_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) CreateWithBookings(ctx context.Context, txn *domain.Transaction, seatIDs []int64) error {
	args := m.Called(ctx, txn, seatIDs)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByIDForUser(ctx context.Context, userID int64, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SetCheckout(ctx context.Context, transactionID, token, redirectURL string) error {
	args := m.Called(ctx, transactionID, token, redirectURL)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkPending(ctx context.Context, transactionID string, method domain.PaymentMethod) (bool, error) {
	args := m.Called(ctx, transactionID, method)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) FinalizePayment(ctx context.Context, params repository.FinalizeParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) ExpirePending(ctx context.Context, now time.Time, limit int) (int, error) {
	args := m.Called(ctx, now, limit)
	return args.Int(0), args.Error(1)
}

type MockFlightRepository struct {
	mock.Mock
}

func (m *MockFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightRepository) GetAirplane(ctx context.Context, flightID int64) (*domain.Airplane, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Airplane), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

func (m *MockGatewayClient) GetTransactionStatus(ctx context.Context, orderID string) (*gateway.TransactionStatus, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransactionStatus), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func seatID(id int64) *int64 {
	return &id
}

func pendingTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:                "txn-1",
		UserID:            7,
		DepartureFlightID: 4,
		BookingCode:       "AB12CD34",
		ContactEmail:      "user@example.com",
		Bookings: []domain.Booking{
			{DepartureSeatID: seatID(10)},
			{DepartureSeatID: seatID(11)},
		},
		Payment: domain.Payment{
			ID:            1,
			TransactionID: "txn-1",
			Amount:        2000000,
			Status:        domain.PaymentStatusPending,
			ExpiresAt:     time.Now().Add(15 * time.Minute),
		},
	}
}

func TestService_ManageNotification_Settlement(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}
	mockProducer := &MockProducer{}

	service := NewService(mockTxns, mockFlights, mockGateway, mockProducer, "payment_events")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "settlement",
		PaymentMethod:     "bank_transfer",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	mockTxns.On("FinalizePayment", ctx, mock.MatchedBy(func(params repository.FinalizeParams) bool {
		return params.TransactionID == "txn-1" &&
			params.Status == domain.PaymentStatusSuccess &&
			params.SeatStatus == domain.SeatStatusBooked &&
			len(params.SeatIDs) == 2 &&
			!params.AllowReattempt &&
			params.Notification != nil &&
			params.Notification.Name == "Ticket issued"
	})).Return(true, nil).Once()
	mockProducer.On("Publish", ctx, "payment_events", "txn-1", mock.Anything).Return(nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertExpectations(t)
	mockGateway.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

func TestService_ManageNotification_CaptureFraudAccept(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, mockFlights, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "capture",
		FraudStatus:       "accept",
		PaymentMethod:     "credit_card",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	mockTxns.On("FinalizePayment", ctx, mock.MatchedBy(func(params repository.FinalizeParams) bool {
		return params.Status == domain.PaymentStatusSuccess && params.SeatStatus == domain.SeatStatusBooked
	})).Return(true, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertExpectations(t)
}

func TestService_ManageNotification_Expire(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, mockFlights, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "expire",
		PaymentMethod:     "gopay",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	mockTxns.On("FinalizePayment", ctx, mock.MatchedBy(func(params repository.FinalizeParams) bool {
		return params.Status == domain.PaymentStatusFailed &&
			params.SeatStatus == domain.SeatStatusAvailable &&
			params.Notification != nil &&
			params.Notification.Name == "Payment failed"
	})).Return(true, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertExpectations(t)
}

func TestService_ManageNotification_DuplicateDelivery(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()
	txn.Payment.Status = domain.PaymentStatusSuccess
	method := domain.PaymentMethodBankTransfer
	txn.Payment.Method = &method

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "settlement",
		PaymentMethod:     "bank_transfer",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertNotCalled(t, "FinalizePayment")
}

func TestService_ManageNotification_CreditCardReattempt(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, mockFlights, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()
	txn.Payment.Status = domain.PaymentStatusFailed
	method := domain.PaymentMethodCreditCard
	txn.Payment.Method = &method

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "capture",
		FraudStatus:       "accept",
		PaymentMethod:     "credit_card",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	mockTxns.On("FinalizePayment", ctx, mock.MatchedBy(func(params repository.FinalizeParams) bool {
		return params.Status == domain.PaymentStatusSuccess && params.AllowReattempt
	})).Return(true, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertExpectations(t)
}

func TestService_ManageNotification_ReattemptWindowClosed(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()
	txn.Payment.Status = domain.PaymentStatusFailed
	method := domain.PaymentMethodCreditCard
	txn.Payment.Method = &method
	txn.Payment.ExpiresAt = time.Now().Add(-time.Minute)

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "capture",
		FraudStatus:       "accept",
		PaymentMethod:     "credit_card",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertNotCalled(t, "FinalizePayment")
}

func TestService_ManageNotification_PendingRecordsMethod(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "pending",
		PaymentMethod:     "qris",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockTxns.On("MarkPending", ctx, "txn-1", domain.PaymentMethod("qris")).Return(true, nil).Once()

	before := reconciledTotal(t, "pending")

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	assert.Equal(t, before+1, reconciledTotal(t, "pending"))
	mockTxns.AssertExpectations(t)
	mockTxns.AssertNotCalled(t, "FinalizePayment")
}

func TestService_ManageNotification_UnknownMethodDiscarded(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "settlement",
		PaymentMethod:     "cash",
	}, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertNotCalled(t, "GetByID")
}

func TestService_ManageNotification_UnknownStatusDiscarded(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "refund",
		PaymentMethod:     "gopay",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertNotCalled(t, "FinalizePayment")
	mockTxns.AssertNotCalled(t, "MarkPending")
}

func TestService_ManageNotification_UnknownTransactionDiscarded(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()

	mockGateway.On("GetTransactionStatus", ctx, "ghost").Return(&gateway.TransactionStatus{
		OrderID:           "ghost",
		TransactionStatus: "settlement",
		PaymentMethod:     "gopay",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "ghost").Return(nil, domain.ErrNotFound).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "ghost"})

	assert.NoError(t, err)
	mockTxns.AssertNotCalled(t, "FinalizePayment")
}

func TestService_ManageNotification_EmptyOrderIDDiscarded(t *testing.T) {
	mockGateway := &MockGatewayClient{}

	service := NewService(&MockTransactionRepository{}, &MockFlightRepository{}, mockGateway, nil, "")

	err := service.ManageNotification(context.Background(), WebhookPayload{})

	assert.NoError(t, err)
	mockGateway.AssertNotCalled(t, "GetTransactionStatus")
}

func TestService_ManageNotification_GatewayErrorPropagates(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, &MockFlightRepository{}, mockGateway, nil, "")

	ctx := context.Background()
	upstream := &gateway.Error{StatusCode: 503, Message: "unavailable"}

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(nil, upstream).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.Error(t, err)
	var gwErr *gateway.Error
	assert.ErrorAs(t, err, &gwErr)
	mockTxns.AssertNotCalled(t, "GetByID")
}

func TestService_ManageNotification_LostRaceIsNotAnError(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}
	mockProducer := &MockProducer{}

	service := NewService(mockTxns, mockFlights, mockGateway, mockProducer, "payment_events")

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "settlement",
		PaymentMethod:     "bank_transfer",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	// The sweeper (or a racing delivery) finalized first; the conditional
	// update hits zero rows.
	mockTxns.On("FinalizePayment", ctx, mock.Anything).Return(false, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockProducer.AssertNotCalled(t, "Publish")
}

func TestService_ManageNotification_NotificationsDisabled(t *testing.T) {
	mockTxns := &MockTransactionRepository{}
	mockFlights := &MockFlightRepository{}
	mockGateway := &MockGatewayClient{}

	service := NewService(mockTxns, mockFlights, mockGateway, nil, "", WithUserNotifications(false))

	ctx := context.Background()
	txn := pendingTransaction()

	mockGateway.On("GetTransactionStatus", ctx, "txn-1").Return(&gateway.TransactionStatus{
		OrderID:           "txn-1",
		TransactionStatus: "settlement",
		PaymentMethod:     "bank_transfer",
	}, nil).Once()
	mockTxns.On("GetByID", ctx, "txn-1").Return(txn, nil).Once()
	mockFlights.On("GetByID", ctx, int64(4)).Return(&domain.Flight{
		ID: 4, FromAirport: "CGK", ToAirport: "DPS",
	}, nil)
	mockTxns.On("FinalizePayment", ctx, mock.MatchedBy(func(params repository.FinalizeParams) bool {
		return params.Notification == nil
	})).Return(true, nil).Once()

	err := service.ManageNotification(ctx, WebhookPayload{OrderID: "txn-1"})

	assert.NoError(t, err)
	mockTxns.AssertExpectations(t)
}

func TestService_InvalidatePending(t *testing.T) {
	mockTxns := &MockTransactionRepository{}

	service := NewService(mockTxns, &MockFlightRepository{}, &MockGatewayClient{}, nil, "", WithSweepBatchSize(50))

	ctx := context.Background()

	mockTxns.On("ExpirePending", ctx, mock.AnythingOfType("time.Time"), 50).Return(3, nil).Once()

	count, err := service.InvalidatePending(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	mockTxns.AssertExpectations(t)
}

func TestService_InvalidatePending_Empty(t *testing.T) {
	mockTxns := &MockTransactionRepository{}

	service := NewService(mockTxns, &MockFlightRepository{}, &MockGatewayClient{}, nil, "")

	ctx := context.Background()

	mockTxns.On("ExpirePending", ctx, mock.AnythingOfType("time.Time"), defaultSweepBatchSize).Return(0, nil).Once()

	count, err := service.InvalidatePending(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestService_InvalidatePending_RepositoryError(t *testing.T) {
	mockTxns := &MockTransactionRepository{}

	service := NewService(mockTxns, &MockFlightRepository{}, &MockGatewayClient{}, nil, "")

	ctx := context.Background()
	repoErr := errors.New("connection reset")

	mockTxns.On("ExpirePending", ctx, mock.AnythingOfType("time.Time"), defaultSweepBatchSize).Return(0, repoErr).Once()

	count, err := service.InvalidatePending(ctx)

	assert.ErrorIs(t, err, repoErr)
	assert.Equal(t, 0, count)
}
