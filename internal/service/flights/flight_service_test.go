package flights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

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

type MockSeatRepository struct {
	mock.Mock
}

func (m *MockSeatRepository) ListByFlight(ctx context.Context, flightID int64) ([]domain.FlightSeat, error) {
	args := m.Called(ctx, flightID)
	return args.Get(0).([]domain.FlightSeat), args.Error(1)
}

func (m *MockSeatRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightSeat, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.FlightSeat), args.Error(1)
}

func (m *MockSeatRepository) ClaimTx(ctx context.Context, tx pgx.Tx, ids []int64) error {
	args := m.Called(ctx, tx, ids)
	return args.Error(0)
}

func (m *MockSeatRepository) ReleaseTx(ctx context.Context, tx pgx.Tx, ids []int64) error {
	args := m.Called(ctx, tx, ids)
	return args.Error(0)
}

func (m *MockSeatRepository) FinalizeTx(ctx context.Context, tx pgx.Tx, ids []int64, reattempt bool) error {
	args := m.Called(ctx, tx, ids, reattempt)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	args := m.Called(ctx, flights)
	return args.Error(0)
}

func testFlights() []domain.Flight {
	return []domain.Flight{
		{
			ID:            4,
			AirplaneID:    1,
			Code:          "AV101",
			FromAirport:   "CGK",
			ToAirport:     "DPS",
			DepartureTime: time.Now(),
			ArrivalTime:   time.Now().Add(2 * time.Hour),
			Price:         1000000,
		},
	}
}

func TestFlightService_List_CacheMiss(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}
	mockCache := &MockCache{}

	service := NewFlightService(mockRepo, mockSeats, mockCache, time.Minute)

	ctx := context.Background()
	flights := testFlights()

	mockCache.On("GetFlights", ctx).Return(([]domain.Flight)(nil), nil).Once()
	mockRepo.On("List", ctx).Return(flights, nil).Once()
	mockCache.On("SetFlights", ctx, flights).Return(nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, flights, result)

	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestFlightService_List_CacheHit(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}
	mockCache := &MockCache{}

	service := NewFlightService(mockRepo, mockSeats, mockCache, time.Minute)

	ctx := context.Background()
	flights := testFlights()

	mockCache.On("GetFlights", ctx).Return(flights, nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, flights, result)

	mockCache.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "List")
	mockCache.AssertNotCalled(t, "SetFlights")
}

func TestFlightService_List_CacheError(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}
	mockCache := &MockCache{}

	service := NewFlightService(mockRepo, mockSeats, mockCache, time.Minute)

	ctx := context.Background()
	flights := testFlights()

	mockCache.On("GetFlights", ctx).Return(([]domain.Flight)(nil), errors.New("cache error")).Once()
	mockRepo.On("List", ctx).Return(flights, nil).Once()
	mockCache.On("SetFlights", ctx, flights).Return(nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, flights, result)

	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestFlightService_List_RepositoryError(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}
	mockCache := &MockCache{}

	service := NewFlightService(mockRepo, mockSeats, mockCache, time.Minute)

	ctx := context.Background()

	expectedErr := errors.New("database error")
	mockCache.On("GetFlights", ctx).Return(([]domain.Flight)(nil), nil).Once()
	mockRepo.On("List", ctx).Return([]domain.Flight{}, expectedErr).Once()

	result, err := service.List(ctx)

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, expectedErr, err)

	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
	mockCache.AssertNotCalled(t, "SetFlights")
}

func TestFlightService_Seats(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}

	service := NewFlightService(mockRepo, mockSeats, nil, time.Minute)

	ctx := context.Background()
	flights := testFlights()
	seats := []domain.FlightSeat{
		{ID: 10, FlightID: 4, Row: 1, Column: "A", Status: domain.SeatStatusAvailable},
		{ID: 11, FlightID: 4, Row: 1, Column: "B", Status: domain.SeatStatusBooked},
	}

	mockRepo.On("GetByID", ctx, int64(4)).Return(&flights[0], nil).Once()
	mockSeats.On("ListByFlight", ctx, int64(4)).Return(seats, nil).Once()

	result, err := service.Seats(ctx, 4)

	assert.NoError(t, err)
	assert.Equal(t, seats, result)

	mockRepo.AssertExpectations(t)
	mockSeats.AssertExpectations(t)
}

func TestFlightService_Seats_FlightNotFound(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}

	service := NewFlightService(mockRepo, mockSeats, nil, time.Minute)

	ctx := context.Background()

	mockRepo.On("GetByID", ctx, int64(999)).Return(nil, domain.ErrNotFound).Once()

	result, err := service.Seats(ctx, 999)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, result)

	mockSeats.AssertNotCalled(t, "ListByFlight")
}

func TestFlightService_NoCache(t *testing.T) {
	mockRepo := &MockFlightRepository{}
	mockSeats := &MockSeatRepository{}

	service := NewFlightService(mockRepo, mockSeats, nil, time.Minute)

	ctx := context.Background()
	flights := testFlights()

	mockRepo.On("List", ctx).Return(flights, nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, flights, result)

	mockRepo.AssertExpectations(t)
}
