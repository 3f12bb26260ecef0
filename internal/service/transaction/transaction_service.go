package transaction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/avelio/flightdesk/internal/kafka"
	"github.com/avelio/flightdesk/internal/repository"
	"github.com/google/uuid"
)

type UseCase interface {
	Create(ctx context.Context, userID int64, input CreateInput) (*CreateResult, error)
	Cancel(ctx context.Context, userID int64, transactionID string) error
}

type Cache interface {
	AcquireSeatLocks(ctx context.Context, seatIDs []int64, ttl time.Duration) (bool, error)
	ReleaseSeatLocks(ctx context.Context, seatIDs []int64) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type PassengerInput struct {
	Name            string               `json:"name"`
	Type            domain.PassengerType `json:"type"`
	IdentityNumber  string               `json:"identity_number"`
	DepartureSeatID *int64               `json:"departure_seat_id"`
	ReturnSeatID    *int64               `json:"return_seat_id"`
}

type CreateInput struct {
	DepartureFlightID int64            `json:"departure_flight_id"`
	ReturnFlightID    *int64           `json:"return_flight_id"`
	ContactEmail      string           `json:"contact_email"`
	Passengers        []PassengerInput `json:"passengers"`
}

type CreateResult struct {
	TransactionID string `json:"transaction_id"`
	BookingCode   string `json:"booking_code"`
	CheckoutToken string `json:"checkout_token"`
	RedirectURL   string `json:"redirect_url"`
}

type Service struct {
	transactions   repository.TransactionRepository
	flights        repository.FlightRepository
	seats          repository.SeatRepository
	gateway        gateway.Client
	cache          Cache
	producer       Producer
	eventsTopic    string
	holdTTL        time.Duration
	methodTTL      time.Duration
	gatewayTimeout time.Duration
}

type ServiceOption func(*Service)

func WithGatewayTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func NewService(
	transactions repository.TransactionRepository,
	flights repository.FlightRepository,
	seats repository.SeatRepository,
	gw gateway.Client,
	cache Cache,
	producer Producer,
	eventsTopic string,
	holdTTL, methodTTL time.Duration,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		transactions:   transactions,
		flights:        flights,
		seats:          seats,
		gateway:        gw,
		cache:          cache,
		producer:       producer,
		eventsTopic:    eventsTopic,
		holdTTL:        holdTTL,
		methodTTL:      methodTTL,
		gatewayTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Create builds a transaction in two phases. Phase one commits the
// transaction, its PENDING payment, its bookings and the HELD claim on all
// seats in a single database transaction. Phase two asks the gateway for a
// checkout token; on failure a compensating finalize releases the seats and
// fails the payment, so no PENDING transaction survives a checkout that was
// never issued.
func (s *Service) Create(ctx context.Context, userID int64, input CreateInput) (*CreateResult, error) {
	if len(input.Passengers) == 0 {
		return nil, fmt.Errorf("%w: at least one passenger is required", domain.ErrValidation)
	}
	if input.ContactEmail == "" {
		return nil, fmt.Errorf("%w: contact email is required", domain.ErrValidation)
	}

	departure, err := s.flights.GetByID(ctx, input.DepartureFlightID)
	if err != nil {
		return nil, err
	}

	var ret *domain.Flight
	if input.ReturnFlightID != nil {
		ret, err = s.flights.GetByID(ctx, *input.ReturnFlightID)
		if err != nil {
			return nil, err
		}
		if ret.FromAirport != departure.ToAirport {
			return nil, fmt.Errorf("%w: return flight departs from %s, expected %s", domain.ErrValidation, ret.FromAirport, departure.ToAirport)
		}
	}

	departureSeatIDs, returnSeatIDs, err := collectSeatIDs(input.Passengers, ret != nil)
	if err != nil {
		return nil, err
	}
	if err := s.validateLegSeats(ctx, departure, departureSeatIDs); err != nil {
		return nil, err
	}
	if ret != nil {
		if err := s.validateLegSeats(ctx, ret, returnSeatIDs); err != nil {
			return nil, err
		}
	}

	amount := departure.Price * int64(len(departureSeatIDs))
	if ret != nil {
		amount += ret.Price * int64(len(returnSeatIDs))
	}

	allSeatIDs := append(append([]int64{}, departureSeatIDs...), returnSeatIDs...)

	locked := false
	if s.cache != nil {
		ok, err := s.cache.AcquireSeatLocks(ctx, allSeatIDs, s.holdTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("seat batch is locked by another checkout: %w", domain.ErrSeatUnavailable)
		}
		locked = true
	}

	now := time.Now()
	txn := &domain.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		DepartureFlightID: departure.ID,
		BookingCode:       newBookingCode(),
		ContactEmail:      input.ContactEmail,
		Payment: domain.Payment{
			Amount:         amount,
			ExpiresAt:      now.Add(s.holdTTL),
			MethodDeadline: now.Add(s.methodTTL),
		},
	}
	if ret != nil {
		txn.ReturnFlightID = &ret.ID
	}
	for _, p := range input.Passengers {
		txn.Bookings = append(txn.Bookings, domain.Booking{
			PassengerName:   p.Name,
			PassengerType:   p.Type,
			IdentityNumber:  p.IdentityNumber,
			DepartureSeatID: p.DepartureSeatID,
			ReturnSeatID:    p.ReturnSeatID,
		})
	}

	if err := s.transactions.CreateWithBookings(ctx, txn, allSeatIDs); err != nil {
		if locked {
			_ = s.cache.ReleaseSeatLocks(ctx, allSeatIDs)
		}
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	checkout, err := s.gateway.CreateCheckout(gctx, gateway.CheckoutRequest{
		OrderID:       txn.ID,
		Amount:        amount,
		CustomerName:  input.Passengers[0].Name,
		CustomerEmail: input.ContactEmail,
	})
	if err != nil {
		s.compensate(ctx, txn.ID, allSeatIDs, locked)
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	if err := s.transactions.SetCheckout(ctx, txn.ID, checkout.Token, checkout.RedirectURL); err != nil {
		s.compensate(ctx, txn.ID, allSeatIDs, locked)
		return nil, err
	}

	s.publish(ctx, kafka.EventTransactionCreated, txn)

	return &CreateResult{
		TransactionID: txn.ID,
		BookingCode:   txn.BookingCode,
		CheckoutToken: checkout.Token,
		RedirectURL:   checkout.RedirectURL,
	}, nil
}

func (s *Service) Cancel(ctx context.Context, userID int64, transactionID string) error {
	txn, err := s.transactions.GetByIDForUser(ctx, userID, transactionID)
	if err != nil {
		return err
	}
	if txn.Payment.Status != domain.PaymentStatusPending {
		return fmt.Errorf("%w: payment is already %s", domain.ErrConflict, txn.Payment.Status)
	}

	seatIDs := txn.SeatIDs()
	ok, err := s.transactions.FinalizePayment(ctx, repository.FinalizeParams{
		TransactionID: txn.ID,
		Status:        domain.PaymentStatusFailed,
		Method:        txn.Payment.Method,
		SeatIDs:       seatIDs,
		SeatStatus:    domain.SeatStatusAvailable,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment was finalized concurrently", domain.ErrConflict)
	}

	if s.cache != nil {
		_ = s.cache.ReleaseSeatLocks(ctx, seatIDs)
	}
	s.publish(ctx, kafka.EventTransactionCancelled, txn)
	return nil
}

// compensate undoes phase one after a failed gateway call: seats back to
// AVAILABLE, payment FAILED, one atomic unit. No user notification, the
// caller gets the gateway error instead.
func (s *Service) compensate(ctx context.Context, transactionID string, seatIDs []int64, locked bool) {
	if _, err := s.transactions.FinalizePayment(ctx, repository.FinalizeParams{
		TransactionID: transactionID,
		Status:        domain.PaymentStatusFailed,
		SeatIDs:       seatIDs,
		SeatStatus:    domain.SeatStatusAvailable,
	}); err != nil {
		log.Printf("compensate transaction %s: %v", transactionID, err)
	}
	if locked {
		_ = s.cache.ReleaseSeatLocks(ctx, seatIDs)
	}
}

func (s *Service) validateLegSeats(ctx context.Context, flight *domain.Flight, seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return nil
	}

	airplane, err := s.flights.GetAirplane(ctx, flight.ID)
	if err != nil {
		return err
	}

	seats, err := s.seats.GetByIDs(ctx, seatIDs)
	if err != nil {
		return err
	}
	byID := make(map[int64]domain.FlightSeat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}

	seen := make(map[int64]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: seat %d is requested twice", domain.ErrValidation, id)
		}
		seen[id] = struct{}{}

		seat, ok := byID[id]
		if !ok || seat.FlightID != flight.ID {
			return fmt.Errorf("seat %d does not belong to flight %d: %w", id, flight.ID, domain.ErrSeatUnavailable)
		}
		if !airplane.HasPosition(seat.Row, seat.Column) {
			return fmt.Errorf("%w: seat %d%s is outside the %s grid", domain.ErrValidation, seat.Row, seat.Column, airplane.Model)
		}
		if seat.Status != domain.SeatStatusAvailable {
			return fmt.Errorf("seat %d is %s: %w", id, seat.Status, domain.ErrSeatUnavailable)
		}
	}
	return nil
}

func collectSeatIDs(passengers []PassengerInput, hasReturn bool) (departure, ret []int64, err error) {
	for _, p := range passengers {
		switch p.Type {
		case domain.PassengerTypeAdult, domain.PassengerTypeChild:
			if p.DepartureSeatID == nil {
				return nil, nil, fmt.Errorf("%w: passenger %s needs a departure seat", domain.ErrValidation, p.Name)
			}
			departure = append(departure, *p.DepartureSeatID)
			if hasReturn {
				if p.ReturnSeatID == nil {
					return nil, nil, fmt.Errorf("%w: passenger %s needs a return seat", domain.ErrValidation, p.Name)
				}
				ret = append(ret, *p.ReturnSeatID)
			} else if p.ReturnSeatID != nil {
				return nil, nil, fmt.Errorf("%w: passenger %s has a return seat but no return flight", domain.ErrValidation, p.Name)
			}
		case domain.PassengerTypeInfant:
			// Infants travel on a lap; they hold no seat and are priced at zero.
			if p.DepartureSeatID != nil || p.ReturnSeatID != nil {
				return nil, nil, fmt.Errorf("%w: infant %s cannot hold a seat", domain.ErrValidation, p.Name)
			}
		default:
			return nil, nil, fmt.Errorf("%w: unknown passenger type %q", domain.ErrValidation, p.Type)
		}
	}
	return departure, ret, nil
}

func (s *Service) publish(ctx context.Context, eventType string, txn *domain.Transaction) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	event := kafka.PaymentEvent{
		Type:          eventType,
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		BookingCode:   txn.BookingCode,
		Email:         txn.ContactEmail,
		Amount:        txn.Payment.Amount,
		Status:        string(txn.Payment.Status),
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, txn.ID, event); err != nil {
		log.Printf("WARNING: failed to publish %s event for transaction %s: %v", eventType, txn.ID, err)
	}
}

func newBookingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var _ UseCase = (*Service)(nil)
