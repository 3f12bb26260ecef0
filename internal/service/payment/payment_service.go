// Package payment implements the reconciliation core: the webhook state
// machine that moves a payment from PENDING to SUCCESS or FAILED exactly
// once per real-world outcome, and the sweeper that force-fails PENDING
// payments whose deadline the gateway never confirmed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/avelio/flightdesk/internal/kafka"
	"github.com/avelio/flightdesk/internal/metrics"
	"github.com/avelio/flightdesk/internal/push"
	"github.com/avelio/flightdesk/internal/repository"
)

type UseCase interface {
	ManageNotification(ctx context.Context, payload WebhookPayload) error
	InvalidatePending(ctx context.Context) (int, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// WebhookPayload is the pushed gateway notification. Only the order id is
// used; the status fields may be stale or forged, so the reconciler
// re-queries the gateway for the authoritative state.
type WebhookPayload struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
}

const defaultSweepBatchSize = 100

type Service struct {
	transactions repository.TransactionRepository
	flights      repository.FlightRepository
	gateway      gateway.Client
	producer     Producer
	broadcaster  push.Broadcaster
	eventsTopic  string
	notifyUser   bool
	sweepBatch   int
}

type ServiceOption func(*Service)

// WithUserNotifications toggles the user Notification row inserted on
// terminal outcomes.
func WithUserNotifications(enabled bool) ServiceOption {
	return func(s *Service) {
		s.notifyUser = enabled
	}
}

func WithSweepBatchSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.sweepBatch = size
		}
	}
}

func WithBroadcaster(b push.Broadcaster) ServiceOption {
	return func(s *Service) {
		s.broadcaster = b
	}
}

func NewService(
	transactions repository.TransactionRepository,
	flights repository.FlightRepository,
	gw gateway.Client,
	producer Producer,
	eventsTopic string,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		transactions: transactions,
		flights:      flights,
		gateway:      gw,
		producer:     producer,
		eventsTopic:  eventsTopic,
		notifyUser:   true,
		sweepBatch:   defaultSweepBatchSize,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ManageNotification reconciles one webhook delivery. Deliveries may be
// duplicated, reordered or forged; everything that cannot be acted on is
// logged and discarded without error so the gateway stops retrying. Only a
// failed authoritative status lookup propagates.
func (s *Service) ManageNotification(ctx context.Context, payload WebhookPayload) error {
	if payload.OrderID == "" {
		log.Printf("webhook: discarding notification without order id")
		return nil
	}

	status, err := s.gateway.GetTransactionStatus(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("authoritative status lookup for %s: %w", payload.OrderID, err)
	}

	if !domain.KnownPaymentMethod(status.PaymentMethod) {
		log.Printf("webhook: discarding transaction %s with unknown payment method %q", status.OrderID, status.PaymentMethod)
		metrics.RecordReconciliation("discarded")
		return nil
	}
	method := domain.PaymentMethod(status.PaymentMethod)

	txn, err := s.transactions.GetByID(ctx, status.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("webhook: discarding notification for unknown transaction %s", status.OrderID)
			metrics.RecordReconciliation("discarded")
			return nil
		}
		return err
	}

	p := txn.Payment
	reattempt := p.Status == domain.PaymentStatusFailed &&
		p.Method != nil && *p.Method == domain.PaymentMethodCreditCard &&
		time.Now().Before(p.ExpiresAt)
	if p.Status != domain.PaymentStatusPending && !reattempt {
		log.Printf("webhook: transaction %s already %s, discarding duplicate (reported %s, fraud %s)",
			txn.ID, p.Status, status.TransactionStatus, status.FraudStatus)
		metrics.RecordReconciliation("duplicate")
		return nil
	}

	seatIDs := txn.SeatIDs()
	if len(seatIDs) == 0 {
		log.Printf("webhook: transaction %s has no seats to reconcile, discarding", txn.ID)
		metrics.RecordReconciliation("discarded")
		return nil
	}

	switch classify(status) {
	case outcomeSuccess:
		return s.finalize(ctx, txn, status, method, domain.PaymentStatusSuccess, domain.SeatStatusBooked, reattempt)
	case outcomeFailure:
		return s.finalize(ctx, txn, status, method, domain.PaymentStatusFailed, domain.SeatStatusAvailable, reattempt)
	case outcomePending:
		ok, err := s.transactions.MarkPending(ctx, txn.ID, method)
		if err != nil {
			return err
		}
		if ok {
			log.Printf("webhook: transaction %s pending with method %s (fraud %s)", txn.ID, method, status.FraudStatus)
			metrics.RecordReconciliation("pending")
		} else {
			metrics.RecordReconciliation("duplicate")
		}
		return nil
	default:
		log.Printf("webhook: transaction %s reported unrecognized status %q (fraud %s), discarding",
			txn.ID, status.TransactionStatus, status.FraudStatus)
		metrics.RecordReconciliation("discarded")
		return nil
	}
}

// InvalidatePending force-fails a batch of PENDING payments past their
// deadline and releases their held seats. No gateway call is made: this is
// a local timeout, not a gateway-confirmed failure.
func (s *Service) InvalidatePending(ctx context.Context) (int, error) {
	count, err := s.transactions.ExpirePending(ctx, time.Now(), s.sweepBatch)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		log.Printf("sweep: no pending payments to invalidate")
		return 0, nil
	}
	log.Printf("sweep: invalidated %d pending payments", count)
	metrics.RecordExpired(count)
	return count, nil
}

type outcome int

const (
	outcomeUnknown outcome = iota
	outcomeSuccess
	outcomeFailure
	outcomePending
)

func classify(status *gateway.TransactionStatus) outcome {
	switch status.TransactionStatus {
	case "capture":
		if status.FraudStatus == "accept" {
			return outcomeSuccess
		}
		return outcomeUnknown
	case "settlement":
		return outcomeSuccess
	case "deny", "cancel", "expire":
		return outcomeFailure
	case "pending":
		return outcomePending
	default:
		return outcomeUnknown
	}
}

func (s *Service) finalize(ctx context.Context, txn *domain.Transaction, status *gateway.TransactionStatus,
	method domain.PaymentMethod, paymentStatus domain.PaymentStatus, seatStatus domain.SeatStatus, reattempt bool) error {

	var notification *domain.Notification
	if s.notifyUser {
		notification = s.buildNotification(ctx, txn, paymentStatus)
	}

	ok, err := s.transactions.FinalizePayment(ctx, repository.FinalizeParams{
		TransactionID:  txn.ID,
		Status:         paymentStatus,
		Method:         &method,
		SeatIDs:        txn.SeatIDs(),
		SeatStatus:     seatStatus,
		AllowReattempt: reattempt,
		Notification:   notification,
	})
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("webhook: transaction %s was finalized concurrently, discarding (reported %s, fraud %s)",
			txn.ID, status.TransactionStatus, status.FraudStatus)
		metrics.RecordReconciliation("duplicate")
		return nil
	}

	log.Printf("webhook: transaction %s finalized as %s (reported %s, fraud %s, method %s)",
		txn.ID, paymentStatus, status.TransactionStatus, status.FraudStatus, method)
	if paymentStatus == domain.PaymentStatusSuccess {
		metrics.RecordReconciliation("success")
	} else {
		metrics.RecordReconciliation("failure")
	}

	s.fanOut(ctx, txn, paymentStatus)
	return nil
}

func (s *Service) buildNotification(ctx context.Context, txn *domain.Transaction, status domain.PaymentStatus) *domain.Notification {
	route := s.routeDescription(ctx, txn)
	if status == domain.PaymentStatusSuccess {
		return &domain.Notification{
			UserID:      txn.UserID,
			Name:        "Ticket issued",
			Description: fmt.Sprintf("Your booking %s (%s) is confirmed. Have a safe flight!", txn.BookingCode, route),
		}
	}
	return &domain.Notification{
		UserID:      txn.UserID,
		Name:        "Payment failed",
		Description: fmt.Sprintf("Payment for booking %s (%s) was not completed. The seats have been released.", txn.BookingCode, route),
	}
}

// routeDescription renders the leg route codes, e.g. "CGK-DPS, DPS-CGK".
// Best effort: a lookup failure falls back to the booking code alone.
func (s *Service) routeDescription(ctx context.Context, txn *domain.Transaction) string {
	departure, err := s.flights.GetByID(ctx, txn.DepartureFlightID)
	if err != nil {
		return "route unavailable"
	}
	route := departure.FromAirport + "-" + departure.ToAirport
	if txn.ReturnFlightID != nil {
		if ret, err := s.flights.GetByID(ctx, *txn.ReturnFlightID); err == nil {
			route += ", " + ret.FromAirport + "-" + ret.ToAirport
		}
	}
	return route
}

func (s *Service) fanOut(ctx context.Context, txn *domain.Transaction, status domain.PaymentStatus) {
	eventType := kafka.EventPaymentFailed
	if status == domain.PaymentStatusSuccess {
		eventType = kafka.EventPaymentSuccess
	}
	event := kafka.PaymentEvent{
		Type:          eventType,
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		BookingCode:   txn.BookingCode,
		Email:         txn.ContactEmail,
		Amount:        txn.Payment.Amount,
		Status:        string(status),
		Route:         s.routeDescription(ctx, txn),
	}

	if s.producer != nil && s.eventsTopic != "" {
		if err := s.producer.Publish(ctx, s.eventsTopic, txn.ID, event); err != nil {
			log.Printf("WARNING: failed to publish %s event for transaction %s: %v", eventType, txn.ID, err)
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, txn.UserID, event); err != nil {
			log.Printf("WARNING: failed to broadcast %s event for transaction %s: %v", eventType, txn.ID, err)
		}
	}
}

var _ UseCase = (*Service)(nil)
