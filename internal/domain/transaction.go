package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodGopay        PaymentMethod = "gopay"
	PaymentMethodQris         PaymentMethod = "qris"
	PaymentMethodEchannel     PaymentMethod = "echannel"
	PaymentMethodShopeepay    PaymentMethod = "shopeepay"
)

var knownPaymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodCreditCard:   {},
	PaymentMethodBankTransfer: {},
	PaymentMethodGopay:        {},
	PaymentMethodQris:         {},
	PaymentMethodEchannel:     {},
	PaymentMethodShopeepay:    {},
}

// KnownPaymentMethod reports whether the gateway-reported method is one we
// accept. Unknown methods are discarded by the webhook reconciler.
func KnownPaymentMethod(m string) bool {
	_, ok := knownPaymentMethods[PaymentMethod(m)]
	return ok
}

type PassengerType string

const (
	PassengerTypeAdult  PassengerType = "ADULT"
	PassengerTypeChild  PassengerType = "CHILD"
	PassengerTypeInfant PassengerType = "INFANT"
)

type Transaction struct {
	ID                string
	UserID            int64
	DepartureFlightID int64
	ReturnFlightID    *int64
	BookingCode       string
	ContactEmail      string
	CreatedAt         time.Time
	Bookings          []Booking
	Payment           Payment
}

// SeatIDs collects every seat referenced by the transaction's bookings,
// departure and return legs alike. Infants without seats contribute nothing.
func (t *Transaction) SeatIDs() []int64 {
	ids := make([]int64, 0, len(t.Bookings)*2)
	for _, b := range t.Bookings {
		if b.DepartureSeatID != nil {
			ids = append(ids, *b.DepartureSeatID)
		}
		if b.ReturnSeatID != nil {
			ids = append(ids, *b.ReturnSeatID)
		}
	}
	return ids
}

type Booking struct {
	ID              int64
	TransactionID   string
	PassengerName   string
	PassengerType   PassengerType
	IdentityNumber  string
	DepartureSeatID *int64
	ReturnSeatID    *int64
}

type Payment struct {
	ID             int64
	TransactionID  string
	Amount         int64
	Status         PaymentStatus
	Method         *PaymentMethod
	CheckoutToken  string
	RedirectURL    string
	ExpiresAt      time.Time
	MethodDeadline time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
