package email

import (
	"context"
	"fmt"

	"github.com/avelio/flightdesk/internal/kafka"
)

type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

// Send renders and dispatches the mail for one payment event. Fire and
// forget: the state machine never waits on it.
func (s *Sender) Send(ctx context.Context, event kafka.PaymentEvent) error {
	switch event.Type {
	case kafka.EventPaymentSuccess:
		fmt.Printf("send ticket email to %s: booking %s (%s) is confirmed, amount %d\n", event.Email, event.BookingCode, event.Route, event.Amount)
	case kafka.EventPaymentFailed:
		fmt.Printf("send failure email to %s: payment for booking %s (%s) was not completed\n", event.Email, event.BookingCode, event.Route)
	default:
		fmt.Printf("send email to %s about %s for booking %s\n", event.Email, event.Type, event.BookingCode)
	}
	return nil
}
