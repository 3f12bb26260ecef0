package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// PaymentEvent is the message fanned out on every transaction lifecycle
// change. The worker consumes it to drive email notifications.
type PaymentEvent struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
	UserID        int64  `json:"user_id"`
	BookingCode   string `json:"booking_code"`
	Email         string `json:"email"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Route         string `json:"route"`
}

const (
	EventTransactionCreated   = "transaction_created"
	EventTransactionCancelled = "transaction_cancelled"
	EventPaymentSuccess       = "payment_success"
	EventPaymentFailed        = "payment_failed"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
