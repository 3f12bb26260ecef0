package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelio/flightdesk/config"
	"github.com/avelio/flightdesk/internal/email"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/avelio/flightdesk/internal/kafka"
	"github.com/avelio/flightdesk/internal/repository"
	"github.com/avelio/flightdesk/internal/service/payment"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	gatewayClient := gateway.NewHTTPClient(cfg.Gateway)

	flightRepo := repository.NewFlightRepository(pool)
	seatRepo := repository.NewSeatRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool, seatRepo)

	paymentService := payment.NewService(
		transactionRepo,
		flightRepo,
		gatewayClient,
		producer,
		cfg.Kafka.PaymentEventsTopic,
		payment.WithSweepBatchSize(cfg.Payment.SweepBatchSize),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentEventsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.Consume(ctx, emailSender.Send); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.SweepIntervalMinutes) * time.Minute)
	defer sweepTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			if _, err := paymentService.InvalidatePending(ctx); err != nil {
				log.Printf("invalidate pending payments error: %v", err)
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
