package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelio/flightdesk/api"
	"github.com/avelio/flightdesk/config"
	"github.com/avelio/flightdesk/internal/bootstrap"
	"github.com/avelio/flightdesk/internal/cache"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/avelio/flightdesk/internal/kafka"
	"github.com/avelio/flightdesk/internal/push"
	"github.com/avelio/flightdesk/internal/repository"
	"github.com/avelio/flightdesk/internal/service/flights"
	"github.com/avelio/flightdesk/internal/service/payment"
	"github.com/avelio/flightdesk/internal/service/transaction"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Payment.FlightsCacheTTL)*time.Second)
	broadcaster := push.NewRedisBroadcaster(cfg.Redis)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	gatewayClient := gateway.NewHTTPClient(cfg.Gateway)

	flightRepo := repository.NewFlightRepository(pool)
	seatRepo := repository.NewSeatRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool, seatRepo)
	notificationRepo := repository.NewNotificationRepository(pool)

	flightService := flights.NewFlightService(flightRepo, seatRepo, redisCache, time.Duration(cfg.Payment.FlightsCacheTTL)*time.Second)
	transactionService := transaction.NewService(
		transactionRepo,
		flightRepo,
		seatRepo,
		gatewayClient,
		redisCache,
		producer,
		cfg.Kafka.PaymentEventsTopic,
		time.Duration(cfg.Payment.HoldTTLMinutes)*time.Minute,
		time.Duration(cfg.Payment.MethodTTLMinutes)*time.Minute,
		transaction.WithGatewayTimeout(time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second),
	)
	paymentService := payment.NewService(
		transactionRepo,
		flightRepo,
		gatewayClient,
		producer,
		cfg.Kafka.PaymentEventsTopic,
		payment.WithBroadcaster(broadcaster),
		payment.WithSweepBatchSize(cfg.Payment.SweepBatchSize),
	)

	handlers := bootstrap.Handlers{
		Flights:       api.NewFlightHandler(flightService),
		Transactions:  api.NewTransactionHandler(transactionService),
		Webhook:       api.NewPaymentWebhookHandler(paymentService),
		Notifications: api.NewNotificationHandler(notificationRepo),
	}

	if err := bootstrap.Run(ctx, cfg, handlers); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
