package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avelio/flightdesk/api"
	"github.com/avelio/flightdesk/config"
	"github.com/avelio/flightdesk/internal/metrics"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Flights       *api.FlightHandler
	Transactions  *api.TransactionHandler
	Webhook       *api.PaymentWebhookHandler
	Notifications *api.NotificationHandler
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(ctx context.Context, cfg *config.Config, h Handlers) error {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware())

	router.GET("/metrics", metrics.Handler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	h.Flights.Register(v1.Group("/flights"))
	h.Transactions.Register(v1.Group("/transactions"))
	h.Webhook.Register(v1.Group("/payments"))
	h.Notifications.Register(v1.Group("/notifications"))

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
