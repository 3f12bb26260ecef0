package api

import (
	"log"
	"net/http"

	"github.com/avelio/flightdesk/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentWebhookHandler struct {
	service payment.UseCase
}

func NewPaymentWebhookHandler(service payment.UseCase) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{service: service}
}

func (h *PaymentWebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/notifications", h.notify)
}

// notify acknowledges the gateway with 200 in every case the reconciler
// handled, including discards; an error response would only make the
// gateway retry a delivery that will never be actionable. Only a failed
// authoritative status lookup surfaces as an error.
func (h *PaymentWebhookHandler) notify(c *gin.Context) {
	var payload payment.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("webhook: discarding malformed payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.service.ManageNotification(c.Request.Context(), payload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
