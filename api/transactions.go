package api

import (
	"net/http"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/avelio/flightdesk/internal/service/transaction"
	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	service transaction.UseCase
}

type passengerRequest struct {
	Name            string `json:"name" binding:"required"`
	Type            string `json:"type" binding:"required"`
	IdentityNumber  string `json:"identity_number"`
	DepartureSeatID *int64 `json:"departure_seat_id"`
	ReturnSeatID    *int64 `json:"return_seat_id"`
}

type createTransactionRequest struct {
	DepartureFlightID int64              `json:"departure_flight_id" binding:"required"`
	ReturnFlightID    *int64             `json:"return_flight_id"`
	ContactEmail      string             `json:"contact_email" binding:"required,email"`
	Passengers        []passengerRequest `json:"passengers" binding:"required,min=1"`
}

type createTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	BookingCode   string `json:"booking_code"`
	CheckoutToken string `json:"checkout_token"`
	RedirectURL   string `json:"redirect_url"`
}

func NewTransactionHandler(service transaction.UseCase) *TransactionHandler {
	return &TransactionHandler{service: service}
}

func (h *TransactionHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.DELETE("/:id", h.cancel)
}

func (h *TransactionHandler) create(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := transaction.CreateInput{
		DepartureFlightID: req.DepartureFlightID,
		ReturnFlightID:    req.ReturnFlightID,
		ContactEmail:      req.ContactEmail,
	}
	for _, p := range req.Passengers {
		input.Passengers = append(input.Passengers, transaction.PassengerInput{
			Name:            p.Name,
			Type:            domain.PassengerType(p.Type),
			IdentityNumber:  p.IdentityNumber,
			DepartureSeatID: p.DepartureSeatID,
			ReturnSeatID:    p.ReturnSeatID,
		})
	}

	result, err := h.service.Create(c.Request.Context(), uid, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createTransactionResponse{
		TransactionID: result.TransactionID,
		BookingCode:   result.BookingCode,
		CheckoutToken: result.CheckoutToken,
		RedirectURL:   result.RedirectURL,
	})
}

func (h *TransactionHandler) cancel(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), uid, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
