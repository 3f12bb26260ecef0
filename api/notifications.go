package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avelio/flightdesk/internal/repository"
	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	repo repository.NotificationRepository
}

type notificationResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Viewed      bool   `json:"viewed"`
	CreatedAt   string `json:"created_at"`
}

func NewNotificationHandler(repo repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

func (h *NotificationHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
	router.PATCH("/:id/viewed", h.markViewed)
	router.DELETE("/:id", h.delete)
}

func (h *NotificationHandler) list(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	notifications, err := h.repo.ListByUser(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponse{
			ID:          n.ID,
			Name:        n.Name,
			Description: n.Description,
			Viewed:      n.Viewed,
			CreatedAt:   n.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *NotificationHandler) markViewed(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.repo.MarkViewed(c.Request.Context(), uid, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "viewed"})
}

func (h *NotificationHandler) delete(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.repo.Delete(c.Request.Context(), uid, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
