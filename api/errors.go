package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/avelio/flightdesk/internal/domain"
	"github.com/avelio/flightdesk/internal/gateway"
	"github.com/gin-gonic/gin"
)

// respondError maps the domain error taxonomy onto HTTP status codes.
// Gateway errors are relayed with the provider's own status code.
func respondError(c *gin.Context, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSeatUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &gwErr):
		c.JSON(gwErr.StatusCode, gin.H{"error": gwErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// userID reads the authenticated user from the X-User-ID header set by the
// auth layer in front of this service. Token issuance itself lives there,
// not here.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid user"})
		return 0, false
	}
	return id, true
}
