package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/deploykit/middleware"
	"github.com/deploykit/repositories"
	"github.com/deploykit/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP status codes.
func respondError(c *gin.Context, log *logrus.Entry, err error) {
	var validation *services.ValidationError
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, services.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrForbidden):
		status, message = http.StatusForbidden, "Access denied"
	case errors.As(err, &validation):
		status, message = http.StatusBadRequest, validation.Error()
	case errors.Is(err, services.ErrClusterUnavailable):
		status, message = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, repositories.ErrPortRangeExhausted):
		status, message = http.StatusConflict, err.Error()
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"status": "error", "message": message})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "User not authenticated"})
	}
	return id, ok
}
