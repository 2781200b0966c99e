package handler

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/pkg/response"
)

// respondError maps service errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrPermissionDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, models.ErrTrailNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, models.ErrMalformedPoint):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrDualStoreFailure), errors.Is(err, models.ErrStoreUnavailable):
		response.Unavailable(c, err.Error())
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		response.InternalError(c, err.Error())
	}
}
