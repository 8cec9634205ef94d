// Package http is the gin REST surface.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fundarb/internal/domain/fault"
)

// errorBody is the uniform error shape: a human detail plus the taxonomy
// kind clients branch on.
type errorBody struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindAuth:
		return http.StatusUnauthorized
	case fault.KindNotSupported:
		return http.StatusNotFound
	case fault.KindTransient:
		return http.StatusServiceUnavailable
	case fault.KindRisk:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	c.JSON(statusFor(kind), errorBody{Detail: err.Error(), Kind: string(kind)})
}
