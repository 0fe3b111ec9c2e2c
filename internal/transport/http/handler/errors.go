package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bookstore-payment/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var statusByKind = map[domain.Kind]int{
	domain.KindValidation:             http.StatusBadRequest,
	domain.KindInvalidTransition:      http.StatusConflict,
	domain.KindInvalidSignature:       http.StatusBadRequest,
	domain.KindMalformedID:            http.StatusBadRequest,
	domain.KindNotFound:               http.StatusNotFound,
	domain.KindGatewayUnavailable:     http.StatusBadGateway,
	domain.KindConcurrentModification: http.StatusConflict,
	domain.KindForbidden:              http.StatusForbidden,
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": err.Error(), "kind": kind}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		body["current_status"] = terr.From
	}
	c.JSON(status, body)
}

func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error parsing body", "kind": domain.KindValidation})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "validation failed",
		"kind":   domain.KindValidation,
		"fields": formatValidationError(verrs),
	})
}

func formatValidationError(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string)
	for _, err := range verrs {
		field := strings.ToLower(err.Field())

		switch err.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", field)
		case "min":
			out[field] = fmt.Sprintf("%s must have at least %s entries", field, err.Param())
		case "gte":
			out[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return out
}
