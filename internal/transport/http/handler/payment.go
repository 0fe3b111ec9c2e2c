package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/service"
	"bookstore-payment/internal/transport/http/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCallbackSize = 64 << 10

type PaymentHandler struct {
	reconciliation service.ReconciliationService
	logger         *zap.Logger
}

func NewPaymentHandler(reconciliation service.ReconciliationService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{reconciliation: reconciliation, logger: logger}
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	req, err := h.reconciliation.Initiate(c.Request.Context(), middleware.Principal(c), c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *PaymentHandler) Status(c *gin.Context) {
	order, err := h.reconciliation.PollStatus(c.Request.Context(), middleware.Principal(c), c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":          order.ID,
		"status":           order.Status,
		"paymentReference": order.PaymentReference,
	})
}

// Callback accepts the gateway's result either as the base64 "data"
// parameter used on redirects, as a JSON body, or as a plain form.
func (h *PaymentHandler) Callback(c *gin.Context) {
	payload, err := callbackPayload(c)
	if err != nil {
		h.logger.Warn("unreadable gateway callback", zap.String("remote_ip", c.ClientIP()), zap.Error(err))
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err))
		return
	}

	order, err := h.reconciliation.HandleCallback(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) || errors.Is(err, domain.ErrMalformedID) {
			h.logger.Warn("gateway callback rejected", zap.String("remote_ip", c.ClientIP()), zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":          order.ID,
		"status":           order.Status,
		"paymentReference": order.PaymentReference,
	})
}

// Failure is where the gateway sends the customer after a cancelled or
// failed payment. It carries a signed result only sometimes.
func (h *PaymentHandler) Failure(c *gin.Context) {
	if c.Query("data") == "" {
		c.JSON(http.StatusOK, gin.H{"message": "payment was not completed"})
		return
	}
	h.Callback(c)
}

func callbackPayload(c *gin.Context) (map[string]any, error) {
	if data := c.Query("data"); data != "" {
		return decodeDataParam(data)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackSize))
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(c.ContentType(), "application/json") {
		return decodeJSON(body)
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	if data := c.Request.PostForm.Get("data"); data != "" {
		return decodeDataParam(data)
	}
	payload := make(map[string]any, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}
	if len(payload) == 0 {
		return nil, errors.New("empty callback")
	}
	return payload, nil
}

func decodeDataParam(data string) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decode data parameter: %w", err)
		}
	}
	return decodeJSON(raw)
}

func decodeJSON(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode callback json: %w", err)
	}
	return payload, nil
}
