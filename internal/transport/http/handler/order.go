package handler

import (
	"net/http"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/service"
	"bookstore-payment/internal/transport/http/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type refundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var input service.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.Warn("failed to parse body in create", zap.Error(err))
		writeBindError(c, err)
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	orders, err := h.orders.ListMyOrders(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) ListByEmail(c *gin.Context) {
	orders, err := h.orders.ListOrdersByEmail(c.Request.Context(), middleware.Principal(c), c.Query("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	order, err := h.orders.CancelOrder(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) RequestRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	order, err := h.orders.RequestRefund(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ApproveRefund(c *gin.Context) {
	order, err := h.orders.ApproveRefund(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) DeleteAll(c *gin.Context) {
	count, err := h.orders.DeleteAllOrders(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}
