package handler

import (
	"net/http"

	"bookstore-payment/internal/database"

	"github.com/gin-gonic/gin"
)

func Health(db database.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := db.Health(c.Request.Context())
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	}
}
