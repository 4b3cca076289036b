// Package api exposes the service surface as JSON over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmcore/service"
)

// Handlers holds the dependencies of every route.
type Handlers struct {
	svc *service.Service
	log *zap.Logger
}

// NewRouter builds the gin engine with every CRM route registered.
func NewRouter(svc *service.Service, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{svc: svc, log: log.Named("api")}

	router := gin.New()
	router.Use(requestLogger(h.log), gin.Recovery())

	router.GET("/healthz", h.Health)

	customers := router.Group("/customers")
	{
		customers.POST("", h.CreateCustomer)
		customers.POST("/bulk", h.BulkCreateCustomers)
		customers.POST("/search", h.SearchCustomers)
		customers.GET("/:id", h.GetCustomer)
		customers.PATCH("/:id", h.UpdateCustomer)
		customers.DELETE("/:id", h.DeleteCustomer)
	}

	products := router.Group("/products")
	{
		products.POST("", h.CreateProduct)
		products.POST("/search", h.SearchProducts)
		products.POST("/replenish", h.ReplenishProducts)
		products.GET("/:id", h.GetProduct)
		products.PATCH("/:id", h.UpdateProduct)
		products.DELETE("/:id", h.DeleteProduct)
	}

	orders := router.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.POST("/search", h.SearchOrders)
		orders.GET("/:id", h.GetOrder)
		orders.DELETE("/:id", h.DeleteOrder)
		orders.PATCH("/:id/status", h.UpdateOrderStatus)
		orders.POST("/:id/items", h.AddOrderItem)
		orders.PATCH("/:id/items/:itemId", h.UpdateOrderItem)
		orders.DELETE("/:id/items/:itemId", h.RemoveOrderItem)
	}
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Health answers 200 while the database is reachable.
func (h *Handlers) Health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "CRM is alive"})
}
