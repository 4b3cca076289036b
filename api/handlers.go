package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crmcore/filter"
	"crmcore/model"
	"crmcore/service"
	"crmcore/store"
)

// statusOf maps a payload code onto an HTTP status.
func statusOf(code service.Code) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeConflict:
		return http.StatusConflict
	case "":
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respond writes a mutation payload; successful creates answer 201.
func respond(c *gin.Context, p service.Payload, body any, created bool) {
	status := statusOf(p.Code)
	if p.Success && created {
		status = http.StatusCreated
	}
	c.JSON(status, body)
}

// bind decodes the JSON body or answers 400.
func bind(c *gin.Context, into any) bool {
	if err := c.ShouldBindJSON(into); err != nil {
		c.JSON(http.StatusBadRequest, service.Payload{Code: service.CodeValidation, Message: "invalid request body", Errors: []string{err.Error()}})
		return false
	}
	return true
}

func queryError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// --- customers ---

// CreateCustomer handles POST /customers.
func (h *Handlers) CreateCustomer(c *gin.Context) {
	var in store.CustomerInput
	if !bind(c, &in) {
		return
	}
	p := h.svc.CreateCustomer(c.Request.Context(), in)
	respond(c, p.Payload, p, true)
}

// BulkCreateCustomers handles POST /customers/bulk.
func (h *Handlers) BulkCreateCustomers(c *gin.Context) {
	var rows []store.CustomerInput
	if !bind(c, &rows) {
		return
	}
	p := h.svc.BulkCreateCustomers(c.Request.Context(), rows)
	// partial success is still a processed request
	c.JSON(http.StatusOK, p)
}

// GetCustomer handles GET /customers/:id.
func (h *Handlers) GetCustomer(c *gin.Context) {
	cust, err := h.svc.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

// UpdateCustomer handles PATCH /customers/:id.
func (h *Handlers) UpdateCustomer(c *gin.Context) {
	var up store.CustomerUpdate
	if !bind(c, &up) {
		return
	}
	p := h.svc.UpdateCustomer(c.Request.Context(), c.Param("id"), up)
	respond(c, p.Payload, p, false)
}

// DeleteCustomer handles DELETE /customers/:id.
func (h *Handlers) DeleteCustomer(c *gin.Context) {
	p := h.svc.DeleteCustomer(c.Request.Context(), c.Param("id"))
	respond(c, p, p, false)
}

// SearchCustomers handles POST /customers/search.
func (h *Handlers) SearchCustomers(c *gin.Context) {
	f, err := filter.DecodeCustomerFilter(c.Request.Body)
	if err != nil {
		queryError(c, err)
		return
	}
	rows, err := h.svc.FilteredCustomers(c.Request.Context(), f)
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": rows, "count": len(rows)})
}

// --- products ---

// CreateProduct handles POST /products.
func (h *Handlers) CreateProduct(c *gin.Context) {
	var in store.ProductInput
	if !bind(c, &in) {
		return
	}
	p := h.svc.CreateProduct(c.Request.Context(), in)
	respond(c, p.Payload, p, true)
}

// GetProduct handles GET /products/:id.
func (h *Handlers) GetProduct(c *gin.Context) {
	prod, err := h.svc.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, prod)
}

// UpdateProduct handles PATCH /products/:id.
func (h *Handlers) UpdateProduct(c *gin.Context) {
	var up store.ProductUpdate
	if !bind(c, &up) {
		return
	}
	p := h.svc.UpdateProduct(c.Request.Context(), c.Param("id"), up)
	respond(c, p.Payload, p, false)
}

// DeleteProduct handles DELETE /products/:id.
func (h *Handlers) DeleteProduct(c *gin.Context) {
	p := h.svc.DeleteProduct(c.Request.Context(), c.Param("id"))
	respond(c, p, p, false)
}

// SearchProducts handles POST /products/search.
func (h *Handlers) SearchProducts(c *gin.Context) {
	f, err := filter.DecodeProductFilter(c.Request.Body)
	if err != nil {
		queryError(c, err)
		return
	}
	rows, err := h.svc.FilteredProducts(c.Request.Context(), f)
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": rows, "count": len(rows)})
}

// ReplenishProducts handles POST /products/replenish.
func (h *Handlers) ReplenishProducts(c *gin.Context) {
	p := h.svc.UpdateLowStockProducts(c.Request.Context())
	respond(c, p.Payload, p, false)
}

// --- orders ---

// CreateOrder handles POST /orders.
func (h *Handlers) CreateOrder(c *gin.Context) {
	var in service.CreateOrderInput
	if !bind(c, &in) {
		return
	}
	p := h.svc.CreateOrder(c.Request.Context(), in)
	respond(c, p.Payload, p, true)
}

// GetOrder handles GET /orders/:id.
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// DeleteOrder handles DELETE /orders/:id.
func (h *Handlers) DeleteOrder(c *gin.Context) {
	p := h.svc.DeleteOrder(c.Request.Context(), c.Param("id"))
	respond(c, p, p, false)
}

type statusInput struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus handles PATCH /orders/:id/status.
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var in statusInput
	if !bind(c, &in) {
		return
	}
	p := h.svc.UpdateOrderStatus(c.Request.Context(), c.Param("id"), in.Status)
	respond(c, p.Payload, p, false)
}

// AddOrderItem handles POST /orders/:id/items.
func (h *Handlers) AddOrderItem(c *gin.Context) {
	var in store.ItemInput
	if !bind(c, &in) {
		return
	}
	p := h.svc.AddOrderItem(c.Request.Context(), c.Param("id"), in)
	respond(c, p.Payload, p, true)
}

// UpdateOrderItem handles PATCH /orders/:id/items/:itemId.
func (h *Handlers) UpdateOrderItem(c *gin.Context) {
	var up store.ItemUpdate
	if !bind(c, &up) {
		return
	}
	p := h.svc.UpdateOrderItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), up)
	respond(c, p.Payload, p, false)
}

// RemoveOrderItem handles DELETE /orders/:id/items/:itemId.
func (h *Handlers) RemoveOrderItem(c *gin.Context) {
	p := h.svc.RemoveOrderItem(c.Request.Context(), c.Param("id"), c.Param("itemId"))
	respond(c, p.Payload, p, false)
}

// SearchOrders handles POST /orders/search.
func (h *Handlers) SearchOrders(c *gin.Context) {
	f, err := filter.DecodeOrderFilter(c.Request.Body)
	if err != nil {
		queryError(c, err)
		return
	}
	rows, err := h.svc.FilteredOrders(c.Request.Context(), f)
	if err != nil {
		queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows, "count": len(rows)})
}
