package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crmcore/model"
	"crmcore/store"
)

func parseID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, model.Invalid(field, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, model.Invalid(field, "malformed id %q", raw)
	}
	return id, nil
}

// CreateCustomer creates one customer.
func (s *Service) CreateCustomer(ctx context.Context, in store.CustomerInput) (out CustomerPayload) {
	defer s.recoverInto("create customer", &out.Payload)
	c, err := s.store.CreateCustomer(ctx, in)
	if err != nil {
		out.Payload = s.fail("create customer", err)
		return out
	}
	return CustomerPayload{Customer: c, Payload: ok("Customer created successfully")}
}

// UpdateCustomer applies the non-nil fields of up to customer id.
func (s *Service) UpdateCustomer(ctx context.Context, id string, up store.CustomerUpdate) (out CustomerPayload) {
	defer s.recoverInto("update customer", &out.Payload)
	cid, err := parseID("id", id)
	if err == nil {
		var c *model.Customer
		if c, err = s.store.UpdateCustomer(ctx, cid, up); err == nil {
			return CustomerPayload{Customer: c, Payload: ok("Customer updated successfully")}
		}
	}
	out.Payload = s.fail("update customer", err)
	return out
}

// DeleteCustomer removes the customer with all of its orders.
func (s *Service) DeleteCustomer(ctx context.Context, id string) (out Payload) {
	defer s.recoverInto("delete customer", &out)
	cid, err := parseID("id", id)
	if err == nil {
		err = s.store.DeleteCustomer(ctx, cid)
	}
	if err != nil {
		return s.fail("delete customer", err)
	}
	return ok("Customer deleted successfully")
}

// BulkCreateCustomers creates every valid row; see batch.Coordinator.
func (s *Service) BulkCreateCustomers(ctx context.Context, rows []store.CustomerInput) (out BulkCustomersPayload) {
	defer s.recoverInto("bulk create customers", &out.Payload)
	res := s.batch.BulkCreateCustomers(ctx, rows)
	out.Customers = res.Customers
	out.Payload = Payload{
		Success: res.Success,
		Errors:  res.Errors,
		Message: fmt.Sprintf("Created %d of %d customers", len(res.Customers), len(rows)),
	}
	if !res.Success {
		out.Code = CodeValidation
	}
	return out
}

// CreateProduct creates one product.
func (s *Service) CreateProduct(ctx context.Context, in store.ProductInput) (out ProductPayload) {
	defer s.recoverInto("create product", &out.Payload)
	p, err := s.store.CreateProduct(ctx, in)
	if err != nil {
		out.Payload = s.fail("create product", err)
		return out
	}
	return ProductPayload{Product: p, Payload: ok("Product created successfully")}
}

// UpdateProduct applies the non-nil fields of up to product id.
func (s *Service) UpdateProduct(ctx context.Context, id string, up store.ProductUpdate) (out ProductPayload) {
	defer s.recoverInto("update product", &out.Payload)
	pid, err := parseID("id", id)
	if err == nil {
		var p *model.Product
		if p, err = s.store.UpdateProduct(ctx, pid, up); err == nil {
			return ProductPayload{Product: p, Payload: ok("Product updated successfully")}
		}
	}
	out.Payload = s.fail("update product", err)
	return out
}

// DeleteProduct removes a product no order item refers to.
func (s *Service) DeleteProduct(ctx context.Context, id string) (out Payload) {
	defer s.recoverInto("delete product", &out)
	pid, err := parseID("id", id)
	if err == nil {
		err = s.store.DeleteProduct(ctx, pid)
	}
	if err != nil {
		return s.fail("delete product", err)
	}
	return ok("Product deleted successfully")
}

// CreateOrderInput is the short form of an order: one unit of each listed
// product at its current price.
type CreateOrderInput struct {
	OrderDate  *time.Time `json:"order_date,omitempty"`
	CustomerID string     `json:"customer_id"`
	ProductIDs []string   `json:"product_ids"`
}

// CreateOrder places an order for the listed products. A product listed more
// than once is ordered in that quantity.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (out OrderPayload) {
	defer s.recoverInto("create order", &out.Payload)
	oi, err := in.orderInput()
	if err == nil {
		var o *model.Order
		if o, err = s.store.CreateOrder(ctx, oi); err == nil {
			return OrderPayload{Order: o, Payload: ok("Order created successfully")}
		}
	}
	out.Payload = s.fail("create order", err)
	return out
}

func (in CreateOrderInput) orderInput() (store.OrderInput, error) {
	if len(in.ProductIDs) == 0 {
		return store.OrderInput{}, model.Invalid("product_ids", "at least one product must be selected")
	}
	cid, err := parseID("customer_id", in.CustomerID)
	if err != nil {
		return store.OrderInput{}, err
	}
	oi := store.OrderInput{CustomerID: cid, OrderDate: in.OrderDate}
	pos := make(map[uuid.UUID]int, len(in.ProductIDs))
	for i, raw := range in.ProductIDs {
		pid, err := parseID(fmt.Sprintf("product_ids[%d]", i), raw)
		if err != nil {
			return store.OrderInput{}, err
		}
		if j, seen := pos[pid]; seen {
			oi.Items[j].Quantity++
			continue
		}
		pos[pid] = len(oi.Items)
		oi.Items = append(oi.Items, store.ItemInput{ProductID: pid, Quantity: 1})
	}
	return oi, nil
}

// CreateOrderWithItems places an order from explicit lines.
func (s *Service) CreateOrderWithItems(ctx context.Context, in store.OrderInput) (out OrderPayload) {
	defer s.recoverInto("create order", &out.Payload)
	if len(in.Items) == 0 {
		out.Payload = s.fail("create order", model.Invalid("items", "at least one product must be selected"))
		return out
	}
	o, err := s.store.CreateOrder(ctx, in)
	if err != nil {
		out.Payload = s.fail("create order", err)
		return out
	}
	return OrderPayload{Order: o, Payload: ok("Order created successfully")}
}

// AddOrderItem adds a line to an order and returns the order with its new total.
func (s *Service) AddOrderItem(ctx context.Context, orderID string, in store.ItemInput) (out OrderPayload) {
	defer s.recoverInto("add order item", &out.Payload)
	oid, err := parseID("order_id", orderID)
	if err == nil {
		var o *model.Order
		if o, err = s.store.AddItem(ctx, oid, in); err == nil {
			return OrderPayload{Order: o, Payload: ok("Item added")}
		}
	}
	out.Payload = s.fail("add order item", err)
	return out
}

// UpdateOrderItem changes one line of an order.
func (s *Service) UpdateOrderItem(ctx context.Context, orderID, itemID string, up store.ItemUpdate) (out OrderPayload) {
	defer s.recoverInto("update order item", &out.Payload)
	oid, err := parseID("order_id", orderID)
	var iid uuid.UUID
	if err == nil {
		iid, err = parseID("item_id", itemID)
	}
	if err == nil {
		var o *model.Order
		if o, err = s.store.UpdateItem(ctx, oid, iid, up); err == nil {
			return OrderPayload{Order: o, Payload: ok("Item updated")}
		}
	}
	out.Payload = s.fail("update order item", err)
	return out
}

// RemoveOrderItem deletes one line of an order.
func (s *Service) RemoveOrderItem(ctx context.Context, orderID, itemID string) (out OrderPayload) {
	defer s.recoverInto("remove order item", &out.Payload)
	oid, err := parseID("order_id", orderID)
	var iid uuid.UUID
	if err == nil {
		iid, err = parseID("item_id", itemID)
	}
	if err == nil {
		var o *model.Order
		if o, err = s.store.RemoveItem(ctx, oid, iid); err == nil {
			return OrderPayload{Order: o, Payload: ok("Item removed")}
		}
	}
	out.Payload = s.fail("remove order item", err)
	return out
}

// UpdateOrderStatus moves an order to status.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) (out OrderPayload) {
	defer s.recoverInto("update order status", &out.Payload)
	oid, err := parseID("order_id", orderID)
	var next model.OrderStatus
	if err == nil {
		next, err = model.ParseOrderStatus(status)
	}
	if err == nil {
		var o *model.Order
		if o, err = s.store.UpdateOrderStatus(ctx, oid, next); err == nil {
			return OrderPayload{Order: o, Payload: ok("Order is now " + string(o.Status))}
		}
	}
	out.Payload = s.fail("update order status", err)
	return out
}

// DeleteOrder removes an order and its items.
func (s *Service) DeleteOrder(ctx context.Context, id string) (out Payload) {
	defer s.recoverInto("delete order", &out)
	oid, err := parseID("id", id)
	if err == nil {
		err = s.store.DeleteOrder(ctx, oid)
	}
	if err != nil {
		return s.fail("delete order", err)
	}
	return ok("Order deleted successfully")
}

// UpdateLowStockProducts restocks every product below the low-stock threshold.
func (s *Service) UpdateLowStockProducts(ctx context.Context) (out ProductsPayload) {
	defer s.recoverInto("update low stock products", &out.Payload)
	products, err := s.batch.ReplenishLowStock(ctx)
	if err != nil {
		out.Payload = s.fail("update low stock products", err)
		return out
	}
	msg := fmt.Sprintf("Updated %d low stock products", len(products))
	if len(products) == 0 {
		msg = "No low stock products found"
	}
	return ProductsPayload{Products: products, Payload: ok(msg)}
}
