package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crmcore/filter"
	"crmcore/model"
)

// FilteredCustomers returns the customers matching f.
func (s *Service) FilteredCustomers(ctx context.Context, f filter.CustomerFilter) ([]model.Customer, error) {
	q, err := f.Query()
	if err != nil {
		return nil, err
	}
	return s.store.ListCustomers(ctx, q.Scope())
}

// FilteredProducts returns the products matching f.
func (s *Service) FilteredProducts(ctx context.Context, f filter.ProductFilter) ([]model.Product, error) {
	q, err := f.Query()
	if err != nil {
		return nil, err
	}
	return s.store.ListProducts(ctx, q.Scope())
}

// FilteredOrders returns the orders matching f with customer and items loaded.
func (s *Service) FilteredOrders(ctx context.Context, f filter.OrderFilter) ([]model.Order, error) {
	q, err := f.Query()
	if err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, q.Scope())
}

// GetCustomer loads one customer by id.
func (s *Service) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	cid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return s.store.GetCustomer(ctx, cid)
}

// GetProduct loads one product by id.
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	pid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return s.store.GetProduct(ctx, pid)
}

// GetOrder loads one order with its customer and items.
func (s *Service) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, oid)
}

// Report summarises the whole store.
type Report struct {
	Revenue   decimal.Decimal `json:"revenue"`
	Customers int64           `json:"customers"`
	Orders    int64           `json:"orders"`
}

// String renders the report as a single log line.
func (r Report) String() string {
	return fmt.Sprintf("Report: %d customers, %d orders, $%s revenue", r.Customers, r.Orders, r.Revenue.StringFixed(2))
}

// Report counts customers and orders and sums order totals.
func (s *Service) Report(ctx context.Context) (Report, error) {
	customers, err := s.store.CountCustomers(ctx)
	if err != nil {
		return Report{}, err
	}
	orders, revenue, err := s.store.Revenue(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Customers: customers, Orders: orders, Revenue: revenue}, nil
}

// RecentOrders returns the orders placed within window of now, newest first.
func (s *Service) RecentOrders(ctx context.Context, window time.Duration) ([]model.Order, error) {
	since := time.Now().UTC().Add(-window)
	return s.FilteredOrders(ctx, filter.OrderFilter{OrderDateGte: &since})
}

// Ping reports whether the database answers.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
