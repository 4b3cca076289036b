package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crmcore/service"
	"crmcore/store"
)

func strPtr(s string) *string { return &s }

var (
	seedCustomers = []store.CustomerInput{
		{Name: "Alice", Email: "alice@example.com", Phone: strPtr("+1234567890")},
		{Name: "Bob", Email: "bob@example.com", Phone: strPtr("123-456-7890")},
		{Name: "Carol", Email: "carol@example.com"},
	}
	seedProducts = []store.ProductInput{
		{Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 10},
		{Name: "Smartphone", Price: decimal.RequireFromString("499.99"), Stock: 20},
		{Name: "Headphones", Price: decimal.RequireFromString("149.99"), Stock: 50},
	}
)

// seed loads the sample data set. A database that already has customers is
// left alone.
func seed(ctx context.Context, svc *service.Service, log *zap.Logger) error {
	n, err := svc.Store().CountCustomers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("database already has data, skipping seed", zap.Int64("customers", n))
		return nil
	}

	res := svc.BulkCreateCustomers(ctx, seedCustomers)
	if !res.Success {
		return fmt.Errorf("seed customers: %v", res.Errors)
	}
	productIDs := make(map[string]string, len(seedProducts))
	for _, in := range seedProducts {
		p := svc.CreateProduct(ctx, in)
		if !p.Success {
			return fmt.Errorf("seed product %s: %s", in.Name, p.Message)
		}
		productIDs[p.Product.Name] = p.Product.ID.String()
	}

	o := svc.CreateOrder(ctx, service.CreateOrderInput{
		CustomerID: res.Customers[0].ID.String(),
		ProductIDs: []string{productIDs["Laptop"], productIDs["Headphones"]},
	})
	if !o.Success {
		return fmt.Errorf("seed order: %s", o.Message)
	}
	log.Info("database seeded",
		zap.Int("customers", len(res.Customers)),
		zap.Int("products", len(productIDs)),
		zap.Stringer("sample_order_total", o.Order.TotalAmount))
	return nil
}
