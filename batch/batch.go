// Package batch runs multi-row mutations: bulk customer creation with
// per-row isolation and idempotent low-stock replenishment.
package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/model"
	"crmcore/store"
)

// BulkResult reports a bulk creation. Errors hold one "Row <i>: <message>"
// entry per rejected row, with i counted from 0.
type BulkResult struct {
	Customers []model.Customer `json:"customers"`
	Errors    []string         `json:"errors"`
	Success   bool             `json:"success"`
}

// Coordinator runs batch mutations against a store.
type Coordinator struct {
	store *store.Store
	log   *zap.Logger
}

// New returns a Coordinator. A nil log discards output.
func New(s *store.Store, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: s, log: log.Named("batch")}
}

// BulkCreateCustomers creates the rows in input order. Each row commits on its
// own, so a failing row never undoes the others and a later row sees the
// emails of earlier ones.
func (c *Coordinator) BulkCreateCustomers(ctx context.Context, rows []store.CustomerInput) BulkResult {
	res := BulkResult{Customers: []model.Customer{}, Errors: []string{}}
	for i, in := range rows {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %s", i, err))
			continue
		}
		cust, err := c.store.CreateCustomer(ctx, in)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %s", i, err))
			continue
		}
		res.Customers = append(res.Customers, *cust)
	}
	res.Success = len(res.Errors) == 0
	c.log.Info("bulk customer create finished",
		zap.Int("rows", len(rows)), zap.Int("created", len(res.Customers)), zap.Int("failed", len(res.Errors)))
	return res
}

const replenishKey = "replenish"

// ReplenishLowStock adds model.ReplenishAmount to every product whose stock is
// below model.LowStockThreshold and returns the updated products ordered by
// name. The whole pass is one transaction; products at or above the threshold
// are never touched, so a second call right after the first updates nothing.
func (c *Coordinator) ReplenishLowStock(ctx context.Context) ([]model.Product, error) {
	var updated []model.Product
	u := c.store.Unit()
	u.Serialize(replenishKey)
	u.Do(func(tx *gorm.DB) error {
		if err := tx.Where("stock < ?", model.LowStockThreshold).Order("name").Order("id").Find(&updated).Error; err != nil {
			return fmt.Errorf("select low stock products: %w", err)
		}
		if len(updated) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(updated))
		for i := range updated {
			ids = append(ids, updated[i].ID)
		}
		now := tx.NowFunc()
		if err := tx.Model(&model.Product{}).
			Where("id IN ? AND stock < ?", ids, model.LowStockThreshold).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock + ?", model.ReplenishAmount),
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("replenish stock: %w", err)
		}
		for i := range updated {
			updated[i].Stock += model.ReplenishAmount
			updated[i].UpdatedAt = now
		}
		return nil
	})
	u.AfterCommit(func() {
		for _, p := range updated {
			c.log.Info("product replenished", zap.String("name", p.Name), zap.Int("stock", p.Stock))
		}
	})
	if err := u.Commit(ctx); err != nil {
		return nil, err
	}
	if updated == nil {
		updated = []model.Product{}
	}
	return updated, nil
}
