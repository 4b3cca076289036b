// Package aggregate keeps Order.TotalAmount equal to the sum of its item
// subtotals. Callers run it inside the same transaction as the item write.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crmcore/model"
)

// Sum returns Σ quantity × unit_price over items. No items sum to zero.
func Sum(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// SnapshotPrice fills item.UnitPrice from the product's current price when
// the caller did not supply one.
func SnapshotPrice(tx *gorm.DB, item *model.OrderItem) error {
	var p model.Product
	if err := tx.Select("id", "price").First(&p, "id = ?", item.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.NotFoundError{Entity: "product", ID: item.ProductID.String()}
		}
		return fmt.Errorf("load product %s: %w", item.ProductID, err)
	}
	if item.UnitPrice.IsZero() {
		item.UnitPrice = p.Price
	}
	return nil
}

// Recompute reloads every item of the order, sums their subtotals and
// persists the result as the order's total. It returns the new total.
func Recompute(tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error) {
	var items []model.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return decimal.Zero, fmt.Errorf("load items of order %s: %w", orderID, err)
	}
	total := Sum(items)

	res := tx.Model(&model.Order{}).Where("id = ?", orderID).
		Updates(map[string]any{"total_amount": total, "updated_at": tx.NowFunc()})
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("persist total of order %s: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, &model.NotFoundError{Entity: "order", ID: orderID.String()}
	}
	return total, nil
}
