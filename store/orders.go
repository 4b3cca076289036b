package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/aggregate"
	"crmcore/model"
	"crmcore/validate"
)

// ItemInput describes one order line. A nil UnitPrice snapshots the
// product's current price.
type ItemInput struct {
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	ProductID uuid.UUID        `json:"product_id"`
	Quantity  int              `json:"quantity"`
}

// Validate checks quantity >= 1 and, when given, unit price >= 0.
// A zero unit price is filled from the product like a missing one.
func (in ItemInput) Validate() error {
	if in.ProductID == uuid.Nil {
		return model.Invalid("product_id", "is required")
	}
	if err := validate.Quantity(in.Quantity); err != nil {
		return err
	}
	if in.UnitPrice != nil {
		return validate.UnitPrice(*in.UnitPrice)
	}
	return nil
}

func (in ItemInput) item(orderID uuid.UUID) *model.OrderItem {
	it := &model.OrderItem{ID: uuid.New(), OrderID: orderID, ProductID: in.ProductID, Quantity: in.Quantity}
	if in.UnitPrice != nil {
		it.UnitPrice = *in.UnitPrice
	}
	return it
}

// ItemUpdate changes the quantity and/or unit price of an existing line.
type ItemUpdate struct {
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
}

// OrderInput describes a new order. Items may be empty; the order then
// starts with a zero total and is filled through AddItem.
type OrderInput struct {
	OrderDate  *time.Time        `json:"order_date,omitempty"`
	Status     model.OrderStatus `json:"status,omitempty"`
	Items      []ItemInput       `json:"items"`
	CustomerID uuid.UUID         `json:"customer_id"`
}

// Validate checks every item and rejects a product listed twice.
func (in OrderInput) Validate() error {
	if in.CustomerID == uuid.Nil {
		return model.Invalid("customer_id", "is required")
	}
	if in.Status != "" {
		if _, err := model.ParseOrderStatus(string(in.Status)); err != nil {
			return err
		}
	}
	seen := make(map[uuid.UUID]struct{}, len(in.Items))
	for i, it := range in.Items {
		if err := it.Validate(); err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				return model.Invalid(fmt.Sprintf("items[%d].%s", i, verr.Field), "%s", verr.Message)
			}
			return err
		}
		if _, dup := seen[it.ProductID]; dup {
			return duplicateItem(it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

func duplicateItem(productID uuid.UUID) error {
	return &model.ConflictError{
		Entity: "order item", Field: "product_id", Value: productID.String(),
		Message: "product " + productID.String() + " already appears in this order",
	}
}

// loadOrder reads an order with its customer and items (with products).
func loadOrder(tx *gorm.DB, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := tx.Preload("Customer").
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("order_items.id") }).
		Preload("Items.Product").
		First(&o, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.NotFoundError{Entity: "order", ID: id.String()}
		}
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &o, nil
}

// writeItem is the single path every new line takes: snapshot the price,
// persist the item, recompute the parent total.
func writeItem(tx *gorm.DB, it *model.OrderItem) error {
	if err := aggregate.SnapshotPrice(tx, it); err != nil {
		return err
	}
	var dup int64
	if err := tx.Model(&model.OrderItem{}).
		Where("order_id = ? AND product_id = ?", it.OrderID, it.ProductID).
		Count(&dup).Error; err != nil {
		return err
	}
	if dup > 0 {
		return duplicateItem(it.ProductID)
	}
	if err := tx.Create(it).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return duplicateItem(it.ProductID)
		}
		return err
	}
	return nil
}

// CreateOrder inserts an order and its items and sets the total, all in one
// transaction. An unknown customer or product leaves nothing behind.
func (s *Store) CreateOrder(ctx context.Context, in OrderInput) (*model.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	o := &model.Order{
		ID:         uuid.New(),
		CustomerID: in.CustomerID,
		OrderDate:  s.now(),
		Status:     model.StatusPending,
	}
	if in.OrderDate != nil {
		o.OrderDate = in.OrderDate.UTC()
	}
	if in.Status != "" {
		o.Status = in.Status
	}

	var out *model.Order
	u := s.Unit()
	u.Serialize(orderKey(o.ID))
	u.Do(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Customer{}, "customer", in.CustomerID); err != nil {
			return err
		}
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		for _, itIn := range in.Items {
			if err := writeItem(tx, itIn.item(o.ID)); err != nil {
				return err
			}
		}
		if _, err := aggregate.Recompute(tx, o.ID); err != nil {
			return err
		}
		var err error
		out, err = loadOrder(tx, o.ID)
		return err
	})
	u.AfterCommit(func() {
		s.log.Info("order created", zap.Stringer("id", o.ID), zap.Stringer("customer_id", o.CustomerID),
			zap.Int("items", len(out.Items)), zap.Stringer("total", out.TotalAmount))
	})
	if err := u.Commit(ctx); err != nil {
		return nil, translate("order", err)
	}
	return out, nil
}

// GetOrder loads an order with its customer and items.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return loadOrder(s.db.WithContext(ctx), id)
}

// mutateOrder runs fn and the total recompute under the order's lock, then
// returns the reloaded order.
func (s *Store) mutateOrder(ctx context.Context, orderID uuid.UUID, fn func(tx *gorm.DB) error) (*model.Order, error) {
	var out *model.Order
	u := s.Unit()
	u.Serialize(orderKey(orderID))
	u.Do(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Order{}, "order", orderID); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		if _, err := aggregate.Recompute(tx, orderID); err != nil {
			return err
		}
		var err error
		out, err = loadOrder(tx, orderID)
		return err
	})
	if err := u.Commit(ctx); err != nil {
		return nil, translate("order item", err)
	}
	s.log.Debug("order total recomputed", zap.Stringer("order_id", orderID), zap.Stringer("total", out.TotalAmount))
	return out, nil
}

// AddItem adds a line to an existing order and recomputes its total.
func (s *Store) AddItem(ctx context.Context, orderID uuid.UUID, in ItemInput) (*model.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.mutateOrder(ctx, orderID, func(tx *gorm.DB) error {
		return writeItem(tx, in.item(orderID))
	})
}

// UpdateItem changes a line's quantity or unit price and recomputes the total.
// A zero unit price re-snapshots the product's current price.
func (s *Store) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, up ItemUpdate) (*model.Order, error) {
	if up.Quantity != nil {
		if err := validate.Quantity(*up.Quantity); err != nil {
			return nil, err
		}
	}
	if up.UnitPrice != nil {
		if err := validate.UnitPrice(*up.UnitPrice); err != nil {
			return nil, err
		}
	}
	return s.mutateOrder(ctx, orderID, func(tx *gorm.DB) error {
		var it model.OrderItem
		if err := tx.First(&it, "id = ? AND order_id = ?", itemID, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &model.NotFoundError{Entity: "order item", ID: itemID.String()}
			}
			return err
		}
		if up.Quantity != nil {
			it.Quantity = *up.Quantity
		}
		if up.UnitPrice != nil {
			it.UnitPrice = *up.UnitPrice
			if err := aggregate.SnapshotPrice(tx, &it); err != nil {
				return err
			}
		}
		return tx.Omit("Product").Save(&it).Error
	})
}

// RemoveItem deletes a line and recomputes the total. Removing the last
// line leaves an order with a zero total.
func (s *Store) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) (*model.Order, error) {
	return s.mutateOrder(ctx, orderID, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND order_id = ?", itemID, orderID).Delete(&model.OrderItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &model.NotFoundError{Entity: "order item", ID: itemID.String()}
		}
		return nil
	})
}

// UpdateOrderStatus moves an order along its lifecycle. Backward moves and
// moves out of delivered or cancelled are rejected.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, next model.OrderStatus) (*model.Order, error) {
	if _, err := model.ParseOrderStatus(string(next)); err != nil {
		return nil, err
	}
	var out *model.Order
	u := s.Unit()
	u.Serialize(orderKey(id))
	u.Do(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, id)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(next) {
			return model.Invalid("status", "cannot move order from %s to %s", o.Status, next)
		}
		if o.Status != next {
			if err := tx.Model(&model.Order{}).Where("id = ?", id).
				Updates(map[string]any{"status": next, "updated_at": tx.NowFunc()}).Error; err != nil {
				return err
			}
			o.Status = next
		}
		out = o
		return nil
	})
	if err := u.Commit(ctx); err != nil {
		return nil, translate("order", err)
	}
	return out, nil
}

// DeleteOrder removes an order and its items.
func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	u := s.Unit()
	u.Serialize(orderKey(id))
	u.Do(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Order{}, "order", id); err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Order{ID: id}).Error
	})
	u.AfterCommit(func() { s.log.Info("order deleted", zap.Stringer("id", id)) })
	return translate("order", u.Commit(ctx))
}

// ListOrders returns the orders selected by scopes with customer and items loaded.
func (s *Store) ListOrders(ctx context.Context, scopes ...Scope) ([]model.Order, error) {
	var out []model.Order
	q := s.db.WithContext(ctx).Model(&model.Order{}).
		Preload("Customer").Preload("Items").Preload("Items.Product")
	if err := apply(q, scopes).Find(&out).Error; err != nil {
		return nil, translate("order", err)
	}
	return out, nil
}

// Revenue returns the number of orders and the sum of their totals.
func (s *Store) Revenue(ctx context.Context) (int64, decimal.Decimal, error) {
	var totals []decimal.Decimal
	if err := s.db.WithContext(ctx).Model(&model.Order{}).Pluck("total_amount", &totals).Error; err != nil {
		return 0, decimal.Zero, translate("order", err)
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return int64(len(totals)), sum, nil
}
