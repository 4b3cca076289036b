package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/model"
	"crmcore/validate"
)

// ProductInput carries the fields of a new product. Stock defaults to 0.
type ProductInput struct {
	Name  string          `json:"name"  validate:"required,max=200"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Validate checks name, price > 0 and stock >= 0, in that order.
func (in ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := validate.Price("price", in.Price); err != nil {
		return err
	}
	return validate.Stock(in.Stock)
}

// ProductUpdate changes the non-nil fields of a product. Existing order
// items keep the unit price they were created with.
type ProductUpdate struct {
	Name  *string          `json:"name,omitempty"  validate:"omitempty,min=1,max=200"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

// Validate checks the supplied fields.
func (up ProductUpdate) Validate() error {
	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Price != nil {
		if err := validate.Price("price", *up.Price); err != nil {
			return err
		}
	}
	if up.Stock != nil {
		return validate.Stock(*up.Stock)
	}
	return nil
}

// CreateProduct validates in and inserts the product.
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &model.Product{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(in.Name),
		Price: in.Price,
		Stock: in.Stock,
	}
	u := s.Unit()
	u.Add(p)
	u.AfterCommit(func() {
		s.log.Info("product created", zap.Stringer("id", p.ID), zap.String("name", p.Name),
			zap.Stringer("price", p.Price), zap.Int("stock", p.Stock))
	})
	if err := u.Commit(ctx); err != nil {
		return nil, translate("product", err)
	}
	return p, nil
}

// GetProduct loads one product.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := first(s.db.WithContext(ctx), &p, "product", id); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct applies the non-nil fields of up.
func (s *Store) UpdateProduct(ctx context.Context, id uuid.UUID, up ProductUpdate) (*model.Product, error) {
	if err := up.Validate(); err != nil {
		return nil, err
	}
	var p model.Product
	u := s.Unit()
	u.Serialize("product:" + id.String())
	u.Do(func(tx *gorm.DB) error {
		if err := first(tx, &p, "product", id); err != nil {
			return err
		}
		if up.Name != nil {
			p.Name = strings.TrimSpace(*up.Name)
		}
		if up.Price != nil {
			p.Price = *up.Price
		}
		if up.Stock != nil {
			p.Stock = *up.Stock
		}
		return tx.Save(&p).Error
	})
	if err := u.Commit(ctx); err != nil {
		return nil, translate("product", err)
	}
	return &p, nil
}

// DeleteProduct removes a product. Products still referenced by an order
// item are kept and a *model.ConflictError is returned.
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	u := s.Unit()
	u.Serialize("product:" + id.String())
	u.Do(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Product{}, "product", id); err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&model.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return &model.ConflictError{
				Entity:  "product",
				Message: "product " + id.String() + " is referenced by existing order items",
			}
		}
		return tx.Delete(&model.Product{ID: id}).Error
	})
	u.AfterCommit(func() { s.log.Info("product deleted", zap.Stringer("id", id)) })
	return translate("product", u.Commit(ctx))
}

// ListProducts returns the products selected by scopes.
func (s *Store) ListProducts(ctx context.Context, scopes ...Scope) ([]model.Product, error) {
	var out []model.Product
	if err := apply(s.db.WithContext(ctx).Model(&model.Product{}), scopes).Find(&out).Error; err != nil {
		return nil, translate("product", err)
	}
	return out, nil
}
