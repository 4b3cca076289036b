package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/model"
	"crmcore/validate"
)

// CustomerInput carries the fields of a new customer.
type CustomerInput struct {
	Phone *string `json:"phone,omitempty" validate:"omitempty,phone"`
	Name  string  `json:"name"            validate:"required,max=200"`
	Email string  `json:"email"           validate:"required,email,max=255"`
}

// Validate runs the customer rules that do not need the database.
func (in CustomerInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	return validate.Struct(in)
}

// CustomerUpdate changes the non-nil fields of a customer.
// An empty Phone clears the stored phone.
type CustomerUpdate struct {
	Name  *string `json:"name,omitempty"  validate:"omitempty,min=1,max=200"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,phone"`
}

func duplicateEmail(email string) error {
	return &model.ConflictError{Entity: "customer", Field: "email", Value: email, Message: "duplicate email: " + email}
}

// emailTaken fails when another customer already uses email. Matching is exact.
func emailTaken(tx *gorm.DB, email string, self uuid.UUID) error {
	var n int64
	q := tx.Model(&model.Customer{}).Where("email = ?", email)
	if self != uuid.Nil {
		q = q.Where("id <> ?", self)
	}
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return duplicateEmail(email)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// CreateCustomer validates in, checks email uniqueness and inserts the customer.
func (s *Store) CreateCustomer(ctx context.Context, in CustomerInput) (*model.Customer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := &model.Customer{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(in.Name),
		Email: in.Email,
		Phone: emptyToNil(in.Phone),
	}

	u := s.Unit()
	u.Serialize("customer-email:" + c.Email)
	u.Do(func(tx *gorm.DB) error {
		if err := emailTaken(tx, c.Email, uuid.Nil); err != nil {
			return err
		}
		return tx.Create(c).Error
	})
	u.AfterCommit(func() {
		s.log.Info("customer created", zap.Stringer("id", c.ID), zap.String("email", c.Email))
	})
	if err := u.Commit(ctx); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, duplicateEmail(c.Email)
		}
		return nil, translate("customer", err)
	}
	return c, nil
}

// GetCustomer loads one customer.
func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	if err := first(s.db.WithContext(ctx), &c, "customer", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCustomer applies the non-nil fields of up.
func (s *Store) UpdateCustomer(ctx context.Context, id uuid.UUID, up CustomerUpdate) (*model.Customer, error) {
	if err := validate.Struct(up); err != nil {
		return nil, err
	}
	var c model.Customer
	u := s.Unit()
	if up.Email != nil {
		u.Serialize("customer-email:" + *up.Email)
	}
	u.Do(func(tx *gorm.DB) error {
		if err := first(tx, &c, "customer", id); err != nil {
			return err
		}
		if up.Name != nil {
			c.Name = strings.TrimSpace(*up.Name)
		}
		if up.Email != nil && *up.Email != c.Email {
			if err := emailTaken(tx, *up.Email, id); err != nil {
				return err
			}
			c.Email = *up.Email
		}
		if up.Phone != nil {
			c.Phone = emptyToNil(up.Phone)
		}
		return tx.Omit("Orders").Save(&c).Error
	})
	if err := u.Commit(ctx); err != nil {
		if up.Email != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, duplicateEmail(*up.Email)
		}
		return nil, translate("customer", err)
	}
	return &c, nil
}

// DeleteCustomer removes the customer together with its orders and their
// items. This cascade is deliberate and destructive.
func (s *Store) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	var removed int64
	u := s.Unit()
	u.Do(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Customer{}, "customer", id); err != nil {
			return err
		}
		orderIDs := tx.Model(&model.Order{}).Select("id").Where("customer_id = ?", id)
		if err := tx.Where("order_id IN (?)", orderIDs).Delete(&model.OrderItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("customer_id = ?", id).Delete(&model.Order{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Delete(&model.Customer{ID: id}).Error
	})
	u.AfterCommit(func() {
		s.log.Info("customer deleted", zap.Stringer("id", id), zap.Int64("orders_removed", removed))
	})
	return translate("customer", u.Commit(ctx))
}

// ListCustomers returns the customers selected by scopes.
func (s *Store) ListCustomers(ctx context.Context, scopes ...Scope) ([]model.Customer, error) {
	var out []model.Customer
	if err := apply(s.db.WithContext(ctx).Model(&model.Customer{}), scopes).Find(&out).Error; err != nil {
		return nil, translate("customer", err)
	}
	return out, nil
}

// CountCustomers returns the number of stored customers.
func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Customer{}).Count(&n).Error; err != nil {
		return 0, translate("customer", err)
	}
	return n, nil
}
