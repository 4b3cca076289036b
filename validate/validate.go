// Package validate holds the explicit validators that run before any write
// reaches the database.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"crmcore/model"
)

var (
	// +<9..15 digits> or NNN-NNN-NNNN.
	intlPhoneRe  = regexp.MustCompile(`^\+\d{9,15}$`)
	localPhoneRe = regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`)
)

var (
	once sync.Once
	v    *validator.Validate
)

// Validator returns the shared validator with the "phone" tag registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		// An empty phone means "no phone".
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || PhoneValid(s)
		})
	})
	return v
}

// PhoneValid reports whether s matches one of the accepted phone formats.
func PhoneValid(s string) bool {
	return intlPhoneRe.MatchString(s) || localPhoneRe.MatchString(s)
}

// Price requires p > 0 with at most two decimal places.
func Price(field string, p decimal.Decimal) error {
	if !p.IsPositive() {
		return model.Invalid(field, "must be positive, got %s", p.String())
	}
	return cents(field, p)
}

// UnitPrice requires p >= 0. Zero asks for the product's current price.
func UnitPrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return model.Invalid("unit_price", "cannot be negative, got %s", p.String())
	}
	return cents("unit_price", p)
}

func cents(field string, p decimal.Decimal) error {
	if !p.Equal(p.Truncate(2)) {
		return model.Invalid(field, "must have at most 2 decimal places, got %s", p.String())
	}
	return nil
}

// Stock requires n >= 0.
func Stock(n int) error {
	if n < 0 {
		return model.Invalid("stock", "cannot be negative, got %d", n)
	}
	return nil
}

// Quantity requires n >= 1.
func Quantity(n int) error {
	if n < 1 {
		return model.Invalid("quantity", "must be at least 1, got %d", n)
	}
	return nil
}

// Struct runs the struct-tag rules of s and converts the first failure
// into a *model.ValidationError.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &model.ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "invalid email format"
	case "phone":
		return fmt.Sprintf("invalid phone format %q: use '+1234567890' or '123-456-7890'", fe.Value())
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed rule " + fe.Tag()
	}
}
