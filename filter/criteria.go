// Package filter turns ad-hoc filter inputs into one conjunctive predicate
// plus a validated sort order, applied to GORM queries as a scope.
package filter

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crmcore/model"
)

// Criterion is one predicate of a conjunction. The set of implementations is
// closed; Column values are trusted identifiers set by this package.
type Criterion interface {
	apply(q *gorm.DB) *gorm.DB
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern lowercases v and wraps it for a LIKE match.
func containsPattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
}

// StringEquals matches Column = Value exactly.
type StringEquals struct {
	Column string
	Value  string
}

func (c StringEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where(c.Column+" = ?", c.Value)
}

// StringContains matches Value anywhere in Column, ignoring case.
type StringContains struct {
	Column string
	Value  string
}

func (c StringContains) apply(q *gorm.DB) *gorm.DB {
	return q.Where("LOWER("+c.Column+`) LIKE ? ESCAPE '\'`, containsPattern(c.Value))
}

// StringPrefix matches columns starting with Value. Case-sensitive.
type StringPrefix struct {
	Column string
	Value  string
}

func (c StringPrefix) apply(q *gorm.DB) *gorm.DB {
	return q.Where("substr("+c.Column+", 1, ?) = ?", utf8.RuneCountInString(c.Value), c.Value)
}

// DecimalBound is an inclusive range; a nil end is open.
type DecimalBound struct {
	Column string
	Gte    *decimal.Decimal
	Lte    *decimal.Decimal
}

func (c DecimalBound) apply(q *gorm.DB) *gorm.DB {
	if c.Gte != nil {
		q = q.Where(c.Column+" >= ?", *c.Gte)
	}
	if c.Lte != nil {
		q = q.Where(c.Column+" <= ?", *c.Lte)
	}
	return q
}

// DecimalEquals matches an exact amount.
type DecimalEquals struct {
	Column string
	Value  decimal.Decimal
}

func (c DecimalEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where(c.Column+" = ?", c.Value)
}

// IntBound is an inclusive integer range.
type IntBound struct {
	Column string
	Gte    *int
	Lte    *int
}

func (c IntBound) apply(q *gorm.DB) *gorm.DB {
	if c.Gte != nil {
		q = q.Where(c.Column+" >= ?", *c.Gte)
	}
	if c.Lte != nil {
		q = q.Where(c.Column+" <= ?", *c.Lte)
	}
	return q
}

// IntEquals matches an exact integer.
type IntEquals struct {
	Column string
	Value  int
}

func (c IntEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where(c.Column+" = ?", c.Value)
}

// TimeBound is an inclusive time range. Bounds are compared in UTC, the
// zone every timestamp is stored in.
type TimeBound struct {
	Column string
	Gte    *time.Time
	Lte    *time.Time
}

func (c TimeBound) apply(q *gorm.DB) *gorm.DB {
	if c.Gte != nil {
		q = q.Where(c.Column+" >= ?", c.Gte.UTC())
	}
	if c.Lte != nil {
		q = q.Where(c.Column+" <= ?", c.Lte.UTC())
	}
	return q
}

// LowStock matches products below model.LowStockThreshold.
type LowStock struct{}

func (LowStock) apply(q *gorm.DB) *gorm.DB {
	return q.Where("products.stock < ?", model.LowStockThreshold)
}

// StatusEquals matches orders in one lifecycle state.
type StatusEquals struct {
	Status model.OrderStatus
}

func (c StatusEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where("orders.status = ?", c.Status)
}

// CustomerEquals matches orders placed by one customer.
type CustomerEquals struct {
	ID uuid.UUID
}

func (c CustomerEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where("orders.customer_id = ?", c.ID)
}

// CustomerNameContains matches orders whose customer's name contains Value.
type CustomerNameContains struct {
	Value string
}

func (c CustomerNameContains) apply(q *gorm.DB) *gorm.DB {
	return q.Where(`EXISTS (SELECT 1 FROM customers c WHERE c.id = orders.customer_id AND LOWER(c.name) LIKE ? ESCAPE '\')`,
		containsPattern(c.Value))
}

// ItemProductNameContains matches orders holding at least one item whose
// product name contains Value. Each order is returned once.
type ItemProductNameContains struct {
	Value string
}

func (c ItemProductNameContains) apply(q *gorm.DB) *gorm.DB {
	return q.Where(`EXISTS (SELECT 1 FROM order_items oi JOIN products p ON p.id = oi.product_id `+
		`WHERE oi.order_id = orders.id AND LOWER(p.name) LIKE ? ESCAPE '\')`, containsPattern(c.Value))
}

// ItemProductEquals matches orders holding an item of one product.
type ItemProductEquals struct {
	ID uuid.UUID
}

func (c ItemProductEquals) apply(q *gorm.DB) *gorm.DB {
	return q.Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.product_id = ?)", c.ID)
}
