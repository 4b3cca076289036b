package filter

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"crmcore/model"
)

// Query is a validated filter: criteria joined by AND plus a sort order.
type Query struct {
	Criteria []Criterion
	Sort     []SortKey
}

// Scope returns the query as a GORM scope.
func (q Query) Scope() func(*gorm.DB) *gorm.DB { return Compose(q.Criteria, q.Sort) }

// CustomerFilter selects customers. Empty fields impose no constraint.
type CustomerFilter struct {
	CreatedAtGte   *time.Time `json:"createdAtGte,omitempty"`
	CreatedAtLte   *time.Time `json:"createdAtLte,omitempty"`
	Name           string     `json:"name,omitempty"`
	NameIcontains  string     `json:"nameIcontains,omitempty"`
	Email          string     `json:"email,omitempty"`
	EmailIcontains string     `json:"emailIcontains,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	PhoneIcontains string     `json:"phoneIcontains,omitempty"`
	PhonePattern   string     `json:"phonePattern,omitempty"`
	OrderBy        string     `json:"orderBy,omitempty"`
}

// Query validates f and builds its criteria.
func (f CustomerFilter) Query() (Query, error) {
	if err := timeRange("createdAt", f.CreatedAtGte, f.CreatedAtLte); err != nil {
		return Query{}, err
	}
	keys, err := customerSort.parse(f.OrderBy)
	if err != nil {
		return Query{}, err
	}

	var cs []Criterion
	cs = appendEquals(cs, "customers.name", f.Name)
	cs = appendContains(cs, "customers.name", f.NameIcontains)
	cs = appendEquals(cs, "customers.email", f.Email)
	cs = appendContains(cs, "customers.email", f.EmailIcontains)
	cs = appendEquals(cs, "customers.phone", f.Phone)
	cs = appendContains(cs, "customers.phone", f.PhoneIcontains)
	if f.PhonePattern != "" {
		cs = append(cs, StringPrefix{Column: "customers.phone", Value: f.PhonePattern})
	}
	if f.CreatedAtGte != nil || f.CreatedAtLte != nil {
		cs = append(cs, TimeBound{Column: "customers.created_at", Gte: f.CreatedAtGte, Lte: f.CreatedAtLte})
	}
	return Query{Criteria: cs, Sort: keys}, nil
}

// ProductFilter selects products.
type ProductFilter struct {
	Price         *decimal.Decimal `json:"price,omitempty"`
	PriceGte      *decimal.Decimal `json:"priceGte,omitempty"`
	PriceLte      *decimal.Decimal `json:"priceLte,omitempty"`
	Stock         *int             `json:"stock,omitempty"`
	StockGte      *int             `json:"stockGte,omitempty"`
	StockLte      *int             `json:"stockLte,omitempty"`
	Name          string           `json:"name,omitempty"`
	NameIcontains string           `json:"nameIcontains,omitempty"`
	OrderBy       string           `json:"orderBy,omitempty"`
	LowStock      bool             `json:"lowStock,omitempty"`
}

// Query validates f and builds its criteria.
func (f ProductFilter) Query() (Query, error) {
	if err := decimalRange("price", f.PriceGte, f.PriceLte); err != nil {
		return Query{}, err
	}
	for _, b := range []struct {
		field string
		v     *int
	}{{"stock", f.Stock}, {"stockGte", f.StockGte}, {"stockLte", f.StockLte}} {
		if b.v != nil && *b.v < 0 {
			return Query{}, model.Invalid(b.field, "must be >= 0, got %d", *b.v)
		}
	}
	if f.StockGte != nil && f.StockLte != nil && *f.StockGte > *f.StockLte {
		return Query{}, model.Invalid("stockGte", "must not exceed stockLte (%d > %d)", *f.StockGte, *f.StockLte)
	}
	keys, err := productSort.parse(f.OrderBy)
	if err != nil {
		return Query{}, err
	}

	var cs []Criterion
	cs = appendEquals(cs, "products.name", f.Name)
	cs = appendContains(cs, "products.name", f.NameIcontains)
	if f.Price != nil {
		cs = append(cs, DecimalEquals{Column: "products.price", Value: *f.Price})
	}
	if f.PriceGte != nil || f.PriceLte != nil {
		cs = append(cs, DecimalBound{Column: "products.price", Gte: f.PriceGte, Lte: f.PriceLte})
	}
	if f.Stock != nil {
		cs = append(cs, IntEquals{Column: "products.stock", Value: *f.Stock})
	}
	if f.StockGte != nil || f.StockLte != nil {
		cs = append(cs, IntBound{Column: "products.stock", Gte: f.StockGte, Lte: f.StockLte})
	}
	if f.LowStock {
		cs = append(cs, LowStock{})
	}
	return Query{Criteria: cs, Sort: keys}, nil
}

// OrderFilter selects orders. Customer and ProductID are UUID strings.
type OrderFilter struct {
	TotalAmount    *decimal.Decimal `json:"totalAmount,omitempty"`
	TotalAmountGte *decimal.Decimal `json:"totalAmountGte,omitempty"`
	TotalAmountLte *decimal.Decimal `json:"totalAmountLte,omitempty"`
	OrderDateGte   *time.Time       `json:"orderDateGte,omitempty"`
	OrderDateLte   *time.Time       `json:"orderDateLte,omitempty"`
	Customer       string           `json:"customer,omitempty"`
	CustomerName   string           `json:"customerName,omitempty"`
	ProductName    string           `json:"productName,omitempty"`
	ProductID      string           `json:"productId,omitempty"`
	Status         string           `json:"status,omitempty"`
	OrderBy        string           `json:"orderBy,omitempty"`
}

// Query validates f and builds its criteria.
func (f OrderFilter) Query() (Query, error) {
	if err := decimalRange("totalAmount", f.TotalAmountGte, f.TotalAmountLte); err != nil {
		return Query{}, err
	}
	if err := timeRange("orderDate", f.OrderDateGte, f.OrderDateLte); err != nil {
		return Query{}, err
	}
	customerID, err := parseID("customer", f.Customer)
	if err != nil {
		return Query{}, err
	}
	productID, err := parseID("productId", f.ProductID)
	if err != nil {
		return Query{}, err
	}
	var status model.OrderStatus
	if f.Status != "" {
		if status, err = model.ParseOrderStatus(strings.ToLower(f.Status)); err != nil {
			return Query{}, err
		}
	}
	keys, err := orderSort.parse(f.OrderBy)
	if err != nil {
		return Query{}, err
	}

	var cs []Criterion
	if f.TotalAmount != nil {
		cs = append(cs, DecimalEquals{Column: "orders.total_amount", Value: *f.TotalAmount})
	}
	if f.TotalAmountGte != nil || f.TotalAmountLte != nil {
		cs = append(cs, DecimalBound{Column: "orders.total_amount", Gte: f.TotalAmountGte, Lte: f.TotalAmountLte})
	}
	if f.OrderDateGte != nil || f.OrderDateLte != nil {
		cs = append(cs, TimeBound{Column: "orders.order_date", Gte: f.OrderDateGte, Lte: f.OrderDateLte})
	}
	if customerID != uuid.Nil {
		cs = append(cs, CustomerEquals{ID: customerID})
	}
	if f.CustomerName != "" {
		cs = append(cs, CustomerNameContains{Value: f.CustomerName})
	}
	if f.ProductName != "" {
		cs = append(cs, ItemProductNameContains{Value: f.ProductName})
	}
	if productID != uuid.Nil {
		cs = append(cs, ItemProductEquals{ID: productID})
	}
	if status != "" {
		cs = append(cs, StatusEquals{Status: status})
	}
	return Query{Criteria: cs, Sort: keys}, nil
}

func appendEquals(cs []Criterion, col, v string) []Criterion {
	if v == "" {
		return cs
	}
	return append(cs, StringEquals{Column: col, Value: v})
}

func appendContains(cs []Criterion, col, v string) []Criterion {
	if v == "" {
		return cs
	}
	return append(cs, StringContains{Column: col, Value: v})
}

func decimalRange(field string, gte, lte *decimal.Decimal) error {
	if gte != nil && lte != nil && gte.GreaterThan(*lte) {
		return model.Invalid(field+"Gte", "must not exceed %sLte (%s > %s)", field, gte, lte)
	}
	return nil
}

func timeRange(field string, gte, lte *time.Time) error {
	if gte != nil && lte != nil && gte.After(*lte) {
		return model.Invalid(field+"Gte", "must not be after %sLte", field)
	}
	return nil
}

func parseID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, model.Invalid(field, "malformed id %q", s)
	}
	return id, nil
}

// DecodeCustomerFilter reads a CustomerFilter from JSON. Unknown keys are
// rejected; an empty body is an empty filter.
func DecodeCustomerFilter(r io.Reader) (CustomerFilter, error) {
	var f CustomerFilter
	err := decode(r, &f)
	return f, err
}

// DecodeProductFilter reads a ProductFilter from JSON.
func DecodeProductFilter(r io.Reader) (ProductFilter, error) {
	var f ProductFilter
	err := decode(r, &f)
	return f, err
}

// DecodeOrderFilter reads an OrderFilter from JSON.
func DecodeOrderFilter(r io.Reader) (OrderFilter, error) {
	var f OrderFilter
	err := decode(r, &f)
	return f, err
}

func decode(r io.Reader, into any) error {
	if r == nil {
		return nil
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return model.Invalid("filter", "unknown filter key %s", name)
		}
		return model.Invalid("filter", "%s", err.Error())
	}
	return nil
}
