package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents an order placed by a Customer.
// TotalAmount is maintained by the aggregate engine on every item write and
// is never taken from callers.
type Order struct {
	OrderDate time.Time `gorm:"index;not null" json:"order_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Customer *Customer   `gorm:"foreignKey:CustomerID"              json:"customer,omitempty"`
	Status   OrderStatus `gorm:"size:20;not null;default:pending" json:"status"`

	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"`

	Items      []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	ID         uuid.UUID   `gorm:"type:char(36);primaryKey"                       json:"id"`
	CustomerID uuid.UUID   `gorm:"type:char(36);index;not null"                   json:"customer_id"`
}

// OrderItem is a single line of an Order. UnitPrice is the product price
// captured when the item was created.
type OrderItem struct {
	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"product,omitempty"`

	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null;default:1"          json:"quantity"`

	ID        uuid.UUID `gorm:"type:char(36);primaryKey"                                  json:"id"`
	OrderID   uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_order_product"       json:"order_id"`
	ProductID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_order_product;index" json:"product_id"`
}

// Subtotal is Quantity x UnitPrice.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{&Customer{}, &Product{}, &Order{}, &OrderItem{}}
}
