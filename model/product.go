package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// LowStockThreshold is the stock level below which a product counts as low on stock.
	LowStockThreshold = 10
	// ReplenishAmount is added to every low-stock product on each replenishment run.
	ReplenishAmount = 10
)

// Product is a sellable item. Price is strictly positive and Stock never negative.
type Product struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string          `gorm:"size:200;not null"           json:"name"`
	Price decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock int             `gorm:"not null;default:0"          json:"stock"`

	ID uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
}

// LowStock reports whether p is eligible for replenishment.
func (p Product) LowStock() bool { return p.Stock < LowStockThreshold }

func (p Product) String() string { return p.Name + " - $" + p.Price.StringFixed(2) }
