package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a customer with one-to-many Orders.
// Deleting a customer deletes its orders and their items.
type Customer struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Phone *string `gorm:"size:20"                       json:"phone,omitempty"`
	Name  string  `gorm:"size:200;not null"             json:"name"`
	Email string  `gorm:"size:255;uniqueIndex;not null" json:"email"`

	Orders []Order   `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"orders,omitempty"`
	ID     uuid.UUID `gorm:"type:char(36);primaryKey"                          json:"id"`
}

func (c Customer) String() string { return c.Name + " (" + c.Email + ")" }
