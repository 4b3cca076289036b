package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crmcore/db"
	"crmcore/model"
)

func setup(t *testing.T) (*gorm.DB, *model.Order, *model.Product) {
	t.Helper()
	gdb, closeFn, err := db.Open(context.Background(), db.MemoryDSN(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	c := &model.Customer{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"}
	p := &model.Product{ID: uuid.New(), Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 10}
	o := &model.Order{ID: uuid.New(), CustomerID: c.ID, OrderDate: time.Now().UTC(), Status: model.StatusPending}
	require.NoError(t, gdb.Create(c).Error)
	require.NoError(t, gdb.Create(p).Error)
	require.NoError(t, gdb.Create(o).Error)
	return gdb, o, p
}

func totalOf(t *testing.T, gdb *gorm.DB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var o model.Order
	require.NoError(t, gdb.First(&o, "id = ?", id).Error)
	return o.TotalAmount
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(nil).IsZero())
	items := []model.OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("0.25")},
	}
	assert.Equal(t, "21.25", Sum(items).StringFixed(2))
}

func TestRecomputeEmptyOrder(t *testing.T) {
	gdb, o, _ := setup(t)
	total, err := Recompute(gdb, o.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.True(t, totalOf(t, gdb, o.ID).IsZero())
}

func TestRecomputeSumsItems(t *testing.T) {
	gdb, o, p := setup(t)
	other := &model.Product{ID: uuid.New(), Name: "Mouse", Price: decimal.RequireFromString("20"), Stock: 3}
	require.NoError(t, gdb.Create(other).Error)

	err := gdb.Transaction(func(tx *gorm.DB) error {
		for _, it := range []*model.OrderItem{
			{ID: uuid.New(), OrderID: o.ID, ProductID: p.ID, Quantity: 1},
			{ID: uuid.New(), OrderID: o.ID, ProductID: other.ID, Quantity: 3, UnitPrice: decimal.RequireFromString("15")},
		} {
			if err := SnapshotPrice(tx, it); err != nil {
				return err
			}
			if err := tx.Create(it).Error; err != nil {
				return err
			}
		}
		_, err := Recompute(tx, o.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "1044.99", totalOf(t, gdb, o.ID).StringFixed(2))
}

func TestSnapshotPriceUnknownProduct(t *testing.T) {
	gdb, o, _ := setup(t)
	err := SnapshotPrice(gdb, &model.OrderItem{OrderID: o.ID, ProductID: uuid.New(), Quantity: 1})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSnapshotPriceKeepsExplicitPrice(t *testing.T) {
	gdb, o, p := setup(t)
	item := &model.OrderItem{OrderID: o.ID, ProductID: p.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}
	require.NoError(t, SnapshotPrice(gdb, item))
	assert.Equal(t, "1", item.UnitPrice.String())
}

func TestRecomputeUnknownOrder(t *testing.T) {
	gdb, _, _ := setup(t)
	_, err := Recompute(gdb, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
