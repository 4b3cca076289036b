package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmcore/aggregate"
	"crmcore/db"
	"crmcore/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	gdb, closeFn, err := db.Open(context.Background(), db.MemoryDSN(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return New(gdb, nil)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func mustCustomer(t *testing.T, s *Store, email string) *model.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), CustomerInput{Name: "Customer " + email, Email: email})
	require.NoError(t, err)
	return c
}

func mustProduct(t *testing.T, s *Store, name, price string, stock int) *model.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), ProductInput{Name: name, Price: dec(price), Stock: stock})
	require.NoError(t, err)
	return p
}

func countRows(t *testing.T, s *Store, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(m).Count(&n).Error)
	return n
}

// assertTotalConsistent checks the stored total against the stored items.
func assertTotalConsistent(t *testing.T, s *Store, orderID uuid.UUID) {
	t.Helper()
	o, err := s.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, aggregate.Sum(o.Items).Equal(o.TotalAmount),
		"total %s != sum of items %s", o.TotalAmount, aggregate.Sum(o.Items))
}

func TestCreateCustomer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, CustomerInput{Name: "Alice", Email: "alice@example.com", Phone: ptr("+1234567890")})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, "+1234567890", *c.Phone)

	_, err = s.CreateCustomer(ctx, CustomerInput{Name: "Alice 2", Email: "alice@example.com"})
	require.ErrorIs(t, err, model.ErrConflict)
	assert.Contains(t, err.Error(), "duplicate email")

	// uniqueness is case-sensitive exact match
	_, err = s.CreateCustomer(ctx, CustomerInput{Name: "Alice 3", Email: "Alice@example.com"})
	require.NoError(t, err)

	_, err = s.CreateCustomer(ctx, CustomerInput{Name: "Bob", Email: "bob@example.com", Phone: ptr("555")})
	require.ErrorIs(t, err, model.ErrValidation)

	noPhone, err := s.CreateCustomer(ctx, CustomerInput{Name: "Carol", Email: "carol@example.com", Phone: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, noPhone.Phone)

	assert.Equal(t, int64(3), countRows(t, s, &model.Customer{}))
}

func TestUpdateCustomer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := mustCustomer(t, s, "a@x.com")
	mustCustomer(t, s, "b@x.com")

	_, err := s.UpdateCustomer(ctx, a.ID, CustomerUpdate{Email: ptr("b@x.com")})
	require.ErrorIs(t, err, model.ErrConflict)

	got, err := s.UpdateCustomer(ctx, a.ID, CustomerUpdate{Name: ptr("Ann"), Phone: ptr("123-456-7890")})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "123-456-7890", *got.Phone)

	got, err = s.UpdateCustomer(ctx, a.ID, CustomerUpdate{Phone: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, got.Phone)

	_, err = s.UpdateCustomer(ctx, uuid.New(), CustomerUpdate{Name: ptr("x")})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateProductValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, ProductInput{Name: "Bad", Price: dec("-1")})
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = s.CreateProduct(ctx, ProductInput{Name: "Bad", Price: dec("1"), Stock: -1})
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = s.CreateProduct(ctx, ProductInput{Name: "Bad", Price: dec("0.005")})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Zero(t, countRows(t, s, &model.Product{}))

	p, err := s.CreateProduct(ctx, ProductInput{Name: "Cheap", Price: dec("0.01"), Stock: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, dec("0.01").Equal(got.Price))
}

func TestCreateOrderComputesTotal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	laptop := mustProduct(t, s, "Laptop", "999.99", 10)
	phones := mustProduct(t, s, "Headphones", "149.99", 50)

	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{
		{ProductID: laptop.ID, Quantity: 1},
		{ProductID: phones.ID, Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, "1299.97", o.TotalAmount.StringFixed(2))
	require.Len(t, o.Items, 2)
	require.NotNil(t, o.Customer)
	assert.Equal(t, c.Email, o.Customer.Email)
	assertTotalConsistent(t, s, o.ID)
}

func TestCreateOrderEmpty(t *testing.T) {
	s := newStore(t)
	c := mustCustomer(t, s, "alice@example.com")

	o, err := s.CreateOrder(context.Background(), OrderInput{CustomerID: c.ID})
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.IsZero())
	assert.Empty(t, o.Items)
}

func TestCreateOrderFailuresPersistNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	p := mustProduct(t, s, "Laptop", "999.99", 10)

	_, err := s.CreateOrder(ctx, OrderInput{CustomerID: uuid.New(), Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.ErrorIs(t, err, model.ErrNotFound)

	// the first item is valid; the second product does not exist
	_, err = s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	}})
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 2},
	}})
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 0}}})
	require.ErrorIs(t, err, model.ErrValidation)

	assert.Zero(t, countRows(t, s, &model.Order{}))
	assert.Zero(t, countRows(t, s, &model.OrderItem{}))
}

func TestItemMutationsKeepTotalConsistent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	a := mustProduct(t, s, "A", "10.00", 5)
	b := mustProduct(t, s, "B", "2.50", 5)

	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID})
	require.NoError(t, err)

	o, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))

	o, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: b.ID, Quantity: 4, UnitPrice: ptr(dec("2.00"))})
	require.NoError(t, err)
	assert.Equal(t, "28.00", o.TotalAmount.StringFixed(2))
	assertTotalConsistent(t, s, o.ID)

	_, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: a.ID, Quantity: 1})
	require.ErrorIs(t, err, model.ErrConflict)

	var itemA uuid.UUID
	for _, it := range o.Items {
		if it.ProductID == a.ID {
			itemA = it.ID
		}
	}
	o, err = s.UpdateItem(ctx, o.ID, itemA, ItemUpdate{Quantity: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, "38.00", o.TotalAmount.StringFixed(2))

	_, err = s.UpdateItem(ctx, o.ID, itemA, ItemUpdate{Quantity: ptr(0)})
	require.ErrorIs(t, err, model.ErrValidation)

	o, err = s.RemoveItem(ctx, o.ID, itemA)
	require.NoError(t, err)
	assert.Equal(t, "8.00", o.TotalAmount.StringFixed(2))
	assertTotalConsistent(t, s, o.ID)

	_, err = s.RemoveItem(ctx, o.ID, itemA)
	require.ErrorIs(t, err, model.ErrNotFound)

	o, err = s.RemoveItem(ctx, o.ID, o.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.IsZero())

	_, err = s.AddItem(ctx, uuid.New(), ItemInput{ProductID: a.ID, Quantity: 1})
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: uuid.New(), Quantity: 1})
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, countRows(t, s, &model.OrderItem{}))
}

func TestSnapshotPriceSurvivesPriceChange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	p := mustProduct(t, s, "Laptop", "100.00", 10)

	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)

	_, err = s.UpdateProduct(ctx, p.ID, ProductUpdate{Price: ptr(dec("250.00"))})
	require.NoError(t, err)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "100.00", got.TotalAmount.StringFixed(2))

	// new orders see the new price
	c2 := mustCustomer(t, s, "bob@example.com")
	o2, err := s.CreateOrder(ctx, OrderInput{CustomerID: c2.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "250.00", o2.TotalAmount.StringFixed(2))
}

func TestZeroUnitPriceSnapshotsProductPrice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	p := mustProduct(t, s, "Cable", "12.50", 10)

	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID})
	require.NoError(t, err)

	o, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: p.ID, Quantity: 2, UnitPrice: ptr(decimal.Zero)})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "12.50", o.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "25.00", o.TotalAmount.StringFixed(2))

	o, err = s.UpdateItem(ctx, o.ID, o.Items[0].ID, ItemUpdate{UnitPrice: ptr(dec("10.00"))})
	require.NoError(t, err)
	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))

	_, err = s.UpdateProduct(ctx, p.ID, ProductUpdate{Price: ptr(dec("15.00"))})
	require.NoError(t, err)
	o, err = s.UpdateItem(ctx, o.ID, o.Items[0].ID, ItemUpdate{UnitPrice: ptr(decimal.Zero)})
	require.NoError(t, err)
	assert.Equal(t, "15.00", o.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "30.00", o.TotalAmount.StringFixed(2))
	assertTotalConsistent(t, s, o.ID)

	_, err = s.AddItem(ctx, o.ID, ItemInput{ProductID: mustProduct(t, s, "Plug", "1.00", 1).ID, Quantity: 1, UnitPrice: ptr(dec("-1"))})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestConcurrentAddItemsDoNotLoseUpdates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID})
	require.NoError(t, err)

	const n = 10
	products := make([]*model.Product, n)
	for i := range products {
		products[i] = mustProduct(t, s, fmt.Sprintf("P%02d", i), "1.50", 1)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, p := range products {
		wg.Add(1)
		go func(p *model.Product) {
			defer wg.Done()
			_, err := s.AddItem(ctx, o.ID, ItemInput{ProductID: p.ID, Quantity: 2})
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, n)
	assert.Equal(t, "30.00", got.TotalAmount.StringFixed(2))
}

func TestDeleteCustomerCascades(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mustCustomer(t, s, "alice@example.com")
	bob := mustCustomer(t, s, "bob@example.com")
	p := mustProduct(t, s, "Laptop", "10", 10)

	for i := 0; i < 2; i++ {
		_, err := s.CreateOrder(ctx, OrderInput{CustomerID: alice.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
		require.NoError(t, err)
	}
	kept, err := s.CreateOrder(ctx, OrderInput{CustomerID: bob.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCustomer(ctx, alice.ID))
	assert.Equal(t, int64(1), countRows(t, s, &model.Order{}))
	assert.Equal(t, int64(1), countRows(t, s, &model.OrderItem{}))
	_, err = s.GetOrder(ctx, kept.ID)
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteCustomer(ctx, alice.ID), model.ErrNotFound)
}

func TestDeleteProductPolicy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	used := mustProduct(t, s, "Used", "10", 10)
	unused := mustProduct(t, s, "Unused", "10", 10)

	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: used.ID, Quantity: 1}}})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteProduct(ctx, used.ID), model.ErrConflict)
	require.NoError(t, s.DeleteProduct(ctx, unused.ID))
	require.ErrorIs(t, s.DeleteProduct(ctx, unused.ID), model.ErrNotFound)

	require.NoError(t, s.DeleteOrder(ctx, o.ID))
	assert.Zero(t, countRows(t, s, &model.OrderItem{}))
	require.NoError(t, s.DeleteProduct(ctx, used.ID))
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID})
	require.NoError(t, err)

	for _, st := range []model.OrderStatus{model.StatusProcessing, model.StatusShipped, model.StatusShipped, model.StatusDelivered} {
		o, err = s.UpdateOrderStatus(ctx, o.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, o.Status)
	}
	_, err = s.UpdateOrderStatus(ctx, o.ID, model.StatusCancelled)
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = s.UpdateOrderStatus(ctx, o.ID, "lost")
	require.ErrorIs(t, err, model.ErrValidation)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)
}

func TestOrderDateDefaultsAndOverride(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")

	before := time.Now().UTC().Add(-time.Second)
	o, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID})
	require.NoError(t, err)
	assert.True(t, o.OrderDate.After(before))

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o, err = s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, OrderDate: &when})
	require.NoError(t, err)
	assert.True(t, when.Equal(o.OrderDate))
}

func TestRevenue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := mustCustomer(t, s, "alice@example.com")
	p := mustProduct(t, s, "Laptop", "12.25", 10)
	q := mustProduct(t, s, "Mouse", "1.75", 10)

	_, err := s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 2}}})
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, OrderInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: q.ID, Quantity: 1}}})
	require.NoError(t, err)

	n, sum, err := s.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "26.25", sum.StringFixed(2))
}
