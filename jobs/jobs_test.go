package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"crmcore/db"
	"crmcore/service"
	"crmcore/store"
)

func newRunner(t *testing.T) (*Runner, *service.Service, *observer.ObservedLogs) {
	t.Helper()
	gdb, closeFn, err := db.Open(context.Background(), db.MemoryDSN(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	core, logs := observer.New(zapcore.InfoLevel)
	svc := service.New(store.New(gdb, nil), nil)
	r := NewRunner(svc, zap.New(core))
	r.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	return r, svc, logs
}

func TestHeartbeat(t *testing.T) {
	r, _, logs := newRunner(t)
	require.NoError(t, r.Heartbeat(context.Background()))
	entries := logs.FilterMessage("CRM is alive").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "01/06/2025-09:30:00", entries[0].ContextMap()["at"])
}

func TestReplenishJob(t *testing.T) {
	r, svc, logs := newRunner(t)
	ctx := context.Background()
	for name, stock := range map[string]int{"A": 2, "B": 50} {
		p := svc.CreateProduct(ctx, store.ProductInput{Name: name, Price: decimal.NewFromInt(1), Stock: stock})
		require.True(t, p.Success)
	}

	require.NoError(t, r.ReplenishLowStock(ctx))
	restocked := logs.FilterMessage("product restocked").All()
	require.Len(t, restocked, 1)
	assert.Equal(t, "A", restocked[0].ContextMap()["name"])
	assert.EqualValues(t, 12, restocked[0].ContextMap()["stock"])

	require.NoError(t, r.ReplenishLowStock(ctx))
	assert.Equal(t, 1, logs.FilterMessage("no products were updated").Len())
}

func TestReportJob(t *testing.T) {
	r, svc, logs := newRunner(t)
	ctx := context.Background()
	c := svc.CreateCustomer(ctx, store.CustomerInput{Name: "Alice", Email: "alice@example.com"})
	p := svc.CreateProduct(ctx, store.ProductInput{Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 1})
	o := svc.CreateOrder(ctx, service.CreateOrderInput{CustomerID: c.Customer.ID.String(), ProductIDs: []string{p.Product.ID.String()}})
	require.True(t, o.Success, o.Message)

	require.NoError(t, r.Report(ctx))
	assert.Equal(t, 1, logs.FilterMessage("Report: 1 customers, 1 orders, $999.99 revenue").Len())
}

func TestOrderRemindersJob(t *testing.T) {
	r, svc, logs := newRunner(t)
	ctx := context.Background()

	require.NoError(t, r.OrderReminders(ctx))
	assert.Equal(t, 1, logs.FilterMessage("no recent orders found").Len())

	c := svc.CreateCustomer(ctx, store.CustomerInput{Name: "Alice", Email: "alice@example.com"})
	p := svc.CreateProduct(ctx, store.ProductInput{Name: "Laptop", Price: decimal.NewFromInt(5), Stock: 1})
	old := time.Now().UTC().AddDate(0, -1, 0)
	for _, when := range []*time.Time{nil, &old} {
		o := svc.CreateOrder(ctx, service.CreateOrderInput{
			CustomerID: c.Customer.ID.String(), ProductIDs: []string{p.Product.ID.String()}, OrderDate: when,
		})
		require.True(t, o.Success, o.Message)
	}

	require.NoError(t, r.OrderReminders(ctx))
	reminders := logs.FilterMessage("order reminder").All()
	require.Len(t, reminders, 1)
	assert.Equal(t, "alice@example.com", reminders[0].ContextMap()["customer_email"])
}

func TestLookup(t *testing.T) {
	r, _, _ := newRunner(t)
	for _, name := range []string{Heartbeat, ReplenishStock, Report, OrderReminders} {
		fn, err := r.Lookup(name)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}
	_, err := r.Lookup("backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat")
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	var runs, fails atomic.Int32
	s := NewScheduler(nil,
		Entry{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
		Entry{Name: "broken", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			fails.Add(1)
			return errors.New("boom")
		}},
		Entry{Name: "off", Interval: 0, Run: func(context.Context) error {
			t.Error("disabled job ran")
			return nil
		}},
	)
	assert.Len(t, s.Entries(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 && fails.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
