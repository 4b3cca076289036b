package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmcore/db"
	"crmcore/filter"
	"crmcore/service"
	"crmcore/store"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	gdb, closeFn, err := db.Open(ctx, db.MemoryDSN(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	svc := service.New(store.New(gdb, nil), nil)

	require.NoError(t, seed(ctx, svc, zap.NewNop()))
	require.NoError(t, seed(ctx, svc, zap.NewNop()))

	customers, err := svc.FilteredCustomers(ctx, filter.CustomerFilter{})
	require.NoError(t, err)
	assert.Len(t, customers, 3)

	orders, err := svc.FilteredOrders(ctx, filter.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1149.98", orders[0].TotalAmount.StringFixed(2))
	assert.Equal(t, "alice@example.com", orders[0].Customer.Email)
}

func TestJobCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crm.db")
	t.Setenv("CRM_LOG_LEVEL", "error")

	for _, args := range [][]string{
		{"migrate", "--db", path, "--env", filepath.Join(dir, "none.env")},
		{"seed", "--db", path, "--env", filepath.Join(dir, "none.env")},
		{"job", "report", "--db", path, "--env", filepath.Join(dir, "none.env")},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		require.NoError(t, cmd.ExecuteContext(context.Background()), args)
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"job", "backup", "--db", path, "--env", filepath.Join(dir, "none.env")})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
