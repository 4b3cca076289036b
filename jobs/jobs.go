// Package jobs holds the periodic callers of the CRM surface and a ticker
// based scheduler to run them.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"crmcore/service"
)

const (
	Heartbeat      = "heartbeat"
	ReplenishStock = "replenish"
	Report         = "report"
	OrderReminders = "reminders"
)

// ReminderWindow is how far back OrderReminders looks.
const ReminderWindow = 7 * 24 * time.Hour

const stampLayout = "02/01/2006-15:04:05"

// Func is one run of a job.
type Func func(ctx context.Context) error

// Runner binds the jobs to a service.
type Runner struct {
	svc *service.Service
	log *zap.Logger
	now func() time.Time
}

// NewRunner returns a Runner. A nil log discards output.
func NewRunner(svc *service.Service, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{svc: svc, log: log.Named("jobs"), now: time.Now}
}

// Lookup returns the job registered under name.
func (r *Runner) Lookup(name string) (Func, error) {
	jobs := r.all()
	fn, ok := jobs[name]
	if !ok {
		names := make([]string, 0, len(jobs))
		for n := range jobs {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown job %q (known: %v)", name, names)
	}
	return fn, nil
}

func (r *Runner) all() map[string]Func {
	return map[string]Func{
		Heartbeat:      r.Heartbeat,
		ReplenishStock: r.ReplenishLowStock,
		Report:         r.Report,
		OrderReminders: r.OrderReminders,
	}
}

// Heartbeat logs that the CRM is alive and whether its database answers.
func (r *Runner) Heartbeat(ctx context.Context) error {
	stamp := r.now().Format(stampLayout)
	if err := r.svc.Ping(ctx); err != nil {
		r.log.Error("CRM heartbeat failed", zap.String("at", stamp), zap.Error(err))
		return err
	}
	r.log.Info("CRM is alive", zap.String("at", stamp))
	return nil
}

// ReplenishLowStock restocks low products and logs each one.
func (r *Runner) ReplenishLowStock(ctx context.Context) error {
	p := r.svc.UpdateLowStockProducts(ctx)
	if !p.Success {
		r.log.Error("low stock update failed", zap.String("message", p.Message), zap.Strings("errors", p.Errors))
		return fmt.Errorf("replenish: %s", p.Message)
	}
	if len(p.Products) == 0 {
		r.log.Info("no products were updated")
		return nil
	}
	for _, prod := range p.Products {
		r.log.Info("product restocked", zap.String("name", prod.Name), zap.Stringer("id", prod.ID), zap.Int("stock", prod.Stock))
	}
	return nil
}

// Report logs customer and order counts and total revenue.
func (r *Runner) Report(ctx context.Context) error {
	rep, err := r.svc.Report(ctx)
	if err != nil {
		r.log.Error("CRM report failed", zap.Error(err))
		return err
	}
	r.log.Info(rep.String(),
		zap.String("at", r.now().Format(stampLayout)),
		zap.Int64("customers", rep.Customers),
		zap.Int64("orders", rep.Orders),
		zap.Stringer("revenue", rep.Revenue),
	)
	return nil
}

// OrderReminders logs every order placed within ReminderWindow with the
// customer's email.
func (r *Runner) OrderReminders(ctx context.Context) error {
	orders, err := r.svc.RecentOrders(ctx, ReminderWindow)
	if err != nil {
		r.log.Error("order reminders failed", zap.Error(err))
		return err
	}
	if len(orders) == 0 {
		r.log.Info("no recent orders found")
		return nil
	}
	for _, o := range orders {
		email := ""
		if o.Customer != nil {
			email = o.Customer.Email
		}
		r.log.Info("order reminder", zap.Stringer("order_id", o.ID), zap.String("customer_email", email),
			zap.Time("order_date", o.OrderDate))
	}
	r.log.Info("order reminders processed", zap.Int("orders", len(orders)))
	return nil
}
