package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/api"
	"crmcore/config"
	"crmcore/db"
	"crmcore/jobs"
	"crmcore/service"
	"crmcore/store"
)

// app is what every subcommand needs once config and logging are set up.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var envFile string

	root := &cobra.Command{
		Use:          "crmcore",
		Short:        "Order-management data service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
				cfg.DBPath = dsn
			}
			log, err := cfg.Logger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().String("db", "", "SQLite database path (overrides CRM_DB_DSN)")

	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.seedCmd(), a.jobCmd())
	return root
}

// open connects to the configured database and migrates it.
func (a *app) open(ctx context.Context) (*gorm.DB, func() error, error) {
	gdb, closeFn, err := db.Open(ctx, db.DSN(a.cfg.DBPath), a.log)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("database ready", zap.String("path", a.cfg.DBPath))
	return gdb, closeFn, nil
}

func (a *app) service(ctx context.Context) (*service.Service, func() error, error) {
	gdb, closeFn, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return service.New(store.New(gdb, a.log), a.log), closeFn, nil
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, closeFn, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if a.cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           api.NewRouter(svc, a.log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runner := jobs.NewRunner(svc, a.log)
			sched := jobs.NewScheduler(a.log,
				jobs.Entry{Name: jobs.Heartbeat, Interval: a.cfg.HeartbeatInterval, Run: runner.Heartbeat},
				jobs.Entry{Name: jobs.ReplenishStock, Interval: a.cfg.ReplenishInterval, Run: runner.ReplenishLowStock},
				jobs.Entry{Name: jobs.Report, Interval: a.cfg.ReportInterval, Run: runner.Report},
				jobs.Entry{Name: jobs.OrderReminders, Interval: a.cfg.ReminderInterval, Run: runner.OrderReminders},
			)
			schedDone := make(chan struct{})
			go func() {
				sched.Run(ctx)
				close(schedDone)
			}()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("HTTP server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					stop()
					<-schedDone
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("http shutdown", zap.Error(err))
			}
			<-schedDone
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return closeFn()
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample customers, products and an order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return seed(cmd.Context(), svc, a.log)
		},
	}
}

func (a *app) jobCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "job <name>",
		Short:     "Run one scheduled job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.Heartbeat, jobs.ReplenishStock, jobs.Report, jobs.OrderReminders},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			run, err := jobs.NewRunner(svc, a.log).Lookup(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context())
		},
	}
}
