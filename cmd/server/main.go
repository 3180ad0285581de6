package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"airline_scheduler/internal/api"
	"airline_scheduler/internal/booking"
	"airline_scheduler/internal/config"
	"airline_scheduler/internal/fleet"
	"airline_scheduler/internal/ledger"
	"airline_scheduler/internal/logging"
	"airline_scheduler/internal/scheduling"
)

func main() {
	cfg := config.FromEnv()
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing ledger", zap.Error(err))
		}
	}()

	engine, err := scheduling.NewEngine(store, scheduling.Options{
		HomeBase:        cfg.HomeBase,
		LongHaulMinutes: cfg.LongHaulMinutes,
		RouteCacheSize:  cfg.RouteCacheSize,
	}, log.Named("scheduling"))
	if err != nil {
		return err
	}
	validate := validator.New()
	fleetSvc := fleet.NewService(store, engine, fleet.Options{
		CommitRecheck: cfg.CommitRecheck,
		ManagerNotice: cfg.ManagerCancelNotice,
	}, validate, log.Named("fleet"))
	bookingSvc := booking.NewService(store, booking.Options{
		CancelWindow: cfg.CustomerCancelWindow,
		FeePercent:   int64(cfg.RetentionFeePercent),
	}, validate, log.Named("booking"))

	sweeper := fleet.NewSweeper(store, cfg.SweepInterval, log.Named("sweeper"))
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		log.Warn("initial completion sweep failed", zap.Error(err))
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.New(api.Deps{
			Store:   store,
			Engine:  engine,
			Fleet:   fleetSvc,
			Booking: bookingSvc,
			Logger:  log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("ledger", cfg.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ledger.Store, error) {
	if cfg.Driver == config.DriverMySQL {
		store, err := ledger.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Info("mysql ledger ready")
		return store, nil
	}

	store := ledger.NewMemoryStore()
	switch err := store.Load(cfg.SnapshotPath); {
	case err == nil:
		log.Info("loaded ledger snapshot", zap.String("path", cfg.SnapshotPath))
	case errors.Is(err, fs.ErrNotExist):
		airports, err := ledger.LoadAirportsCSV(cfg.AirportsCSV)
		if err != nil {
			return nil, fmt.Errorf("load airports: %w", err)
		}
		store.SetAirports(airports)
		log.Info("starting with an empty ledger", zap.Int("airports", len(airports)))
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	store.SetSavePath(cfg.SnapshotPath)
	return store, nil
}
