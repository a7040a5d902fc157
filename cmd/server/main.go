package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	_ "time/tzdata" // service-day zones on minimal images

	"github.com/talkmeter/server/internal/app"
	"github.com/talkmeter/server/internal/shared/logger"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initialize application: %v", err)
	}
	lg := application.Dependencies().Logger

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("ledger api listening",
			"address", cfg.Server.Address,
			"database", cfg.Database.Driver,
			"card_provider", cfg.Card.Provider,
			"timezone", cfg.Ledger.Timezone,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			lg.Error("listen failed", logger.Err(err))
		}
	case <-ctx.Done():
		lg.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting turns first so in-flight memory updates can finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("forced shutdown", logger.Err(err))
	}
	application.Stop()
	lg.Info("stopped")
}
