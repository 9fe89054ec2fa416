package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	httpapi "betmirror/api/http"
	"betmirror/application"
	"betmirror/config"
	"betmirror/infrastructure/chain"
	"betmirror/infrastructure/observability"
	"betmirror/repository"

	log "github.com/sirupsen/logrus"
)

// Run starts the HTTP API, the chain listener and the notification dispatcher
// and blocks until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting betmirror...")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	log.Info("Registering notification subscriptions...")
	if err := a.startNotifications(); err != nil {
		return fmt.Errorf("failed to start notifications: %w", err)
	}

	listener := chain.NewListener(
		a.ethClient,
		a.contract,
		repository.NewSyncStateRepository(a.db),
		listenerHandler(a.reconciler),
		chain.ListenerConfig{
			StartBlock:   cfg.ListenerStartBlock,
			PollInterval: cfg.ListenerInterval,
		},
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewServer(a.transitions, a.queries, a.reconciler).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("chain listener stopped: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server stopped: %w", err)
		}
	}()

	var runErr error
	select {
	case <-runCtx.Done():
		log.Info("Shutting down...")
	case runErr = <-errCh:
		log.WithError(runErr).Error("Component failed, shutting down")
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}
	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	}

	return runErr
}

// listenerHandler feeds decoded contract events into the reconciler
func listenerHandler(reconciler *application.Reconciler) chain.LogHandler {
	return func(ctx context.Context, l *chain.Log) error {
		switch l.Kind {
		case chain.LogBetCreated:
			return reconciler.ApplyCreated(ctx, l.Bet)
		case chain.LogStatusChanged:
			return reconciler.ApplyStatus(ctx, application.ObservedStatus{
				BetNumber:       l.BetNumber,
				Status:          l.Status,
				TransactionHash: l.TransactionHash,
				BlockNumber:     l.BlockNumber,
			})
		default:
			return nil
		}
	}
}
