package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prosperlabs/prosper/internal/dotenv"
	"github.com/prosperlabs/prosper/pkg/gateway/billing"
	"github.com/prosperlabs/prosper/pkg/gateway/config"
	"github.com/prosperlabs/prosper/pkg/gateway/live"
	gatewayserver "github.com/prosperlabs/prosper/pkg/gateway/server"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(context.Context, config.Config, *slog.Logger) (*store.Store, error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		openStore: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
			st, err := store.Open(ctx, cfg.DatabaseURL, logger, nil)
			if err != nil {
				return nil, err
			}
			if cfg.MigrateOnStart {
				if err := st.Migrate(ctx); err != nil {
					st.Close()
					return nil, err
				}
			}
			return st, nil
		},
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// selectBackend picks the live relay's agent backend: the upstream realtime
// service when a provider key is configured, the built-in echo backend for
// local development otherwise.
func selectBackend(cfg config.Config, logger *slog.Logger) live.Backend {
	if cfg.RealtimeAPIKey == "" {
		logger.Info("no upstream realtime key configured, serving echo backend")
		return &live.EchoBackend{}
	}
	return &live.RelayBackend{
		URL:    cfg.RealtimeURL,
		APIKey: cfg.RealtimeAPIKey,
		Logger: logger,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openStore == nil {
		return errors.New("missing openStore dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var billingClient billing.Client
	if cfg.StripeSecretKey != "" {
		billingClient = billing.NewStripeClient(cfg.StripeSecretKey, billing.Config{
			PriceID:         cfg.StripePriceID,
			SuccessURL:      cfg.BillingSuccessURL,
			CancelURL:       cfg.BillingCancelURL,
			PortalReturnURL: cfg.BillingPortalReturn,
		})
	}

	gw := deps.newGateway(cfg, logger, gatewayserver.Deps{
		Store:   st,
		Billing: billingClient,
		Backend: selectBackend(cfg, logger),
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "auth_mode", cfg.AuthMode)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	gw.WarnLiveSessionsDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitLiveSessions(waitCtx) {
		gw.CancelLiveSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "prosper-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "prosper-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
