package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"poscli/internal/config"
	"poscli/internal/infrastructure"
	"poscli/internal/license"
	"poscli/internal/security"
	handlers "poscli/internal/transport/http"
)

const (
	// Version is set at compile time via -ldflags in release builds
	Version = "dev"
	AppName = "POS Client"
)

// Application is the main application container wiring the license core
// to its local HTTP surface.
type Application struct {
	cfg       *config.Config
	paths     *config.Paths
	logger    *slog.Logger
	telemetry *infrastructure.Telemetry
	license   *license.Service
	server    *http.Server
}

// NewApplication builds the full dependency graph: config, logging,
// telemetry, fingerprint, crypto, storage, license service, HTTP server.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare directories: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	fingerprint := security.NewFingerprintService(logger)
	signature, err := fingerprint.GetMachineSignature()
	if err != nil {
		return nil, fmt.Errorf("failed to compute machine signature: %w", err)
	}

	crypto := security.NewCryptoHelper(signature)
	storage := license.NewSecureStorage(crypto, license.StorageOptions{
		KeyringService: cfg.License.KeyringService,
		KeyringUser:    cfg.License.KeyringUser,
		BackupFilePath: paths.BackupFile,
	}, logger)

	metrics, err := license.NewMetrics(telemetry.Meter("poscli/license"))
	if err != nil {
		return nil, fmt.Errorf("failed to register license metrics: %w", err)
	}

	licenseService := license.NewService(storage, fingerprint, license.ServiceOptions{
		RemoteTimeURL: cfg.License.RemoteTimeURL,
		RemoteTimeout: cfg.License.RemoteTimeout,
		Metrics:       metrics,
		Audit:         license.NewAuditWriter(paths.AuditFile, logger),
		Logger:        logger,
	})

	handler := handlers.NewLicenseHandler(licenseService, handlers.HandlerOptions{
		ActivationRPS:   cfg.Server.ActivationRPS,
		ActivationBurst: cfg.Server.ActivationBurst,
		EnableResetAPI:  cfg.License.EnableResetAPI,
	}, logger)

	router := handlers.NewRouter(handler, licenseService, telemetry.MetricsHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		cfg:       cfg,
		paths:     paths,
		logger:    logger,
		telemetry: telemetry,
		license:   licenseService,
		server:    server,
	}, nil
}

// License exposes the license service to callers that embed the
// application, e.g. support tooling.
func (a *Application) License() *license.Service {
	return a.license
}

// Run starts the application and blocks until shutdown.
func (a *Application) Run() error {
	// License lifecycle first: trial creation, run tracking, and the
	// background remote time refresh all happen before serving.
	if err := a.license.InitializeTrial(); err != nil {
		a.logger.Error("trial initialization failed", slog.String("error", err.Error()))
	}
	a.license.RecordAppRun()

	a.logger.Info("license state at startup",
		slog.String("status", string(a.license.GetLicenseStatus())),
		slog.String("message", a.license.GetStatusMessage()),
		slog.Int("remaining_days", a.license.GetRemainingTrialDays()),
	)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("local API listening",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		a.logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	return a.Stop()
}

// Stop gracefully shuts down the HTTP server and telemetry.
func (a *Application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	infrastructure.CloseLogFile()

	return nil
}
