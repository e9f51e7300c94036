package cli

import (
	"context"
	"io"
	"time"

	"resumereview/internal/api"
	"resumereview/internal/config"
	"resumereview/internal/errors"
	"resumereview/internal/export"
	"resumereview/internal/notify"
	"resumereview/internal/observability"
	"resumereview/internal/saver"
	"resumereview/internal/workflow"
)

const shutdownTimeout = 5 * time.Second

// app is the wired workflow behind a command
type app struct {
	controller *workflow.Controller
	client     *api.Client
	obs        *observability.ObservabilityManager
	watcher    *config.VaultWatcher
	logger     *errors.Logger
}

// newApp builds the service client, saver, exporter and controller from cfg.
// Notifications are printed to notifyOut.
func newApp(ctx context.Context, cfg *config.Config, logger *errors.Logger, notifyOut io.Writer, plain bool) (*app, error) {
	obs, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg, logger)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize observability", err)
	}
	metrics := obs.GetMetrics()

	client, err := api.NewClient(cfg.Service,
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithTracerProvider(obs.TracerProvider()),
	)
	if err != nil {
		shutdownObservability(obs, logger)
		return nil, err
	}

	dest, err := saver.New(ctx, cfg.Export, logger)
	if err != nil {
		shutdownObservability(obs, logger)
		return nil, err
	}

	notifier := notify.NewConsole(notifyOut, logger, plain)
	exporter := export.NewExporter(client, dest, notifier, cfg.Export, logger, metrics)

	controller := workflow.New(client, exporter, notifier, workflow.Options{
		Timeout:       cfg.Service.Timeout,
		ExportTimeout: cfg.Service.ExportTimeout,
		MaxUploadSize: cfg.Service.MaxUploadSize,
		Accept:        cfg.Intake.Accept,
		Logger:        logger,
		Metrics:       metrics,
	})

	watcher, err := startCertificateWatcher(cfg, client, logger)
	if err != nil {
		_ = controller.Close()
		shutdownObservability(obs, logger)
		return nil, err
	}

	logger.Info("Workflow ready",
		"service", cfg.Service.BaseURL,
		"export_destination", cfg.Export.Destination,
		"observability", cfg.Observability.Enabled)

	return &app{controller: controller, client: client, obs: obs, watcher: watcher, logger: logger}, nil
}

// startCertificateWatcher keeps the mutual TLS client certificate in step
// with Vault when a watch interval is configured
func startCertificateWatcher(cfg *config.Config, client *api.Client, logger *errors.Logger) (*config.VaultWatcher, error) {
	v := cfg.Vault
	if !v.Enabled || v.WatchInterval <= 0 || v.Secrets.TLSCerts == "" || cfg.Service.TLS.Mode != "mutual" {
		return nil, nil
	}

	watcher, err := config.NewVaultWatcher(v, func(data *config.CertificateData, err error) {
		if err != nil {
			logger.LogError(err, "Skipping client certificate reload")
			return
		}
		if err := client.ReloadClientCertificate(data.CertContent, data.KeyContent); err != nil {
			logger.LogError(err, "Client certificate reload failed")
		}
	}, logger)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to create Vault watcher", err)
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Close stops the controller and flushes telemetry
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Failed to stop Vault watcher", "error", err)
		}
	}
	if err := a.controller.Close(); err != nil {
		a.logger.Warn("Failed to close workflow", "error", err)
	}
	a.logger.Debug("Circuit breaker states at exit", "states", a.client.BreakerStates())
	shutdownObservability(a.obs, a.logger)
}

func shutdownObservability(obs *observability.ObservabilityManager, logger *errors.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obs.Shutdown(ctx); err != nil {
		logger.Warn("Failed to shut down observability", "error", err)
	}
}

// acceptExtensions returns accept entries without the leading dot for shell
// completion
func acceptExtensions(accept []string) []string {
	exts := make([]string, 0, len(accept))
	for _, ext := range accept {
		if len(ext) > 1 && ext[0] == '.' {
			ext = ext[1:]
		}
		exts = append(exts, ext)
	}
	return exts
}
