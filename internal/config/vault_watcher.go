package config

import (
	"fmt"
	"sync"
	"time"

	"resumereview/internal/errors"
)

// CertificateData holds client certificate PEM content fetched from Vault
type CertificateData struct {
	CertContent string
	KeyContent  string
	CAContent   string
}

// VaultReloadCallback is called when a new secret version has been fetched
type VaultReloadCallback func(data *CertificateData, err error)

// VaultWatcher polls a Vault KVv2 secret and calls back when its version
// moves forward. The version seen on the first poll is the baseline.
type VaultWatcher struct {
	mu sync.RWMutex

	client         secretReader
	secretPath     string
	pollInterval   time.Duration
	reloadCallback VaultReloadCallback
	logger         *errors.Logger

	stopChan    chan struct{}
	done        chan struct{}
	running     bool
	primed      bool
	lastVersion int64
}

// NewVaultWatcher creates a watcher for the TLS secret named in cfg
func NewVaultWatcher(cfg VaultConfig, reloadCallback VaultReloadCallback, logger *errors.Logger) (*VaultWatcher, error) {
	if cfg.Secrets.TLSCerts == "" || cfg.WatchInterval <= 0 {
		return nil, fmt.Errorf("vault watcher needs secrets.tlsCerts and a positive watchInterval")
	}
	client, err := NewVaultClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("vault is disabled")
	}
	return newVaultWatcher(client, cfg.Secrets.TLSCerts, cfg.WatchInterval, reloadCallback, logger), nil
}

func newVaultWatcher(client secretReader, secretPath string, pollInterval time.Duration, reloadCallback VaultReloadCallback, logger *errors.Logger) *VaultWatcher {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &VaultWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start begins polling Vault for secret changes
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}
	vw.running = true
	go vw.pollLoop()
	vw.logger.Info("Vault watcher started", "secret_path", vw.secretPath, "poll_interval", vw.pollInterval)
	return nil
}

// Stop stops polling and waits for an in-progress poll to finish
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	if !vw.running {
		vw.mu.Unlock()
		return nil
	}
	close(vw.stopChan)
	vw.running = false
	vw.mu.Unlock()

	<-vw.done
	vw.logger.Info("Vault watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is polling
func (vw *VaultWatcher) IsRunning() bool {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return vw.running
}

func (vw *VaultWatcher) pollLoop() {
	defer close(vw.done)

	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()

	vw.poll()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-vw.stopChan:
			return
		}
	}
}

func (vw *VaultWatcher) poll() {
	secret, changed, err := vw.checkForUpdates()
	if err != nil {
		vw.logger.LogError(err, "Failed to check Vault for updates", "secret_path", vw.secretPath)
		return
	}
	if !changed {
		return
	}

	vw.logger.Info("Vault secret changed, reloading client certificate", "version", secret.Version)
	data, err := certificateDataFrom(secret)
	vw.reloadCallback(data, err)
}

// checkForUpdates reads the secret and reports whether its version is newer
// than the last one seen
func (vw *VaultWatcher) checkForUpdates() (*VaultSecret, bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read secret: %w", err)
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.primed {
		vw.primed = true
		vw.lastVersion = secret.Version
		return secret, false, nil
	}
	if secret.Version > vw.lastVersion {
		vw.lastVersion = secret.Version
		return secret, true, nil
	}
	return secret, false, nil
}

func certificateDataFrom(secret *VaultSecret) (*CertificateData, error) {
	data := &CertificateData{}
	data.CertContent, _ = secret.Data["cert"].(string)
	data.KeyContent, _ = secret.Data["key"].(string)
	data.CAContent, _ = secret.Data["ca"].(string)
	if data.CertContent == "" || data.KeyContent == "" {
		return nil, fmt.Errorf("secret version %d has no cert and key", secret.Version)
	}
	return data, nil
}

// Status returns the watcher state for diagnostics
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
}
