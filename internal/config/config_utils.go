package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks normalizes values that viper leaves empty or inconsistent
func (c *Config) applyFallbacks() {
	c.applyServiceDefaults()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()
}

// applyServiceDefaults trims the base URL and fills the legacy API key variable
func (c *Config) applyServiceDefaults() {
	c.Service.BaseURL = strings.TrimRight(strings.TrimSpace(c.Service.BaseURL), "/")

	if c.Service.APIKey == "" {
		if key := os.Getenv("RESUME_ANALYZER_API_KEY"); key != "" {
			c.Service.APIKey = strings.TrimSpace(key)
		}
	}

	for i, ext := range c.Intake.Accept {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Intake.Accept[i] = ext
	}
}

// applyTLSDefaults applies default TLS configuration values
func (c *Config) applyTLSDefaults() {
	if c.Service.TLS.Mode == "" {
		c.Service.TLS.Mode = "system"
	}
	if c.Service.TLS.MinVersion == "" {
		c.Service.TLS.MinVersion = "1.2"
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"RESUMEREVIEW_SERVICE_BASEURL",
		"RESUMEREVIEW_SERVICE_APIKEY",
		"RESUMEREVIEW_SERVICE_TIMEOUT",
		"RESUMEREVIEW_EXPORT_DESTINATION",
		"RESUMEREVIEW_EXPORT_DIRECTORY",
		"RESUMEREVIEW_APP_LOGLEVEL",
		"RESUMEREVIEW_VAULT_ENABLED",
		"RESUME_ANALYZER_API_KEY", // Legacy support
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if isSensitiveEnvVar(envVar) {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] Service URL: %s", c.Service.BaseURL)
	if c.Service.APIKey != "" {
		log.Println("[CONFIG] Service API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] Service API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Request Timeout: %s (export %s)", c.Service.Timeout, c.Service.ExportTimeout)
	log.Printf("[CONFIG] Export Destination: %s", c.Export.Destination)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] TLS Mode: %s", c.Service.TLS.Mode)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Println("[CONFIG] =====================================")
}

func isSensitiveEnvVar(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "key") || strings.Contains(lower, "token")
}
