package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.logFile", "")
	v.SetDefault("app.defaultFormat", "terminal")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown", "terminal"})

	// Analysis service
	v.SetDefault("service.baseURL", "http://localhost:3001")
	v.SetDefault("service.analyzePath", "/api/upload-resume")
	v.SetDefault("service.reportPath", "/api/feedback/{feedbackId}/download")
	v.SetDefault("service.apiKey", "")
	v.SetDefault("service.timeout", 120*time.Second) // Analysis runs a model server-side
	v.SetDefault("service.exportTimeout", 60*time.Second)
	v.SetDefault("service.maxUploadSize", 10*1024*1024) // 10MB
	v.SetDefault("service.userAgent", "resumereview")

	// Client TLS
	v.SetDefault("service.tls.mode", "system") // system, mutual
	v.SetDefault("service.tls.caFile", "")
	v.SetDefault("service.tls.certFile", "")
	v.SetDefault("service.tls.keyFile", "")
	v.SetDefault("service.tls.minVersion", "1.2")
	v.SetDefault("service.tls.serverName", "")
	v.SetDefault("service.tls.insecureSkipVerify", false)

	// Circuit breaker around the analysis service
	v.SetDefault("service.circuitBreaker.enabled", true)
	v.SetDefault("service.circuitBreaker.maxRequests", 1)
	v.SetDefault("service.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("service.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("service.circuitBreaker.minRequests", 3)
	v.SetDefault("service.circuitBreaker.failureThreshold", 0.6)

	// Client-side pacing
	v.SetDefault("service.rateLimit.enabled", false)
	v.SetDefault("service.rateLimit.requestsPerMin", 30)
	v.SetDefault("service.rateLimit.burstCapacity", 5)

	// Export
	v.SetDefault("export.fileName", "AI-Resume-Feedback.pdf")
	v.SetDefault("export.destination", "local")
	v.SetDefault("export.directory", ".")
	v.SetDefault("export.overwrite", false)
	v.SetDefault("export.spool", "file")
	v.SetDefault("export.s3.region", "")
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.prefix", "")
	v.SetDefault("export.s3.kmsKeyId", "")

	// Intake
	v.SetDefault("intake.accept", []string{".pdf", ".doc", ".docx", ".txt"})
	v.SetDefault("intake.dropDebounce", 500*time.Millisecond)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.watchInterval", 0)
	v.SetDefault("vault.secrets.apiKey", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "resumereview")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}
