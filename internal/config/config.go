package config

import (
	"fmt"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
// API Key Precedence Order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (RESUMEREVIEW_SERVICE_APIKEY, etc.)
// 4. Default values - Lowest priority
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Service       ServiceConfig       `mapstructure:"service"`
	Export        ExportConfig        `mapstructure:"export"`
	Intake        IntakeConfig        `mapstructure:"intake"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	LogFile          string   `mapstructure:"logFile"` // Logs go here instead of stderr when set
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
}

// ServiceConfig describes the remote analysis service
type ServiceConfig struct {
	BaseURL       string        `mapstructure:"baseURL"`
	AnalyzePath   string        `mapstructure:"analyzePath"`
	ReportPath    string        `mapstructure:"reportPath"` // Must contain {feedbackId}
	APIKey        string        `mapstructure:"apiKey"`
	Timeout       time.Duration `mapstructure:"timeout"`       // Deadline for one analyze request
	ExportTimeout time.Duration `mapstructure:"exportTimeout"` // Deadline for one report download
	MaxUploadSize int64         `mapstructure:"maxUploadSize"` // 0 disables the local size check
	UserAgent     string        `mapstructure:"userAgent"`

	TLS            TLSConfig            `mapstructure:"tls"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rateLimit"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// RateLimitConfig holds client-side request pacing
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	BurstCapacity  int  `mapstructure:"burstCapacity"`
}

// TLSConfig holds client TLS settings used when talking to the service
type TLSConfig struct {
	Mode     string `mapstructure:"mode"`     // "system" or "mutual"
	CAFile   string `mapstructure:"caFile"`   // Extra CA bundle (PEM)
	CertFile string `mapstructure:"certFile"` // Client certificate for mutual mode (PEM)
	KeyFile  string `mapstructure:"keyFile"`  // Client private key for mutual mode (PEM)

	// Certificate content (used when loaded from Vault instead of files)
	CAContent   string `mapstructure:"caContent"`
	CertContent string `mapstructure:"certContent"`
	KeyContent  string `mapstructure:"keyContent"`

	MinVersion         string `mapstructure:"minVersion"` // "1.2", "1.3"
	ServerName         string `mapstructure:"serverName"`
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"` // dev only
}

// ExportConfig controls where exported reports are saved
type ExportConfig struct {
	FileName    string   `mapstructure:"fileName"`
	Destination string   `mapstructure:"destination"` // "local" or "s3"
	Directory   string   `mapstructure:"directory"`
	Overwrite   bool     `mapstructure:"overwrite"`
	Spool       string   `mapstructure:"spool"` // "file" or "memory"
	S3          S3Config `mapstructure:"s3"`
}

// S3Config holds object storage settings for the s3 destination
type S3Config struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	KMSKeyID string `mapstructure:"kmsKeyId"`
}

// IntakeConfig holds file selection settings
type IntakeConfig struct {
	Accept       []string      `mapstructure:"accept"`       // Advisory picker filter
	DropDebounce time.Duration `mapstructure:"dropDebounce"` // Quiet period before a drop folder batch is taken
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	ServiceName     string           `mapstructure:"serviceName"`
	ServiceVersion  string           `mapstructure:"serviceVersion"`
	ServiceInstance string           `mapstructure:"serviceInstance"`
	ConsoleOutput   bool             `mapstructure:"consoleOutput"`
	SampleRate      float64          `mapstructure:"sampleRate"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
	Console         ConsoleConfig    `mapstructure:"console"`
	Prometheus      PrometheusConfig `mapstructure:"prometheus"`
	OTLP            OTLPConfig       `mapstructure:"otlp"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// FeedbackIDPlaceholder is substituted into Service.ReportPath
const FeedbackIDPlaceholder = "{feedbackId}"

// LoadConfig loads configuration from environment variables and a config file
func LoadConfig() (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	// A missing .env is normal; real environment variables still win.
	if err := godotenv.Load(); err == nil {
		log.Println("[CONFIG] Loaded environment overrides from .env")
	}

	v := newViper()

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Successfully loaded config file: %s", configFileUsed)
	}

	config, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	config.logConfigurationSources(configFileUsed)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return config, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	config, err := unmarshal(newViper())
	if err != nil {
		panic(fmt.Sprintf("default configuration does not unmarshal: %v", err))
	}
	return config
}

func newViper() *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RESUMEREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/resumereview/")
	v.AddConfigPath("$HOME/.resumereview")
	v.AddConfigPath(".")

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyFallbacks()
	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}

	if err := c.validateExport(); err != nil {
		return err
	}

	if !slices.Contains(c.App.SupportedFormats, c.App.DefaultFormat) {
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	if err := c.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	return nil
}

func (c *Config) validateService() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service baseURL must be an absolute URL: %q", c.Service.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service baseURL scheme must be http or https: %q", u.Scheme)
	}

	if !strings.HasPrefix(c.Service.AnalyzePath, "/") {
		return fmt.Errorf("service analyzePath must start with '/': %q", c.Service.AnalyzePath)
	}
	if !strings.Contains(c.Service.ReportPath, FeedbackIDPlaceholder) {
		return fmt.Errorf("service reportPath must contain %s: %q", FeedbackIDPlaceholder, c.Service.ReportPath)
	}

	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service timeout must be positive")
	}
	if c.Service.ExportTimeout <= 0 {
		return fmt.Errorf("service exportTimeout must be positive")
	}

	if c.Service.RateLimit.Enabled && c.Service.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("service rateLimit requestsPerMin must be positive when enabled")
	}

	cb := c.Service.CircuitBreaker
	if cb.Enabled && (cb.FailureThreshold <= 0 || cb.FailureThreshold > 1) {
		return fmt.Errorf("circuit breaker failureThreshold must be in (0,1]: %v", cb.FailureThreshold)
	}

	return nil
}

func (c *Config) validateExport() error {
	if strings.TrimSpace(c.Export.FileName) == "" {
		return fmt.Errorf("export fileName is required")
	}

	switch c.Export.Destination {
	case "local":
	case "s3":
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export s3 bucket is required when destination is s3")
		}
	default:
		return fmt.Errorf("invalid export destination: %s (must be 'local' or 's3')", c.Export.Destination)
	}

	switch c.Export.Spool {
	case "file", "memory":
	default:
		return fmt.Errorf("invalid export spool: %s (must be 'file' or 'memory')", c.Export.Spool)
	}

	return nil
}

// ReportPathFor returns the report path for a feedback identifier. The
// identifier is path-escaped.
func (s ServiceConfig) ReportPathFor(feedbackID string) string {
	return strings.ReplaceAll(s.ReportPath, FeedbackIDPlaceholder, url.PathEscape(feedbackID))
}
