package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, "http://localhost:3001", config.Service.BaseURL)
	assert.Equal(t, "/api/upload-resume", config.Service.AnalyzePath)
	assert.Equal(t, "/api/feedback/{feedbackId}/download", config.Service.ReportPath)
	assert.Equal(t, 120*time.Second, config.Service.Timeout)
	assert.Equal(t, "AI-Resume-Feedback.pdf", config.Export.FileName)
	assert.Equal(t, "local", config.Export.Destination)
	assert.Equal(t, []string{".pdf", ".doc", ".docx", ".txt"}, config.Intake.Accept)
	assert.Equal(t, "system", config.Service.TLS.Mode)
	assert.NotEmpty(t, config.Observability.ServiceInstance)

	require.NoError(t, config.Validate())
}

func TestDefault_EnvironmentOverride(t *testing.T) {
	t.Setenv("RESUMEREVIEW_SERVICE_BASEURL", "https://review.example.com/")
	t.Setenv("RESUMEREVIEW_EXPORT_DESTINATION", "s3")
	t.Setenv("RESUMEREVIEW_EXPORT_S3_BUCKET", "reports")

	config := Default()
	assert.Equal(t, "https://review.example.com", config.Service.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, "s3", config.Export.Destination)
	assert.Equal(t, "reports", config.Export.S3.Bucket)
	assert.NoError(t, config.Validate())
}

func TestLegacyAPIKeyFallback(t *testing.T) {
	t.Setenv("RESUME_ANALYZER_API_KEY", " legacy-key ")

	config := Default()
	assert.Equal(t, "legacy-key", config.Service.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:     "relative base URL",
			mutate:   func(c *Config) { c.Service.BaseURL = "localhost:3001" },
			errorMsg: "baseURL",
		},
		{
			name:     "unsupported scheme",
			mutate:   func(c *Config) { c.Service.BaseURL = "ftp://example.com" },
			errorMsg: "scheme must be http or https",
		},
		{
			name:     "analyze path without slash",
			mutate:   func(c *Config) { c.Service.AnalyzePath = "api/upload-resume" },
			errorMsg: "analyzePath",
		},
		{
			name:     "report path without placeholder",
			mutate:   func(c *Config) { c.Service.ReportPath = "/api/feedback/download" },
			errorMsg: "{feedbackId}",
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Service.Timeout = 0 },
			errorMsg: "timeout must be positive",
		},
		{
			name:     "zero export timeout",
			mutate:   func(c *Config) { c.Service.ExportTimeout = 0 },
			errorMsg: "exportTimeout must be positive",
		},
		{
			name: "rate limit enabled without budget",
			mutate: func(c *Config) {
				c.Service.RateLimit.Enabled = true
				c.Service.RateLimit.RequestsPerMin = 0
			},
			errorMsg: "requestsPerMin",
		},
		{
			name:     "failure threshold out of range",
			mutate:   func(c *Config) { c.Service.CircuitBreaker.FailureThreshold = 1.5 },
			errorMsg: "failureThreshold",
		},
		{
			name:     "empty export name",
			mutate:   func(c *Config) { c.Export.FileName = "  " },
			errorMsg: "fileName is required",
		},
		{
			name:     "s3 without bucket",
			mutate:   func(c *Config) { c.Export.Destination = "s3" },
			errorMsg: "bucket is required",
		},
		{
			name:     "unknown destination",
			mutate:   func(c *Config) { c.Export.Destination = "ftp" },
			errorMsg: "invalid export destination",
		},
		{
			name:     "unknown spool",
			mutate:   func(c *Config) { c.Export.Spool = "disk" },
			errorMsg: "invalid export spool",
		},
		{
			name:     "default format not supported",
			mutate:   func(c *Config) { c.App.DefaultFormat = "html" },
			errorMsg: "invalid default format",
		},
		{
			name:     "bad TLS mode",
			mutate:   func(c *Config) { c.Service.TLS.Mode = "disabled" },
			errorMsg: "TLS configuration error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestReportPathFor(t *testing.T) {
	svc := ServiceConfig{ReportPath: "/api/feedback/{feedbackId}/download"}

	assert.Equal(t, "/api/feedback/abc123/download", svc.ReportPathFor("abc123"))
	assert.Equal(t, "/api/feedback/a%2Fb/download", svc.ReportPathFor("a/b"))
}

func TestApplyFallbacks_NormalizesAccept(t *testing.T) {
	config := &Config{Intake: IntakeConfig{Accept: []string{"PDF", ".Docx", " txt "}}}
	config.applyFallbacks()

	assert.Equal(t, []string{".pdf", ".docx", ".txt"}, config.Intake.Accept)
}
