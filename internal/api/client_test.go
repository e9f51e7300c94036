package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"resumereview/internal/config"
	reviewErrors "resumereview/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
  "success": true,
  "feedbackId": "abc123",
  "analysis": {
    "score": 88,
    "summary": "Strong engineering resume",
    "strengths": ["Clear impact statements"],
    "weaknesses": [],
    "improvementSuggestions": ["Add metrics to the first role"],
    "bulletPointRewrites": [{"before": "Did stuff", "after": "Shipped X", "explanation": "Specific"}],
    "atsAnalysis": {"score": 75, "issues": [], "missingKeywords": ["Kubernetes"], "formatWarnings": []}
  }
}`

func testServiceConfig(baseURL string) config.ServiceConfig {
	return config.ServiceConfig{
		BaseURL:     baseURL,
		AnalyzePath: "/api/upload-resume",
		ReportPath:  "/api/feedback/" + config.FeedbackIDPlaceholder + "/download",
		APIKey:      "secret-key",
		UserAgent:   "resumereview-test",
	}
}

func newTestClient(t *testing.T, cfg config.ServiceConfig) *Client {
	t.Helper()
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func requireAppError(t *testing.T, err error, code string) *reviewErrors.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *reviewErrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestAnalyzeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload-resume", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "resumereview-test", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		file, header, err := r.FormFile(ResumeField)
		if assert.NoError(t, err) {
			defer func() { _ = file.Close() }()
			assert.Equal(t, "resume.pdf", header.Filename)
			assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
			data, _ := io.ReadAll(file)
			assert.Equal(t, "%PDF-1.4 resume bytes", string(data))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, successBody)
	}))
	defer server.Close()

	client := newTestClient(t, testServiceConfig(server.URL))
	feedback, err := client.Analyze(context.Background(), "/tmp/uploads/resume.pdf", strings.NewReader("%PDF-1.4 resume bytes"))
	require.NoError(t, err)

	assert.Equal(t, "abc123", feedback.ID)
	assert.Equal(t, 88, feedback.Analysis.Score)
	assert.Equal(t, 75, feedback.Analysis.ATSAnalysis.Score)
	assert.Equal(t, []string{"Kubernetes"}, feedback.Analysis.ATSAnalysis.MissingKeywords)
	assert.NotNil(t, feedback.Analysis.Weaknesses)
}

func TestAnalyzeToleratesNullEntries(t *testing.T) {
	body := `{"success": true, "feedbackId": "abc123", "analysis": {
		"score": 61,
		"strengths": ["a", null],
		"bulletPointRewrites": [null, {"before": "Did stuff", "after": "Shipped X", "explanation": null}],
		"atsAnalysis": {"score": 40, "issues": [null]}
	}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	client := newTestClient(t, testServiceConfig(server.URL))
	feedback, err := client.Analyze(context.Background(), "resume.pdf", strings.NewReader("resume"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, feedback.Analysis.Strengths)
	assert.Len(t, feedback.Analysis.BulletPointRewrites, 1)
	assert.Empty(t, feedback.Analysis.ATSAnalysis.Issues)
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      string
		wantServerMsg string
	}{
		{
			name:          "logical failure with message",
			status:        http.StatusOK,
			body:          `{"success": false, "message": "Unsupported format"}`,
			wantCode:      reviewErrors.ErrCodeAnalysisRejected,
			wantServerMsg: "Unsupported format",
		},
		{
			name:     "logical failure without message",
			status:   http.StatusOK,
			body:     `{"success": false}`,
			wantCode: reviewErrors.ErrCodeAnalysisRejected,
		},
		{
			name:          "4xx with failure envelope",
			status:        http.StatusBadRequest,
			body:          `{"success": false, "message": "File too large"}`,
			wantCode:      reviewErrors.ErrCodeAnalysisRejected,
			wantServerMsg: "File too large",
		},
		{
			name:          "5xx with failure envelope",
			status:        http.StatusInternalServerError,
			body:          `{"success": false, "message": "Analysis failed"}`,
			wantCode:      reviewErrors.ErrCodeAnalysisRejected,
			wantServerMsg: "Analysis failed",
		},
		{
			name:     "4xx without envelope",
			status:   http.StatusNotFound,
			body:     `not found`,
			wantCode: reviewErrors.ErrCodeUnexpectedStatus,
		},
		{
			name:     "5xx without envelope",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantCode: reviewErrors.ErrCodeUnexpectedStatus,
		},
		{
			name:     "invalid JSON",
			status:   http.StatusOK,
			body:     `{"success": tru`,
			wantCode: reviewErrors.ErrCodeMalformedResponse,
		},
		{
			name:     "wrong field types",
			status:   http.StatusOK,
			body:     `{"success": "yes"}`,
			wantCode: reviewErrors.ErrCodeMalformedResponse,
		},
		{
			name:     "success without feedback ID",
			status:   http.StatusOK,
			body:     `{"success": true, "analysis": {"score": 50}}`,
			wantCode: reviewErrors.ErrCodeMalformedResponse,
		},
		{
			name:     "success without analysis",
			status:   http.StatusOK,
			body:     `{"success": true, "feedbackId": "abc123"}`,
			wantCode: reviewErrors.ErrCodeMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, testServiceConfig(server.URL))
			feedback, err := client.Analyze(context.Background(), "resume.txt", strings.NewReader("plain text resume"))

			assert.Nil(t, feedback)
			requireAppError(t, err, tt.wantCode)
			assert.Equal(t, tt.wantServerMsg, RejectionMessage(err))
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, testServiceConfig(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Analyze(ctx, "resume.pdf", strings.NewReader("data"))
	appErr := requireAppError(t, err, reviewErrors.ErrCodeNetworkTimeout)
	assert.Equal(t, reviewErrors.ErrorTypeNetwork, appErr.Type)
}

func TestAnalyzeTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, testServiceConfig(url))
	_, err := client.Analyze(context.Background(), "resume.pdf", strings.NewReader("data"))
	requireAppError(t, err, reviewErrors.ErrCodeRequestFailed)
	assert.Empty(t, RejectionMessage(err))
}

func TestCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testServiceConfig(server.URL)
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
	client := newTestClient(t, cfg)

	for range 2 {
		_, err := client.Analyze(context.Background(), "resume.pdf", strings.NewReader("data"))
		requireAppError(t, err, reviewErrors.ErrCodeUnexpectedStatus)
	}
	assert.Equal(t, "open", client.BreakerStates()["analyze"])
	assert.Equal(t, "closed", client.BreakerStates()["report"])

	_, err := client.Analyze(context.Background(), "resume.pdf", strings.NewReader("data"))
	requireAppError(t, err, reviewErrors.ErrCodeCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the service")
}

func TestFetchReport(t *testing.T) {
	pdf := []byte("%PDF-1.7\nbinary report")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/feedback/abc123/download", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	}))
	defer server.Close()

	client := newTestClient(t, testServiceConfig(server.URL))
	report, err := client.FetchReport(context.Background(), "abc123")
	require.NoError(t, err)
	defer func() { _ = report.Body.Close() }()

	data, err := io.ReadAll(report.Body)
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.NotEmpty(t, report.RequestID)
}

func TestFetchReportEscapesID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/feedback/a%2Fb%20c/download", r.URL.EscapedPath())
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := newTestClient(t, testServiceConfig(server.URL))
	report, err := client.FetchReport(context.Background(), "a/b c")
	require.NoError(t, err)
	_ = report.Body.Close()
}

func TestFetchReportFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"not found", http.StatusNotFound, reviewErrors.ErrCodeUnexpectedStatus},
		{"server error", http.StatusInternalServerError, reviewErrors.ErrCodeUnexpectedStatus},
		{"forbidden", http.StatusForbidden, reviewErrors.ErrCodeUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, testServiceConfig(server.URL))
			report, err := client.FetchReport(context.Background(), "abc123")
			assert.Nil(t, report)
			appErr := requireAppError(t, err, tt.wantCode)
			assert.Equal(t, tt.status, appErr.Context["status_code"])
		})
	}
}

func TestFetchReportRequiresID(t *testing.T) {
	client := newTestClient(t, testServiceConfig("http://127.0.0.1:1"))
	_, err := client.FetchReport(context.Background(), "")
	requireAppError(t, err, reviewErrors.ErrCodeMissingFeedbackID)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.ServiceConfig{})
	requireAppError(t, err, reviewErrors.ErrCodeInvalidConfig)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	cfg := testServiceConfig("http://127.0.0.1:1")
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1}
	client := newTestClient(t, cfg)

	// Drain the single token so the next call has to wait a full minute.
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.FetchReport(ctx, "abc123")
	require.Error(t, err)
	var appErr *reviewErrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, reviewErrors.ErrorTypeNetwork, appErr.Type)
}

func TestBuildTLSConfig(t *testing.T) {
	cfg, err := BuildTLSConfig(config.TLSConfig{Mode: "system", MinVersion: "1.3", ServerName: "api.example.com"})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0304), cfg.MinVersion)
	assert.Equal(t, "api.example.com", cfg.ServerName)
	assert.Nil(t, cfg.RootCAs)

	_, err = BuildTLSConfig(config.TLSConfig{Mode: "system", CAContent: "not a certificate"})
	assert.Error(t, err)

	_, err = BuildTLSConfig(config.TLSConfig{Mode: "mutual"})
	assert.Error(t, err)

	_, err = BuildTLSConfig(config.TLSConfig{Mode: "mutual", CertContent: "bad", KeyContent: "bad"})
	assert.Error(t, err)
}

func BenchmarkDecodeFeedback(b *testing.B) {
	raw := []byte(successBody)
	for b.Loop() {
		if _, err := decodeFeedback(raw, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}
