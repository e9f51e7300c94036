package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"resumereview/internal/config"
	reviewErrors "resumereview/internal/errors"
	"resumereview/internal/observability"
	"resumereview/internal/types"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

const (
	// ResumeField is the multipart part name the service reads the upload from
	ResumeField = "resume"

	// maxEnvelopeSize bounds how much of an analysis response is buffered
	maxEnvelopeSize = 4 << 20

	serverMessageKey = "server_message"
)

// Report is a streamed report payload. Callers must close Body.
type Report struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	RequestID     string
}

// Client talks to the remote analysis service
type Client struct {
	cfg        config.ServiceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	analyzeCB  *serviceBreaker
	reportCB   *serviceBreaker
	logger     *reviewErrors.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	certs      *ClientCertificates
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient     *http.Client
	logger         *reviewErrors.Logger
	metrics        *observability.Metrics
	tracerProvider trace.TracerProvider
}

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the client logger
func WithLogger(l *reviewErrors.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics sets the metrics sink. Nil is allowed.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithTracerProvider sets the provider for client spans and otelhttp
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracerProvider = tp }
}

// NewClient creates a service client from configuration
func NewClient(cfg config.ServiceConfig, opts ...Option) (*Client, error) {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = reviewErrors.NewNopLogger()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = noop.NewTracerProvider()
	}

	if cfg.BaseURL == "" {
		return nil, reviewErrors.NewConfigError(reviewErrors.ErrCodeInvalidConfig, "service base URL is required", nil)
	}

	var certs *ClientCertificates
	httpClient := o.httpClient
	if httpClient == nil {
		tlsConfig, clientCerts, err := buildTLS(cfg.TLS)
		if err != nil {
			return nil, reviewErrors.NewConfigError(reviewErrors.ErrCodeInvalidConfig, "failed to build TLS configuration", err)
		}
		certs = clientCerts
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = tlsConfig

		// Per-request deadlines come from the caller's context.
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(base, otelhttp.WithTracerProvider(o.tracerProvider)),
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMin > 0 {
		burst := max(cfg.RateLimit.BurstCapacity, 1)
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimit.RequestsPerMin)/60.0), burst)
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		analyzeCB:  newServiceBreaker("analyze", cfg.CircuitBreaker, o.logger, o.metrics),
		reportCB:   newServiceBreaker("report", cfg.CircuitBreaker, o.logger, o.metrics),
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     o.tracerProvider.Tracer("resumereview.api"),
		certs:      certs,
	}, nil
}

// ReloadClientCertificate replaces the mutual TLS client certificate used
// for new connections
func (c *Client) ReloadClientCertificate(certPEM, keyPEM string) error {
	if c.certs == nil {
		return reviewErrors.NewConfigError(reviewErrors.ErrCodeInvalidConfig,
			"client certificate reload requires mutual TLS", nil)
	}
	if err := c.certs.Reload(certPEM, keyPEM); err != nil {
		return reviewErrors.NewConfigError(reviewErrors.ErrCodeInvalidConfig, "invalid client certificate", err)
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Info("Client certificate reloaded")
	return nil
}

// Analyze uploads a resume and returns the feedback it produced. Failures
// are AppErrors: network type for transport problems, service type when
// the service answered but did not produce feedback.
func (c *Client) Analyze(ctx context.Context, filename string, body io.Reader) (*types.Feedback, error) {
	ctx, span := c.tracer.Start(ctx, "api.analyze")
	defer span.End()

	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("file.name", filename),
	)
	start := time.Now()

	feedback, err := c.analyze(ctx, requestID, filename, body)
	c.metrics.RecordRequest(ctx, "analyze", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.String("feedback.id", feedback.ID),
		attribute.Int("analysis.score", feedback.Analysis.Score),
	)
	c.logger.Info("Analysis received",
		"request_id", requestID,
		"feedback_id", feedback.ID,
		"score", feedback.Analysis.Score)
	return feedback, nil
}

func (c *Client) analyze(ctx context.Context, requestID, filename string, body io.Reader) (*types.Feedback, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeResumePart(mw, filename, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.AnalyzePath, pr)
	if err != nil {
		_ = pr.Close()
		return nil, reviewErrors.NewInternalError(reviewErrors.ErrCodeInvalidRequest, "failed to build analysis request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.setCommonHeaders(req, requestID)

	c.logger.Debug("Submitting resume for analysis",
		"request_id", requestID,
		"file_name", filename,
		"url", req.URL.String())

	var status *statusError
	resp, err := c.analyzeCB.Execute(func() (*http.Response, error) {
		return c.do(req)
	})
	if err != nil {
		// The breaker may reject without ever reading the body.
		_ = pr.Close()
		if !errors.As(err, &status) {
			return nil, classifyTransportError("analysis", err).WithContext("request_id", requestID)
		}
		// A 5xx that still carries a failure envelope is a logical failure.
		if rejection := rejectionFromStatus(status); rejection != nil {
			return nil, rejection.WithContext("request_id", requestID)
		}
		return nil, status.appError("analysis").WithContext("request_id", requestID)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return nil, classifyTransportError("analysis", err).WithContext("request_id", requestID)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status = &statusError{StatusCode: resp.StatusCode, Body: raw}
		if rejection := rejectionFromStatus(status); rejection != nil {
			return nil, rejection.WithContext("request_id", requestID)
		}
		return nil, status.appError("analysis").WithContext("request_id", requestID)
	}

	return decodeFeedback(raw, requestID)
}

// decodeFeedback turns a 2xx body into feedback or a service error
func decodeFeedback(raw []byte, requestID string) (*types.Feedback, error) {
	if err := validateAnalyzeResponse(raw); err != nil {
		return nil, reviewErrors.NewServiceError(reviewErrors.ErrCodeMalformedResponse,
			"analysis service returned an unexpected response", err).
			WithContext("request_id", requestID)
	}

	envelope, err := types.DecodeAnalyzeResponse(bytes.NewReader(raw))
	if err != nil {
		return nil, reviewErrors.NewServiceError(reviewErrors.ErrCodeMalformedResponse,
			"analysis service returned an unexpected response", err).
			WithContext("request_id", requestID)
	}

	if !envelope.Success {
		return nil, newRejection(envelope.Message).WithContext("request_id", requestID)
	}

	feedback := envelope.Feedback()
	if feedback == nil {
		return nil, reviewErrors.NewServiceError(reviewErrors.ErrCodeMalformedResponse,
			"analysis response is missing the analysis or feedback ID", nil).
			WithContext("request_id", requestID)
	}
	return feedback, nil
}

// FetchReport requests the rendered report for a feedback ID
func (c *Client) FetchReport(ctx context.Context, feedbackID string) (*Report, error) {
	ctx, span := c.tracer.Start(ctx, "api.fetch_report")
	defer span.End()

	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("feedback.id", feedbackID),
	)
	start := time.Now()

	report, err := c.fetchReport(ctx, requestID, feedbackID)
	c.metrics.RecordRequest(ctx, "report", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("success", true))
	return report, nil
}

func (c *Client) fetchReport(ctx context.Context, requestID, feedbackID string) (*Report, error) {
	if feedbackID == "" {
		return nil, reviewErrors.NewValidationError(reviewErrors.ErrCodeMissingFeedbackID, "feedback ID is required", nil)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.ReportPathFor(feedbackID), nil)
	if err != nil {
		return nil, reviewErrors.NewInternalError(reviewErrors.ErrCodeInvalidRequest, "failed to build report request", err)
	}
	req.Header.Set("Accept", "application/pdf, application/octet-stream")
	c.setCommonHeaders(req, requestID)

	c.logger.Debug("Requesting report",
		"request_id", requestID,
		"feedback_id", feedbackID,
		"url", req.URL.String())

	resp, err := c.reportCB.Execute(func() (*http.Response, error) {
		return c.do(req)
	})
	if err != nil {
		var status *statusError
		if errors.As(err, &status) {
			return nil, status.appError("report").WithContext("request_id", requestID)
		}
		return nil, classifyTransportError("report", err).WithContext("request_id", requestID)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, (&statusError{StatusCode: resp.StatusCode}).appError("report").
			WithContext("request_id", requestID)
	}

	return &Report{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		RequestID:     requestID,
	}, nil
}

// BreakerStates reports the circuit state per operation
func (c *Client) BreakerStates() map[string]string {
	return map[string]string{
		"analyze": c.analyzeCB.State(),
		"report":  c.reportCB.State(),
	}
}

// do performs the request and turns 5xx into breaker failures
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
		return nil, &statusError{StatusCode: resp.StatusCode, Body: body}
	}
	return resp, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return classifyTransportError("rate limiter", err)
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request, requestID string) {
	req.Header.Set("X-Request-Id", requestID)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeResumePart streams the file into the multipart body
func writeResumePart(mw *multipart.Writer, filename string, body io.Reader) error {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		ResumeField, quoteEscaper.Replace(filepath.Base(filename))))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// statusError is an HTTP status the service answered with
type statusError struct {
	StatusCode int
	Body       []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *statusError) appError(operation string) *reviewErrors.AppError {
	return reviewErrors.NewNetworkError(reviewErrors.ErrCodeUnexpectedStatus,
		fmt.Sprintf("%s request returned status %d", operation, e.StatusCode), e).
		WithContext("status_code", e.StatusCode)
}

// rejectionFromStatus returns a logical failure when a non-2xx body is a
// failure envelope with a message, nil otherwise
func rejectionFromStatus(status *statusError) *reviewErrors.AppError {
	if len(status.Body) == 0 {
		return nil
	}
	envelope, err := types.DecodeAnalyzeResponse(bytes.NewReader(status.Body))
	if err != nil || envelope.Success || envelope.Message == "" {
		return nil
	}
	return newRejection(envelope.Message).WithContext("status_code", status.StatusCode)
}

func newRejection(serverMessage string) *reviewErrors.AppError {
	err := reviewErrors.NewServiceError(reviewErrors.ErrCodeAnalysisRejected, "analysis service rejected the resume", nil)
	if serverMessage != "" {
		err.WithContext(serverMessageKey, serverMessage)
	}
	return err
}

// RejectionMessage returns the service's own message for a logical
// failure, or "" when err carries none
func RejectionMessage(err error) string {
	var appErr *reviewErrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != reviewErrors.ErrCodeAnalysisRejected {
		return ""
	}
	msg, _ := appErr.Context[serverMessageKey].(string)
	return msg
}

// classifyTransportError maps client-side failures onto network errors
func classifyTransportError(operation string, err error) *reviewErrors.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return reviewErrors.NewNetworkError(reviewErrors.ErrCodeCircuitOpen,
			fmt.Sprintf("%s service is temporarily unavailable", operation), err)
	case errors.Is(err, context.DeadlineExceeded):
		return reviewErrors.NewNetworkError(reviewErrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("%s request timed out", operation), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return reviewErrors.NewNetworkError(reviewErrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("%s request timed out", operation), err)
	}

	return reviewErrors.NewNetworkError(reviewErrors.ErrCodeRequestFailed,
		fmt.Sprintf("%s request failed", operation), err)
}
