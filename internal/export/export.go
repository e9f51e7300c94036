package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ledongthuc/pdf"

	"resumereview/internal/api"
	"resumereview/internal/config"
	"resumereview/internal/errors"
	"resumereview/internal/notify"
	"resumereview/internal/observability"
	"resumereview/internal/saver"
	"resumereview/internal/types"
)

// DefaultFileName is the name a report is saved under
const DefaultFileName = "AI-Resume-Feedback.pdf"

// User-facing notification text
const (
	TitleFailed      = "Export Failed"
	TitleComplete    = "Export Complete"
	DescMissingID    = "No feedback ID found. Please re-analyze your resume."
	DescExportFailed = "Could not export PDF. Please try again."
)

// ErrMissingFeedbackID is returned when there is no analysis to export
var ErrMissingFeedbackID = errors.NewValidationError(errors.ErrCodeMissingFeedbackID,
	"no feedback ID available for export", nil)

// Fetcher retrieves the rendered report for a feedback ID
type Fetcher interface {
	FetchReport(ctx context.Context, feedbackID string) (*api.Report, error)
}

// Result describes a completed export
type Result struct {
	Location    string
	Size        int64
	Pages       int
	ContentType string
	Duration    time.Duration
}

// Exporter downloads a report and hands it to a Saver
type Exporter struct {
	fetcher     Fetcher
	saver       saver.Saver
	notifier    notify.Notifier
	fileName    string
	spool       string
	tempDir     string
	destination string
	logger      *errors.Logger
	metrics     *observability.Metrics

	// observe sees every spooled artifact; tests use it to check release
	observe func(*Artifact)
}

// NewExporter creates an exporter from the export configuration
func NewExporter(fetcher Fetcher, s saver.Saver, notifier notify.Notifier, cfg config.ExportConfig, logger *errors.Logger, metrics *observability.Metrics) *Exporter {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	fileName := cfg.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}
	spool := cfg.Spool
	if spool == "" {
		spool = SpoolFile
	}
	destination := cfg.Destination
	if destination == "" {
		destination = "local"
	}

	return &Exporter{
		fetcher:     fetcher,
		saver:       s,
		notifier:    notifier,
		fileName:    fileName,
		spool:       spool,
		destination: destination,
		logger:      logger,
		metrics:     metrics,
	}
}

// FileName returns the name reports are saved under
func (e *Exporter) FileName() string {
	return e.fileName
}

// Export saves the report for feedback. Every failure is notified and
// returned; the spooled artifact is released on every path.
func (e *Exporter) Export(ctx context.Context, feedback *types.Feedback) (Result, error) {
	if !feedback.Valid() {
		e.logger.Warn("Export requested without feedback ID")
		e.notifier.Notify(notify.Failure(TitleFailed, DescMissingID))
		return Result{}, ErrMissingFeedbackID
	}

	start := time.Now()
	result, err := e.export(ctx, feedback.ID)
	result.Duration = time.Since(start)
	e.metrics.RecordExport(ctx, e.destination, result.Size, err)

	if err != nil {
		if errors.IsCanceled(err) || errors.IsCanceled(ctx.Err()) {
			// Reset, a new submission or shutdown stopped it; nothing to report.
			e.logger.Debug("Report export cancelled", "feedback_id", feedback.ID, "error", err)
			return Result{}, err
		}
		e.logger.LogError(err, "Report export failed", "feedback_id", feedback.ID)
		e.notifier.Notify(notify.Failure(TitleFailed, DescExportFailed))
		return Result{}, err
	}

	e.logger.Info("Report exported",
		"feedback_id", feedback.ID,
		"location", result.Location,
		"bytes", result.Size,
		"pages", result.Pages,
		"duration", result.Duration)
	e.notifier.Notify(notify.Info(TitleComplete, fmt.Sprintf("Saved to %s", result.Location)))
	return result, nil
}

func (e *Exporter) export(ctx context.Context, feedbackID string) (Result, error) {
	report, err := e.fetcher.FetchReport(ctx, feedbackID)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = report.Body.Close() }()

	artifact, err := spoolArtifact(ctx, report.Body, e.spool, e.tempDir, report.ContentType)
	if err != nil {
		return Result{}, errors.NewIOError(errors.ErrCodeSaveFailed, "failed to download report", err)
	}
	if e.observe != nil {
		e.observe(artifact)
	}
	defer func() {
		if err := artifact.Release(); err != nil {
			e.logger.Warn("Failed to release report artifact", "path", artifact.Path(), "error", err)
		}
	}()

	result := Result{Size: artifact.Size(), ContentType: artifact.ContentType()}

	pages, err := inspectPDF(artifact)
	if err != nil {
		// The service decides the format; save whatever it sent.
		e.logger.Warn("Report does not look like a PDF",
			"feedback_id", feedbackID,
			"content_type", artifact.ContentType(),
			"error", err)
	}
	result.Pages = pages

	reader, err := artifact.Reader()
	if err != nil {
		return Result{}, errors.NewInternalError(errors.ErrCodeSaveFailed, "report artifact unavailable", err)
	}
	location, err := e.saver.Save(ctx, e.fileName, reader)
	if err != nil {
		return Result{}, err
	}
	result.Location = location
	return result, nil
}

// inspectPDF returns the page count of the artifact
func inspectPDF(a *Artifact) (pages int, err error) {
	if a.Size() == 0 {
		return 0, fmt.Errorf("empty report")
	}
	r, err := a.Reader()
	if err != nil {
		return 0, err
	}
	return countPages(r, a.Size())
}

// countPages guards against parser panics on malformed input
func countPages(r io.ReaderAt, size int64) (pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = 0, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
