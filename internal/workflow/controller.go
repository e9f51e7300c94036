package workflow

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"resumereview/internal/api"
	"resumereview/internal/errors"
	"resumereview/internal/export"
	"resumereview/internal/intake"
	"resumereview/internal/notify"
	"resumereview/internal/observability"
	"resumereview/internal/types"
	"resumereview/internal/utils"
)

// State is the phase of the analysis workflow
type State int

const (
	Idle State = iota
	Loading
	Displayed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Displayed:
		return "displayed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User-facing notification text
const (
	TitleError            = "Error"
	TitleAnalysisComplete = "Analysis Complete"
	DescAnalyzeFailed     = "Failed to analyze resume. Please try again."
)

var (
	// ErrBusy rejects a request while another one is in flight
	ErrBusy = errors.NewStateError(errors.ErrCodeSubmissionBusy, "a request is already in flight", nil)
	// ErrClosed rejects work after Close
	ErrClosed = errors.NewStateError(errors.ErrCodeControllerClosed, "controller is closed", nil)
)

// Analyzer submits a resume and returns its feedback
type Analyzer interface {
	Analyze(ctx context.Context, filename string, body io.Reader) (*types.Feedback, error)
}

// Exporter saves the report for displayed feedback
type Exporter interface {
	Export(ctx context.Context, feedback *types.Feedback) (export.Result, error)
}

// Options tunes a Controller. Zero values disable the matching limit.
type Options struct {
	Timeout       time.Duration
	ExportTimeout time.Duration
	MaxUploadSize int64
	Accept        []string
	Logger        *errors.Logger
	Metrics       *observability.Metrics
}

// Snapshot is a read-only copy of the controller state
type Snapshot struct {
	State        State
	Feedback     *types.Feedback
	Selected     intake.File
	HasSelection bool
	DragOver     bool
	Exporting    bool
}

// Controller owns the upload, analysis and export state machine.
// Network calls run outside the lock.
type Controller struct {
	mu sync.Mutex

	analyzer Analyzer
	exporter Exporter
	notifier notify.Notifier
	intake   *intake.Intake

	state    State
	feedback *types.Feedback
	closed   bool

	exporting    bool
	exportCancel context.CancelFunc
	exportDone   chan struct{}
	submitDone   chan struct{}

	baseCtx   context.Context
	cancelAll context.CancelFunc

	opts    Options
	logger  *errors.Logger
	metrics *observability.Metrics
}

// New creates a controller in the Idle state
func New(analyzer Analyzer, exporter Exporter, notifier notify.Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	return &Controller{
		analyzer:  analyzer,
		exporter:  exporter,
		notifier:  notifier,
		intake:    intake.New(opts.Accept),
		state:     Idle,
		baseCtx:   baseCtx,
		cancelAll: cancel,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Intake returns the file selection owned by the controller
func (c *Controller) Intake() *intake.Intake {
	return c.intake
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsLoading reports whether an analysis is in flight
func (c *Controller) IsLoading() bool {
	return c.State() == Loading
}

// Snapshot returns a copy of the state for presentation
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:     c.state,
		Feedback:  c.feedback,
		Exporting: c.exporting,
	}
	c.mu.Unlock()

	snap.Selected, snap.HasSelection = c.intake.Selected()
	snap.DragOver = c.intake.DragOver()
	return snap
}

// AnalyzeSelected submits the selected file
func (c *Controller) AnalyzeSelected(ctx context.Context) error {
	return c.intake.Analyze(ctx, c.Submit)
}

// Submit uploads file for analysis and blocks until the outcome is known.
// It ends in Displayed with feedback, or in Idle with an error notification.
// An export of the previous feedback is cancelled before the upload starts.
// Cancellation through ctx or Close ends in Idle without a notification.
func (c *Controller) Submit(ctx context.Context, file intake.File) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Loading {
		c.mu.Unlock()
		c.logger.Debug("Submission rejected while loading", "file", file.Name)
		return ErrBusy
	}
	c.feedback = nil
	c.intake.Clear()
	c.state = Loading
	done := make(chan struct{})
	c.submitDone = done
	exportCancel, exportDone := c.exportCancel, c.exportDone
	c.mu.Unlock()
	defer close(done)

	if exportCancel != nil {
		c.logger.Debug("Cancelling export of previous feedback", "file", file.Name)
		exportCancel()
		<-exportDone
	}

	reqCtx, cancel := c.requestContext(ctx, c.opts.Timeout)
	defer cancel()

	c.logger.Info("Submitting resume", "file", file.Name, "size", file.Size)
	start := time.Now()
	feedback, err := c.analyze(reqCtx, file)

	c.mu.Lock()
	if err != nil {
		c.state = Idle
		c.feedback = nil
	} else {
		c.state = Displayed
		c.feedback = feedback
	}
	closed := c.closed
	c.mu.Unlock()

	if err != nil {
		if closed || errors.IsCanceled(err) || errors.IsCanceled(reqCtx.Err()) {
			c.logger.Debug("Resume analysis cancelled", "file", file.Name, "error", err)
			c.metrics.RecordAnalysis(ctx, "cancelled", 0, 0)
			return err
		}
		c.logger.LogError(err, "Resume analysis failed", "file", file.Name, "duration", time.Since(start))
		c.metrics.RecordAnalysis(ctx, "failed", 0, 0)
		c.notifier.Notify(notify.Failure(TitleError, failureDescription(err)))
		return err
	}

	c.logger.Info("Resume analysis displayed",
		"file", file.Name,
		"feedback_id", feedback.ID,
		"score", feedback.Analysis.Score,
		"duration", time.Since(start))
	c.metrics.RecordAnalysis(ctx, "displayed", feedback.Analysis.Score, feedback.Analysis.ATSAnalysis.Score)
	c.notifier.Notify(notify.Info(TitleAnalysisComplete, ""))
	return nil
}

func (c *Controller) analyze(ctx context.Context, file intake.File) (*types.Feedback, error) {
	if c.opts.MaxUploadSize > 0 && file.Size > c.opts.MaxUploadSize {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("file is %s, the limit is %s",
				utils.FormatFileSize(file.Size), utils.FormatFileSize(c.opts.MaxUploadSize)), nil)
	}

	body, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	feedback, err := c.analyzer.Analyze(ctx, file.Name, body)
	if err != nil {
		return nil, err
	}
	if !feedback.Valid() {
		return nil, errors.NewServiceError(errors.ErrCodeMalformedResponse,
			"analysis is missing the analysis or feedback ID", nil)
	}
	return feedback, nil
}

// failureDescription prefers the service's own message for logical failures
func failureDescription(err error) string {
	if msg := api.RejectionMessage(err); msg != "" {
		return msg
	}
	return DescAnalyzeFailed
}

// Reset clears feedback and selection and returns to Idle. It is rejected
// while an analysis is in flight and cancels any running export.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state == Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.feedback = nil
	c.state = Idle
	c.intake.Clear()
	cancel, done := c.exportCancel, c.exportDone
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Export saves the report for the displayed feedback. The workflow state is
// unchanged whatever the outcome.
func (c *Controller) Export(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.exporting {
		c.mu.Unlock()
		return ErrBusy
	}
	feedback := c.feedback
	exportCtx, cancel := c.requestContext(ctx, c.opts.ExportTimeout)
	done := make(chan struct{})
	c.exporting = true
	c.exportCancel = cancel
	c.exportDone = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.exporting = false
		c.exportCancel = nil
		c.exportDone = nil
		c.mu.Unlock()
		cancel()
		close(done)
	}()

	_, err := c.exporter.Export(exportCtx, feedback)
	return err
}

// Close cancels in-flight work and waits for a running submission to settle
// and a running export to release its artifact. Later submissions and
// exports return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	exportDone, submitDone := c.exportDone, c.submitDone
	c.mu.Unlock()

	c.cancelAll()
	if exportDone != nil {
		<-exportDone
	}
	if submitDone != nil {
		<-submitDone
	}
	return nil
}

// requestContext derives a per-request context that also ends on Close
func (c *Controller) requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var reqCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(c.baseCtx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}
