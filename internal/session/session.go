package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"resumereview/internal/common"
	"resumereview/internal/errors"
	"resumereview/internal/formatters"
	"resumereview/internal/intake"
	"resumereview/internal/workflow"
)

// Options configures a Session
type Options struct {
	// Format is the default for show and for the automatic display after
	// a successful analysis
	Format string
	Prompt string
	// Watcher feeds drag and drop gestures from a directory. Optional.
	Watcher *intake.DropWatcher
	Logger  *errors.Logger
}

type result struct {
	op  string
	err error
}

// Session is an interactive line-based front end for a workflow controller.
// Input, drop events and request completions are handled on one goroutine;
// submissions and exports run in the background so reset and status stay
// responsive while a request is in flight.
type Session struct {
	ctrl    *workflow.Controller
	in      io.Reader
	out     io.Writer
	output  *common.OutputHandler
	format  string
	prompt  string
	watcher *intake.DropWatcher
	logger  *errors.Logger

	results chan result
	done    chan struct{}
	pending int
	wg      sync.WaitGroup
}

// New creates a session reading commands from in and writing to out
func New(ctrl *workflow.Controller, in io.Reader, out io.Writer, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	format := opts.Format
	if format == "" {
		format = "terminal"
	}
	prompt := opts.Prompt
	if prompt == "" {
		prompt = "resume> "
	}
	return &Session{
		ctrl:    ctrl,
		in:      in,
		out:     out,
		output:  common.NewOutputHandlerWithWriter(logger, out),
		format:  format,
		prompt:  prompt,
		watcher: opts.Watcher,
		logger:  logger,
		results: make(chan result, 2),
		done:    make(chan struct{}),
	}
}

// Run processes input until quit, end of input or ctx is done. At end of
// input it first lets running requests finish. It closes the controller and
// waits for background requests before returning.
func (s *Session) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.readLines(ctx, lines, readErr)

	var drops <-chan intake.DropEvent
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return err
		}
		defer func() {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn("Failed to stop drop watcher", "error", err)
			}
		}()
		drops = s.watcher.Events()
		s.printf("Watching %s for dropped files\n", s.watcher.Dir())
	}

	defer s.shutdown()

	s.printf("Type 'help' for commands.\n")
	s.printPrompt()
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil || s.pending == 0 {
					return err
				}
				lines = nil
				continue
			}
			if quit := s.handleLine(ctx, line); quit {
				return nil
			}
			s.printPrompt()

		case ev, ok := <-drops:
			if !ok {
				drops = nil
				continue
			}
			s.handleDrop(ev)

		case res := <-s.results:
			s.pending--
			s.handleResult(res, lines != nil)
			if lines == nil && s.pending == 0 {
				return nil
			}
		}
	}
}

func (s *Session) readLines(ctx context.Context, lines chan<- string, readErr chan<- error) {
	defer close(lines)
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			readErr <- nil
			return
		case <-s.done:
			readErr <- nil
			return
		}
	}
	readErr <- scanner.Err()
}

func (s *Session) shutdown() {
	if err := s.ctrl.Close(); err != nil {
		s.logger.Warn("Failed to close controller", "error", err)
	}
	close(s.done)
	s.wg.Wait()
}

// handleLine runs one command and reports whether the session should end
func (s *Session) handleLine(ctx context.Context, line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		s.printf("%v\n", err)
		return false
	}

	switch cmd.Name {
	case "":
	case "help":
		s.printf("%s", helpText())
	case "quit":
		return true
	case "select":
		s.selectFile(cmd.Args)
	case "drop":
		s.dropFiles(cmd.Args)
	case "analyze":
		s.analyze(ctx)
	case "show":
		s.show(cmd.Args)
	case "export":
		s.export(ctx)
	case "reset":
		if err := s.ctrl.Reset(); err != nil {
			s.printf("Cannot reset while an analysis is running.\n")
			return false
		}
		s.printf("Cleared.\n")
	case "status":
		s.status()
	}
	return false
}

func (s *Session) selectFile(args []string) {
	if len(args) != 1 {
		s.printf("usage: select <file>\n")
		return
	}
	file, err := intake.Open(args[0])
	if err != nil {
		s.printf("%s\n", describe(err))
		return
	}
	s.ctrl.Intake().Select(file)
	s.announceSelection(file)
}

func (s *Session) dropFiles(args []string) {
	if len(args) == 0 {
		s.printf("usage: drop <file>...\n")
		return
	}
	files := make([]intake.File, 0, len(args))
	for _, arg := range args {
		file, err := intake.Open(arg)
		if err != nil {
			s.printf("%s\n", describe(err))
			continue
		}
		files = append(files, file)
	}
	s.ctrl.Intake().Drop(files...)
	if file, ok := s.ctrl.Intake().Selected(); ok && len(files) > 0 {
		s.announceSelection(file)
	}
}

func (s *Session) handleDrop(ev intake.DropEvent) {
	ev.Apply(s.ctrl.Intake())
	switch ev.Kind {
	case intake.DropEnter:
		s.printf("\nDrop detected...\n")
	case intake.DropLeave:
		s.printf("\nDrop cancelled.\n")
	case intake.DropFiles:
		if file, ok := s.ctrl.Intake().Selected(); ok && len(ev.Files) > 0 {
			s.printf("\n")
			s.announceSelection(file)
		}
	}
	s.printPrompt()
}

func (s *Session) announceSelection(file intake.File) {
	s.printf("Selected %s\n", file)
	if !s.ctrl.Intake().Matches(file.Name) {
		s.printf("Note: %s is not one of %s; the service may reject it.\n",
			file.Name, strings.Join(s.ctrl.Intake().Accept(), ", "))
	}
}

func (s *Session) analyze(ctx context.Context) {
	if !s.ctrl.Intake().CanAnalyze() {
		s.printf("No file selected.\n")
		return
	}
	if s.ctrl.IsLoading() {
		s.printf("An analysis is already running.\n")
		return
	}
	file, _ := s.ctrl.Intake().Selected()
	s.printf("Analyzing %s...\n", file.Name)
	s.background(ctx, "analyze", s.ctrl.AnalyzeSelected)
}

func (s *Session) export(ctx context.Context) {
	if s.ctrl.Snapshot().Exporting {
		s.printf("An export is already running.\n")
		return
	}
	s.printf("Exporting report...\n")
	s.background(ctx, "export", s.ctrl.Export)
}

func (s *Session) background(ctx context.Context, op string, fn func(context.Context) error) {
	s.pending++
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn(ctx)
		select {
		case s.results <- result{op: op, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) handleResult(res result, interactive bool) {
	switch {
	case res.err != nil:
		s.logger.Debug("Background request finished with error", "op", res.op, "error", res.err)
		if errors.IsCode(res.err, errors.ErrCodeSubmissionBusy) || errors.IsCode(res.err, errors.ErrCodeNoFileSelected) {
			s.printf("\n%s\n", describe(res.err))
		}
	case res.op == "analyze":
		s.printf("\n")
		s.show(nil)
	}
	if interactive {
		s.printPrompt()
	}
}

func (s *Session) show(args []string) {
	format := s.format
	if len(args) > 0 {
		format = args[0]
	}
	if err := common.ValidateOutputFormat(format, formatters.GlobalRegistry.GetSupportedFormats()); err != nil {
		s.printf("%v\n", err)
		return
	}

	snap := s.ctrl.Snapshot()
	if snap.Feedback == nil {
		s.printf("Nothing to show yet.\n")
		return
	}
	if err := s.output.HandleOutput(snap.Feedback, common.CommandConfig{OutputFormat: format}); err != nil {
		s.printf("%s\n", describe(err))
	}
}

func (s *Session) status() {
	snap := s.ctrl.Snapshot()
	s.printf("State: %s\n", snap.State)
	if snap.HasSelection {
		s.printf("Selected: %s\n", snap.Selected)
	}
	if snap.DragOver {
		s.printf("Drop in progress\n")
	}
	if snap.Feedback != nil {
		s.printf("Feedback: %s (score %d)\n", snap.Feedback.ID, snap.Feedback.Analysis.Score)
	}
	if snap.Exporting {
		s.printf("Export running\n")
	}
}

func (s *Session) printPrompt() {
	s.printf("%s", s.prompt)
}

func (s *Session) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(s.out, format, args...); err != nil {
		s.logger.Debug("Failed to write session output", "error", err)
	}
}

// describe returns the message of an application error or the error text
func describe(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
