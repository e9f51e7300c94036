package common

import (
	"context"

	"resumereview/internal/errors"
	"resumereview/internal/intake"
	"resumereview/internal/workflow"
)

// WorkflowRunner is the part of the workflow controller a one-shot command drives
type WorkflowRunner interface {
	Submit(ctx context.Context, file intake.File) error
	Snapshot() workflow.Snapshot
	Export(ctx context.Context) error
}

// RunAnalyzeCommand submits the resume at path, writes the displayed
// feedback and optionally exports the report.
func RunAnalyzeCommand(
	ctx context.Context,
	logger *errors.Logger,
	runner WorkflowRunner,
	cmdConfig CommandConfig,
	path string,
	outputHandler *OutputHandler,
) error {
	if outputHandler == nil {
		outputHandler = NewOutputHandler(logger)
	}

	file, err := intake.Open(path)
	if err != nil {
		return err
	}

	if err := runner.Submit(ctx, file); err != nil {
		return err
	}

	snap := runner.Snapshot()
	if snap.State != workflow.Displayed || snap.Feedback == nil {
		return errors.NewStateError("NOT_DISPLAYED", "analysis finished without feedback", nil)
	}

	if err := outputHandler.HandleOutput(snap.Feedback, cmdConfig); err != nil {
		return err
	}

	if !cmdConfig.Export {
		return nil
	}
	return runner.Export(ctx)
}
