package saver

import (
	"context"
	"fmt"
	"io"

	"resumereview/internal/config"
	"resumereview/internal/errors"
)

// Saver persists an exported report under a file name and returns where it
// ended up. Implementations never leave a partial object behind.
type Saver interface {
	Save(ctx context.Context, name string, r io.Reader) (location string, err error)
}

// New builds the saver selected by export.destination
func New(ctx context.Context, cfg config.ExportConfig, logger *errors.Logger) (Saver, error) {
	switch cfg.Destination {
	case "", "local":
		return NewLocal(cfg.Directory, cfg.Overwrite, logger)
	case "s3":
		return NewS3(ctx, cfg.S3, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown export destination: %s", cfg.Destination), nil)
	}
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func saveError(message string, cause error) *errors.AppError {
	return errors.NewIOError(errors.ErrCodeSaveFailed, message, cause)
}
