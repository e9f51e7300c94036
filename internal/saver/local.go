package saver

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"resumereview/internal/errors"
	"resumereview/internal/utils"
)

// maxNumberedCopies bounds the "name (n).ext" search
const maxNumberedCopies = 1000

// Local writes reports into a directory on disk
type Local struct {
	Dir       string
	Overwrite bool
	logger    *errors.Logger
}

// NewLocal creates a local saver, creating dir when needed
func NewLocal(dir string, overwrite bool, logger *errors.Logger) (*Local, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.NewIOError("DIRECTORY_CREATE_FAILED",
			fmt.Sprintf("Cannot create directory: %s", dir), err)
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &Local{Dir: dir, Overwrite: overwrite, logger: logger}, nil
}

// Save writes r to a hidden partial file, syncs it and moves it into place.
// Without Overwrite an existing name gets a " (n)" suffix.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (location string, err error) {
	cleanName, err := utils.SanitizeFileName(name)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid export file name", err)
	}
	if err := ctx.Err(); err != nil {
		return "", saveError("export cancelled", err)
	}

	tmp, err := os.CreateTemp(l.Dir, "."+cleanName+".partial-*")
	if err != nil {
		return "", saveError(fmt.Sprintf("Cannot create file in %s", l.Dir), err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				l.logger.Warn("Failed to remove partial file", "file", tmpPath, "error", rmErr)
			}
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", saveError("Failed to write report", err)
	}
	if err = tmp.Sync(); err != nil {
		return "", saveError("Failed to flush report", err)
	}
	if err = tmp.Close(); err != nil {
		return "", saveError("Failed to close report", err)
	}

	final, err := l.commit(tmpPath, cleanName)
	if err != nil {
		return "", err
	}

	l.logger.Info("Report saved", "file", final, "bytes", n)
	return final, nil
}

// commit moves the finished temp file to its final name
func (l *Local) commit(tmpPath, name string) (string, error) {
	if l.Overwrite {
		final := filepath.Join(l.Dir, name)
		if err := os.Rename(tmpPath, final); err != nil {
			return "", saveError(fmt.Sprintf("Cannot write file: %s", final), err)
		}
		return final, nil
	}

	for n := range maxNumberedCopies {
		final := filepath.Join(l.Dir, utils.NumberedFileName(name, n))

		// Link refuses to replace an existing file, unlike Rename.
		err := os.Link(tmpPath, final)
		if err == nil {
			if rmErr := os.Remove(tmpPath); rmErr != nil {
				l.logger.Warn("Failed to remove temp file", "file", tmpPath, "error", rmErr)
			}
			return final, nil
		}
		if stdErrors.Is(err, fs.ErrExist) {
			continue
		}

		// Filesystems without hard links.
		if _, statErr := os.Stat(final); statErr == nil {
			continue
		}
		if err := os.Rename(tmpPath, final); err != nil {
			return "", saveError(fmt.Sprintf("Cannot write file: %s", final), err)
		}
		return final, nil
	}

	return "", saveError(fmt.Sprintf("Too many copies of %s in %s", name, l.Dir), nil)
}
