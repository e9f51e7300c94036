package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	SpoolFile   = "file"
	SpoolMemory = "memory"
)

// Artifact is a downloaded report held locally until it has been saved.
// Release frees it and is safe to call any number of times.
type Artifact struct {
	size        int64
	contentType string

	file *os.File
	data []byte

	once       sync.Once
	released   atomic.Bool
	releaseErr error
}

// spoolArtifact copies r into a temp file or memory buffer
func spoolArtifact(ctx context.Context, r io.Reader, mode, dir, contentType string) (*Artifact, error) {
	src := &ctxReader{ctx: ctx, r: r}

	if mode == SpoolMemory {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, src); err != nil {
			return nil, fmt.Errorf("failed to buffer report: %w", err)
		}
		return &Artifact{size: int64(buf.Len()), data: buf.Bytes(), contentType: contentType}, nil
	}

	f, err := os.CreateTemp(dir, "resumereview-report-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to spool report: %w", err)
	}
	return &Artifact{size: n, file: f, contentType: contentType}, nil
}

// Size returns the payload size in bytes
func (a *Artifact) Size() int64 { return a.size }

// ContentType returns the type the service declared
func (a *Artifact) ContentType() string { return a.contentType }

// Path returns the spool file, or "" for memory artifacts
func (a *Artifact) Path() string {
	if a.file == nil {
		return ""
	}
	return a.file.Name()
}

// Reader returns a fresh reader over the whole payload
func (a *Artifact) Reader() (*io.SectionReader, error) {
	if a.released.Load() {
		return nil, fmt.Errorf("artifact already released")
	}
	if a.file != nil {
		return io.NewSectionReader(a.file, 0, a.size), nil
	}
	return io.NewSectionReader(bytes.NewReader(a.data), 0, a.size), nil
}

// Release closes and removes the spool
func (a *Artifact) Release() error {
	a.once.Do(func() {
		a.released.Store(true)
		if a.file != nil {
			name := a.file.Name()
			closeErr := a.file.Close()
			removeErr := os.Remove(name)
			if removeErr != nil && !os.IsNotExist(removeErr) {
				a.releaseErr = removeErr
			} else if closeErr != nil {
				a.releaseErr = closeErr
			}
		}
		a.data = nil
	})
	return a.releaseErr
}

// Released reports whether Release has run
func (a *Artifact) Released() bool {
	return a.released.Load()
}

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
