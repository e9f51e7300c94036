package intake

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"resumereview/internal/errors"
	"resumereview/internal/utils"
)

// DefaultAccept is the advisory list of resume formats offered for picking
var DefaultAccept = []string{".pdf", ".doc", ".docx", ".txt"}

// ErrNoFileSelected is returned by Analyze when nothing is selected
var ErrNoFileSelected = errors.NewValidationError(errors.ErrCodeNoFileSelected,
	"no file selected", nil)

// File is a handle to a local resume file chosen by the user
type File struct {
	Name    string    // Base name sent to the service
	Path    string    // Absolute path on disk
	Size    int64     // Size in bytes at selection time
	ModTime time.Time // Modification time at selection time
}

// Open stats path and returns a handle to it. Only existence and
// readability are checked; the type is never validated.
func Open(path string) (File, error) {
	if err := utils.ValidateInputFile(path); err != nil {
		code := errors.ErrCodeFileNotReadable
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) || path == "" {
			code = errors.ErrCodeFileNotFound
		}
		return File{}, errors.NewValidationError(code,
			fmt.Sprintf("Cannot use file: %s", path), err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return File{}, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot stat file: %s", path), err)
	}

	return File{
		Name:    filepath.Base(abs),
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Reader opens the file for streaming
func (f File) Reader() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", f.Path), err)
	}
	return file, nil
}

// IsZero reports whether f is the empty handle
func (f File) IsZero() bool {
	return f.Path == ""
}

func (f File) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, utils.FormatFileSize(f.Size))
}

// Submitter receives the selected file when analysis is requested
type Submitter func(ctx context.Context, file File) error

// Intake holds the current selection and the drag-over indicator.
// It is safe for concurrent use.
type Intake struct {
	mu       sync.RWMutex
	selected *File
	dragOver bool
	accept   []string
}

// New creates an intake with the given advisory accept list
func New(accept []string) *Intake {
	if len(accept) == 0 {
		accept = DefaultAccept
	}
	return &Intake{accept: slices.Clone(accept)}
}

// Accept returns the advisory extension list used for file completion
func (in *Intake) Accept() []string {
	return slices.Clone(in.accept)
}

// Matches reports whether a file name fits the advisory accept list
func (in *Intake) Matches(name string) bool {
	return utils.HasAcceptedExtension(name, in.accept)
}

// Select records a picker selection, replacing any previous one
func (in *Intake) Select(file File) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.selected = &file
	in.dragOver = false
}

// DragEnter marks a drag in progress over the drop area
func (in *Intake) DragEnter() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.dragOver = true
}

// DragLeave clears the drag indicator
func (in *Intake) DragLeave() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.dragOver = false
}

// Drop ends a drag. The first file wins; an empty drop keeps the current
// selection.
func (in *Intake) Drop(files ...File) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.dragOver = false
	if len(files) == 0 {
		return
	}
	first := files[0]
	in.selected = &first
}

// Selected returns the current selection
func (in *Intake) Selected() (File, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.selected == nil {
		return File{}, false
	}
	return *in.selected, true
}

// DragOver reports whether a drag is in progress
func (in *Intake) DragOver() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.dragOver
}

// CanAnalyze reports whether a file is selected
func (in *Intake) CanAnalyze() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.selected != nil
}

// Analyze passes the selected file to submit
func (in *Intake) Analyze(ctx context.Context, submit Submitter) error {
	file, ok := in.Selected()
	if !ok {
		return ErrNoFileSelected
	}
	return submit(ctx, file)
}

// Clear drops the selection and the drag indicator
func (in *Intake) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.selected = nil
	in.dragOver = false
}
