package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"resumereview/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	n := Info("Analysis Complete", "")
	assert.Equal(t, VariantDefault, n.Variant)
	assert.Equal(t, "Analysis Complete", n.String())

	f := Failure("Error", "Unsupported format")
	assert.Equal(t, VariantDestructive, f.Variant)
	assert.Equal(t, "Error: Unsupported format", f.String())
}

func TestConsolePlain(t *testing.T) {
	var out, logs bytes.Buffer
	c := NewConsole(&out, errors.NewLoggerWithWriter(&logs, slog.LevelDebug), true)

	c.Notify(Failure("Export Failed", "Could not export PDF. Please try again."))
	c.Notify(Info("Export Complete", "saved to ./AI-Resume-Feedback.pdf"))

	assert.Equal(t,
		"Export Failed: Could not export PDF. Please try again.\nExport Complete: saved to ./AI-Resume-Feedback.pdf\n",
		out.String())
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), `"title":"Export Complete"`)
}

func TestConsoleStyled(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, false)

	c.Notify(Failure("Error", "Failed to analyze resume. Please try again."))
	line := out.String()
	assert.Contains(t, line, "Error")
	assert.Contains(t, line, "Failed to analyze resume. Please try again.")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestConsoleNilWriter(t *testing.T) {
	c := NewConsole(nil, nil, false)
	assert.NotPanics(t, func() { c.Notify(Info("x", "")) })
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_, ok := r.Last()
	assert.False(t, ok)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Notify(Info("Analysis Complete", ""))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())

	r.Notify(Failure("Error", "boom"))
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "boom", last.Description)

	all := r.All()
	all[0].Title = "mutated"
	assert.NotEqual(t, "mutated", r.All()[0].Title)

	r.Reset()
	assert.Zero(t, r.Len())
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b, Discard}

	m.Notify(Info("Export Complete", ""))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}
