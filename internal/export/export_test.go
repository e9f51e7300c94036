package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"resumereview/internal/api"
	"resumereview/internal/config"
	reviewErrors "resumereview/internal/errors"
	"resumereview/internal/notify"
	"resumereview/internal/saver"
	"resumereview/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF produces a minimal well-formed PDF with the given page count
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	payload []byte
	err     error
}

func (f *fakeFetcher) FetchReport(ctx context.Context, feedbackID string) (*api.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, feedbackID)
	if f.err != nil {
		return nil, f.err
	}
	return &api.Report{
		Body:          io.NopCloser(bytes.NewReader(f.payload)),
		ContentType:   "application/pdf",
		ContentLength: int64(len(f.payload)),
	}, nil
}

type recordingSaver struct {
	names []string
	data  [][]byte
	err   error
}

func (s *recordingSaver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	s.names = append(s.names, name)
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.data = append(s.data, data)
	return "/downloads/" + name, nil
}

func feedback(id string) *types.Feedback {
	return &types.Feedback{Analysis: &types.AnalysisResult{Score: 88}, ID: id}
}

func newTestExporter(t *testing.T, f Fetcher, s saver.Saver, rec *notify.Recorder, spool string) (*Exporter, *[]*Artifact) {
	t.Helper()
	e := NewExporter(f, s, rec, config.ExportConfig{Spool: spool}, nil, nil)
	e.tempDir = t.TempDir()
	var artifacts []*Artifact
	e.observe = func(a *Artifact) { artifacts = append(artifacts, a) }
	return e, &artifacts
}

func TestExportPrecondition(t *testing.T) {
	tests := []struct {
		name     string
		feedback *types.Feedback
	}{
		{"nil feedback", nil},
		{"empty ID", feedback("")},
		{"missing analysis", &types.Feedback{ID: "abc123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{payload: buildPDF(1)}
			s := &recordingSaver{}
			rec := &notify.Recorder{}
			e, _ := newTestExporter(t, fetcher, s, rec, SpoolFile)

			_, err := e.Export(context.Background(), tt.feedback)

			assert.ErrorIs(t, err, ErrMissingFeedbackID)
			assert.Empty(t, fetcher.calls, "no request without a feedback ID")
			assert.Empty(t, s.names)
			require.Equal(t, 1, rec.Len())
			last, _ := rec.Last()
			assert.Equal(t, notify.Failure(TitleFailed, DescMissingID), last)
		})
	}
}

func TestExportSuccess(t *testing.T) {
	for _, spool := range []string{SpoolFile, SpoolMemory} {
		t.Run(spool, func(t *testing.T) {
			payload := buildPDF(2)
			fetcher := &fakeFetcher{payload: payload}
			s := &recordingSaver{}
			rec := &notify.Recorder{}
			e, artifacts := newTestExporter(t, fetcher, s, rec, spool)

			result, err := e.Export(context.Background(), feedback("abc123"))
			require.NoError(t, err)

			assert.Equal(t, []string{"abc123"}, fetcher.calls)
			assert.Equal(t, []string{DefaultFileName}, s.names)
			assert.Equal(t, payload, s.data[0])
			assert.Equal(t, "/downloads/"+DefaultFileName, result.Location)
			assert.Equal(t, int64(len(payload)), result.Size)
			assert.Equal(t, 2, result.Pages)

			require.Len(t, *artifacts, 1)
			artifact := (*artifacts)[0]
			assert.True(t, artifact.Released())
			if spool == SpoolFile {
				_, statErr := os.Stat(artifact.Path())
				assert.True(t, os.IsNotExist(statErr), "spool file removed")
			}

			last, _ := rec.Last()
			assert.Equal(t, TitleComplete, last.Title)
			assert.Equal(t, notify.VariantDefault, last.Variant)
		})
	}
}

func TestExportNonPDFPayloadStillSaved(t *testing.T) {
	fetcher := &fakeFetcher{payload: []byte{0x00, 0x01, 0x02, 0xff}}
	s := &recordingSaver{}
	e, artifacts := newTestExporter(t, fetcher, s, &notify.Recorder{}, SpoolFile)

	result, err := e.Export(context.Background(), feedback("abc123"))
	require.NoError(t, err)
	assert.Zero(t, result.Pages)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0xff}, s.data[0])
	assert.True(t, (*artifacts)[0].Released())
}

func TestExportFetchFailure(t *testing.T) {
	fetchErr := reviewErrors.NewNetworkError(reviewErrors.ErrCodeUnexpectedStatus, "report request returned status 500", nil)
	fetcher := &fakeFetcher{err: fetchErr}
	s := &recordingSaver{}
	rec := &notify.Recorder{}
	e, artifacts := newTestExporter(t, fetcher, s, rec, SpoolFile)

	_, err := e.Export(context.Background(), feedback("abc123"))
	assert.ErrorIs(t, err, fetchErr)
	assert.Empty(t, s.names)
	assert.Empty(t, *artifacts)

	last, _ := rec.Last()
	assert.Equal(t, notify.Failure(TitleFailed, DescExportFailed), last)
}

func TestExportSaveFailureReleasesArtifact(t *testing.T) {
	fetcher := &fakeFetcher{payload: buildPDF(1)}
	s := &recordingSaver{err: errors.New("disk full")}
	rec := &notify.Recorder{}
	e, artifacts := newTestExporter(t, fetcher, s, rec, SpoolFile)

	_, err := e.Export(context.Background(), feedback("abc123"))
	require.Error(t, err)

	require.Len(t, *artifacts, 1)
	assert.True(t, (*artifacts)[0].Released())
	last, _ := rec.Last()
	assert.Equal(t, DescExportFailed, last.Description)
}

func TestExportCancelled(t *testing.T) {
	fetcher := &fakeFetcher{payload: buildPDF(1)}
	s := &recordingSaver{}
	notes := &notify.Recorder{}
	e, _ := newTestExporter(t, fetcher, s, notes, SpoolFile)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Export(ctx, feedback("abc123"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.names)
	assert.Zero(t, notes.Len(), "a cancelled export is not reported as a failure")

	entries, err := os.ReadDir(e.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no spool file left behind")
}

func TestExportEndToEnd(t *testing.T) {
	payload := buildPDF(3)
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/feedback/abc123/download", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write(payload)
		}
	}))
	defer server.Close()

	client, err := api.NewClient(config.ServiceConfig{
		BaseURL:    server.URL,
		ReportPath: "/api/feedback/" + config.FeedbackIDPlaceholder + "/download",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	local, err := saver.NewLocal(dir, false, nil)
	require.NoError(t, err)
	rec := &notify.Recorder{}
	e := NewExporter(client, local, rec, config.ExportConfig{}, nil, nil)
	e.tempDir = t.TempDir()

	status.Store(http.StatusInternalServerError)
	_, err = e.Export(context.Background(), feedback("abc123"))
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "non-2xx leaves no file")
	last, _ := rec.Last()
	assert.Equal(t, DescExportFailed, last.Description)

	status.Store(http.StatusOK)
	result, err := e.Export(context.Background(), feedback("abc123"))
	require.NoError(t, err)
	saved, err := os.ReadFile(result.Location)
	require.NoError(t, err)
	assert.Equal(t, payload, saved)
	assert.Equal(t, 3, result.Pages)
}

func TestArtifactReleaseOnce(t *testing.T) {
	a, err := spoolArtifact(context.Background(), strings.NewReader("payload"), SpoolFile, t.TempDir(), "")
	require.NoError(t, err)
	path := a.Path()

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.True(t, a.Released())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = a.Reader()
	assert.Error(t, err)
}

func TestCountPagesRejectsGarbage(t *testing.T) {
	_, err := countPages(strings.NewReader("not a pdf at all"), 16)
	assert.Error(t, err)
}

func BenchmarkSpoolMemory(b *testing.B) {
	payload := buildPDF(5)
	for b.Loop() {
		a, err := spoolArtifact(context.Background(), bytes.NewReader(payload), SpoolMemory, "", "application/pdf")
		if err != nil {
			b.Fatal(err)
		}
		_ = a.Release()
	}
}
