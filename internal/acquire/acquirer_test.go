package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotview/stickercheck/internal/browser"
	"github.com/lotview/stickercheck/internal/resilience"
)

// fakeDOM serves canned elements and screenshot bytes.
type fakeDOM struct {
	elements map[string][]browser.Element
	shot     []byte
	closed   bool
}

func (d *fakeDOM) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	return d.elements[selector], nil
}

func (d *fakeDOM) Screenshot(context.Context) ([]byte, error) {
	return d.shot, nil
}

func (d *fakeDOM) Close() error {
	d.closed = true
	return nil
}

type fakeRenderer struct {
	dom *fakeDOM
}

func (r *fakeRenderer) RenderPage(context.Context, string) (browser.DOM, error) {
	return r.dom, nil
}

func newTestAcquirer(t *testing.T, renderer browser.Renderer) *Acquirer {
	t.Helper()
	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1}, nil)
	return NewAcquirer(http.DefaultClient, renderer, exec, t.TempDir(), 0, nil)
}

func TestAcquireLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sticker.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	a := newTestAcquirer(t, nil)
	doc, err := a.Acquire(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, doc.Path)
	assert.False(t, doc.Remote)
	assert.Equal(t, ModalityDocument, doc.Modality)
}

func TestAcquireLocalImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sticker.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	a := newTestAcquirer(t, nil)
	doc, err := a.Acquire(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ModalityImage, doc.Modality)
}

func TestAcquireLocalMissing(t *testing.T) {
	a := newTestAcquirer(t, nil)

	_, err := a.Acquire(context.Background(), "/nonexistent/sticker.pdf")

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Contains(t, acqErr.Error(), "does not exist")
}

func TestAcquireLocalDirectory(t *testing.T) {
	a := newTestAcquirer(t, nil)

	_, err := a.Acquire(context.Background(), t.TempDir())

	var acqErr *Error
	assert.ErrorAs(t, err, &acqErr)
}

func TestAcquireRemotePDF(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test"))
	}))
	defer srv.Close()

	a := newTestAcquirer(t, nil)
	origin := srv.URL + "/stickers/vin123.pdf"

	doc, err := a.Acquire(context.Background(), origin)
	require.NoError(t, err)

	assert.True(t, doc.Remote)
	assert.Equal(t, ModalityDocument, doc.Modality)
	assert.Equal(t, ".pdf", filepath.Ext(doc.Path))

	body, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(body))

	// Idempotent per URL: the second acquisition is a cache hit.
	again, err := a.Acquire(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, doc.Path, again.Path)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAcquireRemoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAcquirer(t, nil)

	_, err := a.Acquire(context.Background(), srv.URL+"/gone.pdf")

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, http.StatusNotFound, acqErr.Status)
}

func TestAcquireRemoteRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 3, InitialBackoff: 1}, nil)
	a := NewAcquirer(http.DefaultClient, nil, exec, t.TempDir(), 0, nil)

	doc, err := a.Acquire(context.Background(), srv.URL+"/flaky.pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, ModalityDocument, doc.Modality)
}

func TestAcquireRemoteOversizedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(make([]byte, 256))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1}, nil)
	cacheDir := t.TempDir()
	a := NewAcquirer(http.DefaultClient, nil, exec, cacheDir, 64, nil)

	_, err := a.Acquire(context.Background(), srv.URL+"/huge.pdf")

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Contains(t, acqErr.Reason, "64 byte size limit")

	// Nothing gets cached for a rejected document.
	matches, err := filepath.Glob(filepath.Join(cacheDir, "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAcquireRemoteWithinSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1}, nil)
	a := NewAcquirer(http.DefaultClient, nil, exec, t.TempDir(), 64, nil)

	doc, err := a.Acquire(context.Background(), srv.URL+"/fits.pdf")
	require.NoError(t, err)

	body, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestNewAcquirerDefaultsExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	// A nil executor falls back to the default retry policy instead of
	// panicking on the first remote fetch.
	a := NewAcquirer(nil, nil, nil, t.TempDir(), 0, nil)
	require.NotNil(t, a.exec)

	doc, err := a.Acquire(context.Background(), srv.URL+"/sticker.pdf")
	require.NoError(t, err)
	assert.Equal(t, ModalityDocument, doc.Modality)
}

func TestAcquireViewerPageWithEmbeddedPDF(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/viewer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><embed type='application/pdf' src='/real.pdf'></html>"))
	})
	mux.HandleFunc("/real.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 embedded"))
	})

	dom := &fakeDOM{elements: map[string][]browser.Element{
		"embed[type='application/pdf']": {browser.NewElement(map[string]string{"src": "/real.pdf"})},
	}}
	a := newTestAcquirer(t, &fakeRenderer{dom: dom})

	doc, err := a.Acquire(context.Background(), srv.URL+"/viewer")
	require.NoError(t, err)

	assert.Equal(t, ModalityDocument, doc.Modality)
	body, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 embedded", string(body))
	assert.True(t, dom.closed)
}

func TestAcquireViewerPageScreenshotFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><canvas></canvas></html>"))
	}))
	defer srv.Close()

	dom := &fakeDOM{shot: []byte("fake png bytes")}
	a := newTestAcquirer(t, &fakeRenderer{dom: dom})

	doc, err := a.Acquire(context.Background(), srv.URL+"/canvas-viewer")
	require.NoError(t, err)

	// No embedded reference means the rendered page itself is captured.
	assert.Equal(t, ModalityImage, doc.Modality)
	assert.Equal(t, ".png", filepath.Ext(doc.Path))
	body, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "fake png bytes", string(body))
}

func TestAcquireViewerPageWithoutRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	a := newTestAcquirer(t, nil)

	_, err := a.Acquire(context.Background(), srv.URL+"/viewer")

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Contains(t, acqErr.Reason, "no renderer")
}

func TestCacheKeyStable(t *testing.T) {
	assert.Equal(t, cacheKey("https://a.example/x"), cacheKey("https://a.example/x"))
	assert.NotEqual(t, cacheKey("https://a.example/x"), cacheKey("https://a.example/y"))
	assert.Len(t, cacheKey("anything"), 16)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		origin      string
		contentType string
		want        string
	}{
		{"https://x.example/s.pdf", "application/pdf", ".pdf"},
		{"https://x.example/s.PNG", "image/png", ".png"},
		{"https://x.example/doc", "application/pdf", ".pdf"},
		{"https://x.example/doc", "image/jpeg", ".jpg"},
		{"https://x.example/doc", "application/octet-stream", ".pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extensionFor(tt.origin, tt.contentType), "extensionFor(%q, %q)", tt.origin, tt.contentType)
	}
}
