// Package acquire fetches window-sticker documents from URLs or local
// paths into a content-addressed local cache. Remote acquisition handles
// three shapes: direct document responses, HTML viewer pages wrapping an
// embedded document, and viewer pages that render only rasterized content
// (captured as a full-page screenshot, a degraded success).
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lotview/stickercheck/internal/browser"
	"github.com/lotview/stickercheck/internal/resilience"
)

// Modality distinguishes document-shaped sources from rasterized ones.
type Modality string

const (
	// ModalityDocument marks PDFs and other text-bearing documents.
	ModalityDocument Modality = "document"
	// ModalityImage marks raster sources that must go straight to OCR.
	ModalityImage Modality = "image"
)

// SourceDocument is an acquired sticker document. Immutable once created.
type SourceDocument struct {
	Origin   string
	Remote   bool
	MIMEHint string
	Path     string
	Modality Modality
}

// Error is an acquisition failure: a bad HTTP status, an unusable origin,
// or a missing local file.
type Error struct {
	Origin string
	Status int
	Reason string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("acquire %s: HTTP %d", e.Origin, e.Status)
	}
	return fmt.Sprintf("acquire %s: %s", e.Origin, e.Reason)
}

// viewer pages embed their document behind one of these shapes.
var embeddedDocumentSelectors = []string{
	"embed[type='application/pdf']",
	"iframe[src*='.pdf']",
	"object[type='application/pdf']",
	"a[href*='.pdf']",
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
}

// maxViewerDepth bounds viewer-page recursion; real stickers never nest
// viewers more than once.
const maxViewerDepth = 3

// defaultMaxFileSize caps remote document downloads at 100MB.
const defaultMaxFileSize = 100 * 1024 * 1024

// Acquirer downloads and caches sticker documents.
type Acquirer struct {
	client      *http.Client
	renderer    browser.Renderer
	exec        *resilience.Executor
	cacheDir    string
	maxFileSize int64
	logger      *slog.Logger
}

// NewAcquirer creates an acquirer writing into cacheDir. renderer may be
// nil when the HTML-viewer fallback is not needed (local-only workloads);
// a nil exec gets a default retry policy. maxFileSize bounds remote
// downloads, 0 means the default cap.
func NewAcquirer(
	client *http.Client,
	renderer browser.Renderer,
	exec *resilience.Executor,
	cacheDir string,
	maxFileSize int64,
	logger *slog.Logger,
) *Acquirer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.Config{}, logger)
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &Acquirer{
		client:      client,
		renderer:    renderer,
		exec:        exec,
		cacheDir:    cacheDir,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Acquire resolves origin into a local SourceDocument. Remote origins are
// fetched and cached; acquisition is idempotent per URL. Local paths are
// validated and wrapped without I/O.
func (a *Acquirer) Acquire(ctx context.Context, origin string) (*SourceDocument, error) {
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		return a.acquireRemote(ctx, origin, 0)
	}
	return a.acquireLocal(origin)
}

func (a *Acquirer) acquireLocal(origin string) (*SourceDocument, error) {
	info, err := os.Stat(origin)
	if err != nil {
		return nil, &Error{Origin: origin, Reason: "file does not exist"}
	}
	if info.IsDir() {
		return nil, &Error{Origin: origin, Reason: "path is a directory"}
	}
	return &SourceDocument{
		Origin:   origin,
		Path:     origin,
		Modality: modalityForPath(origin),
	}, nil
}

func (a *Acquirer) acquireRemote(ctx context.Context, origin string, depth int) (*SourceDocument, error) {
	if depth >= maxViewerDepth {
		return nil, &Error{Origin: origin, Reason: "viewer pages nested too deep"}
	}

	// Idempotence: a URL acquired before is served from cache without a
	// network round-trip.
	if cached := a.lookupCache(origin); cached != "" {
		a.logger.Debug("cache hit", "origin", origin, "path", cached)
		return &SourceDocument{
			Origin:   origin,
			Remote:   true,
			Path:     cached,
			Modality: modalityForPath(cached),
		}, nil
	}

	var body []byte
	var contentType string
	err := a.exec.Execute(ctx, "sticker_fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
		if err != nil {
			return err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := &Error{Origin: origin, Status: resp.StatusCode}
			if resp.StatusCode >= 500 {
				// 5xx responses are worth one more try.
				return fmt.Errorf("service unavailable: %w", err)
			}
			return err
		}

		contentType = resp.Header.Get("Content-Type")
		// Read one byte past the cap so an oversized body is detectable
		// without buffering all of it.
		body, err = io.ReadAll(io.LimitReader(resp.Body, a.maxFileSize+1))
		if err != nil {
			return err
		}
		if int64(len(body)) > a.maxFileSize {
			return &Error{
				Origin: origin,
				Reason: fmt.Sprintf("document exceeds %d byte size limit", a.maxFileSize),
			}
		}
		return nil
	}, resilience.TransientNetwork)
	if err != nil {
		var acqErr *Error
		if errors.As(err, &acqErr) {
			return nil, acqErr
		}
		return nil, &Error{Origin: origin, Reason: err.Error()}
	}

	if strings.Contains(contentType, "html") {
		a.logger.Info("origin served HTML, treating as viewer page", "origin", origin)
		return a.acquireFromViewer(ctx, origin, depth)
	}

	if !strings.Contains(contentType, "pdf") && !strings.Contains(contentType, "octet-stream") {
		a.logger.Warn("unexpected content type, persisting verbatim",
			"origin", origin, "content_type", contentType)
	}

	local, err := a.persist(origin, extensionFor(origin, contentType), body)
	if err != nil {
		return nil, &Error{Origin: origin, Reason: err.Error()}
	}

	a.logger.Info("acquired document", "origin", origin, "path", local, "bytes", len(body))
	return &SourceDocument{
		Origin:   origin,
		Remote:   true,
		MIMEHint: contentType,
		Path:     local,
		Modality: modalityForPath(local),
	}, nil
}

// acquireFromViewer renders the HTML viewer and chases the first embedded
// document reference. No reference at all degrades to a full-page
// screenshot: some sticker viewers render only rasterized content.
func (a *Acquirer) acquireFromViewer(ctx context.Context, origin string, depth int) (*SourceDocument, error) {
	if a.renderer == nil {
		return nil, &Error{Origin: origin, Reason: "HTML viewer page but no renderer configured"}
	}

	dom, err := a.renderer.RenderPage(ctx, origin)
	if err != nil {
		return nil, &Error{Origin: origin, Reason: fmt.Sprintf("render viewer: %v", err)}
	}
	defer dom.Close()

	for _, selector := range embeddedDocumentSelectors {
		elements, err := dom.FindAll(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			ref, ok := el.Attribute("src")
			if !ok {
				ref, ok = el.Attribute("href")
			}
			if !ok || ref == "" {
				continue
			}
			resolved := resolveRef(origin, ref)
			a.logger.Info("found embedded document", "origin", origin, "ref", resolved)
			return a.acquireRemote(ctx, resolved, depth+1)
		}
	}

	a.logger.Warn("no embedded document in viewer page, capturing screenshot", "origin", origin)
	shot, err := dom.Screenshot(ctx)
	if err != nil {
		return nil, &Error{Origin: origin, Reason: fmt.Sprintf("screenshot fallback: %v", err)}
	}
	local, err := a.persist(origin, ".png", shot)
	if err != nil {
		return nil, &Error{Origin: origin, Reason: err.Error()}
	}
	return &SourceDocument{
		Origin:   origin,
		Remote:   true,
		MIMEHint: "image/png",
		Path:     local,
		Modality: ModalityImage,
	}, nil
}

// cacheKey is a stable hash of the origin string; the same URL always
// lands on the same cache file.
func cacheKey(origin string) string {
	sum := sha256.Sum256([]byte(origin))
	return hex.EncodeToString(sum[:])[:16]
}

// lookupCache returns an existing cache file for the origin, any extension.
func (a *Acquirer) lookupCache(origin string) string {
	matches, err := filepath.Glob(filepath.Join(a.cacheDir, cacheKey(origin)+".*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// persist writes body under the origin's cache key, never overwriting an
// existing file for the same origin.
func (a *Acquirer) persist(origin, ext string, body []byte) (string, error) {
	if err := os.MkdirAll(a.cacheDir, 0o750); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	local := filepath.Join(a.cacheDir, cacheKey(origin)+ext)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.WriteFile(local, body, 0o644); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	return local, nil
}

func modalityForPath(p string) Modality {
	if imageExtensions[strings.ToLower(filepath.Ext(p))] {
		return ModalityImage
	}
	return ModalityDocument
}

// extensionFor picks a cache file extension from the URL path, falling
// back to the content type.
func extensionFor(origin, contentType string) string {
	if u, err := url.Parse(origin); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext == ".pdf" || imageExtensions[ext] {
			return ext
		}
	}
	if strings.Contains(contentType, "pdf") {
		return ".pdf"
	}
	if strings.Contains(contentType, "png") {
		return ".png"
	}
	if strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg") {
		return ".jpg"
	}
	return ".pdf"
}

// resolveRef resolves a possibly relative embedded reference against the
// viewer page URL.
func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
