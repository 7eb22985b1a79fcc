// Package extract turns acquired sticker documents into raw text.
//
// PDFs go through the text layer first; a quality gate escalates
// text-sparse documents (scans, image-only PDFs) to per-page
// rasterization and OCR. Raster sources go straight to OCR. The whole
// stage is best-effort: it never returns an error, it returns a degraded
// result with a reason, because partial information is still actionable
// downstream.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/lotview/stickercheck/internal/acquire"
)

// Method records which extraction path produced the text.
type Method string

const (
	// MethodTextLayer means the PDF text layer was good enough.
	MethodTextLayer Method = "text_layer"
	// MethodOCR means optical recognition produced the text.
	MethodOCR Method = "ocr"
	// MethodNone means nothing could be extracted.
	MethodNone Method = "none"
)

// Status distinguishes clean extractions from degraded ones.
type Status string

const (
	// StatusOK marks a successful extraction.
	StatusOK Status = "ok"
	// StatusDegraded marks a best-effort failure; Raw is empty and
	// Reason says why.
	StatusDegraded Status = "degraded"
)

// ExtractedText is the output of the extraction stage. Raw is non-empty
// exactly when Status is ok.
type ExtractedText struct {
	Raw       string
	Method    Method
	PageCount int
	Status    Status
	Reason    string
}

// Empty reports whether extraction produced no usable text.
func (t ExtractedText) Empty() bool {
	return strings.TrimSpace(t.Raw) == ""
}

// DefaultMinTextLayerChars is the quality-gate threshold: a trimmed text
// layer shorter than this triggers the OCR escalation.
const DefaultMinTextLayerChars = 100

// DefaultOCRDPI is the rasterization resolution for the OCR path.
const DefaultOCRDPI = 300

// Extractor extracts raw text from source documents.
type Extractor struct {
	minTextLayerChars int
	dpi               int
	ocr               OCREngine
	raster            Rasterizer
	logger            *slog.Logger
}

// NewExtractor creates an extractor. ocr may be nil, in which case the
// OCR escalation degrades instead of running.
func NewExtractor(minTextLayerChars, dpi int, ocr OCREngine, logger *slog.Logger) *Extractor {
	if minTextLayerChars <= 0 {
		minTextLayerChars = DefaultMinTextLayerChars
	}
	if dpi <= 0 {
		dpi = DefaultOCRDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		minTextLayerChars: minTextLayerChars,
		dpi:               dpi,
		ocr:               ocr,
		raster:            fitzRasterizer{},
		logger:            logger,
	}
}

// Extract dispatches on document modality and extension. It never fails;
// unrecoverable problems produce a degraded result.
func (e *Extractor) Extract(ctx context.Context, doc *acquire.SourceDocument) ExtractedText {
	if doc == nil || doc.Path == "" {
		return degraded("no document")
	}

	if doc.Modality == acquire.ModalityImage {
		return e.extractImage(ctx, doc.Path)
	}

	ext := strings.ToLower(filepath.Ext(doc.Path))
	switch ext {
	case ".pdf":
		return e.extractPDF(ctx, doc.Path)
	case ".png", ".jpg", ".jpeg", ".tiff", ".bmp":
		return e.extractImage(ctx, doc.Path)
	default:
		return degraded(fmt.Sprintf("unsupported file format %q", ext))
	}
}

// pdfState drives the escalation policy for PDF extraction. Keeping it
// as an explicit machine keeps the policy auditable: text layer, then
// the quality check, then OCR, exactly once each.
type pdfState int

const (
	stateTextLayer pdfState = iota
	stateQualityCheck
	stateOCR
	stateDone
)

func (e *Extractor) extractPDF(ctx context.Context, path string) ExtractedText {
	pageCount := e.pageCount(path)
	result := ExtractedText{PageCount: pageCount, Method: MethodNone, Status: StatusDegraded}

	var layerText string
	for state := stateTextLayer; state != stateDone; {
		switch state {
		case stateTextLayer:
			text, err := textLayer(path)
			if err != nil {
				e.logger.Warn("text layer extraction failed", "path", path, "error", err)
			}
			layerText = text
			state = stateQualityCheck

		case stateQualityCheck:
			if e.sufficient(layerText) {
				result.Raw = layerText
				result.Method = MethodTextLayer
				result.Status = StatusOK
				state = stateDone
				break
			}
			e.logger.Info("text layer below quality threshold, escalating to OCR",
				"path", path, "chars", len(strings.TrimSpace(layerText)))
			state = stateOCR

		case stateOCR:
			text, err := e.ocrPDF(ctx, path, pageCount)
			if err != nil {
				result.Reason = fmt.Sprintf("ocr fallback failed: %v", err)
			} else if strings.TrimSpace(text) == "" {
				result.Reason = "ocr produced no text"
			} else {
				result.Raw = text
				result.Method = MethodOCR
				result.Status = StatusOK
			}
			state = stateDone
		}
	}

	return result
}

func (e *Extractor) extractImage(ctx context.Context, path string) ExtractedText {
	if e.ocr == nil {
		return degraded("no OCR engine configured")
	}
	text, err := e.ocr.TextFromFile(ctx, path)
	if err != nil {
		e.logger.Warn("image OCR failed", "path", path, "error", err)
		return degraded(fmt.Sprintf("image ocr failed: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return degraded("ocr produced no text")
	}
	return ExtractedText{Raw: text, Method: MethodOCR, PageCount: 1, Status: StatusOK}
}

func (e *Extractor) sufficient(text string) bool {
	return len(strings.TrimSpace(text)) >= e.minTextLayerChars
}

// pageCount asks pdfcpu; structural problems are logged, not fatal, since
// the text layer or OCR may still succeed on damaged files.
func (e *Extractor) pageCount(path string) int {
	if err := api.ValidateFile(path, nil); err != nil {
		e.logger.Warn("pdf failed validation, continuing best-effort", "path", path, "error", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0
	}
	return n
}

// textLayer pulls plain text per page and joins pages with a blank line.
// A page that fails contributes nothing; the rest still count.
func textLayer(path string) (text string, err error) {
	defer func() {
		// The parser panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n\n"), nil
}

func degraded(reason string) ExtractedText {
	return ExtractedText{Method: MethodNone, Status: StatusDegraded, Reason: reason}
}
