package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// OCREngine recognizes text in raster images. Implementations must be
// safe for sequential reuse; the extractor never calls them concurrently
// for one document.
type OCREngine interface {
	TextFromFile(ctx context.Context, path string) (string, error)
	TextFromImage(ctx context.Context, img image.Image) (string, error)
}

// RasterDocument is an open document whose pages render to images.
// *fitz.Document satisfies it.
type RasterDocument interface {
	NumPage() int
	ImageDPI(page int, dpi float64) (image.Image, error)
	Close() error
}

// Rasterizer opens documents for page rendering.
type Rasterizer interface {
	Open(path string) (RasterDocument, error)
}

// fitzRasterizer is the production Rasterizer, backed by mupdf.
type fitzRasterizer struct{}

func (fitzRasterizer) Open(path string) (RasterDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDocument{doc}, nil
}

// fitzDocument adapts *fitz.Document, whose ImageDPI returns the
// concrete *image.RGBA, to the RasterDocument interface.
type fitzDocument struct {
	doc *fitz.Document
}

func (d fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d fitzDocument) ImageDPI(page int, dpi float64) (image.Image, error) {
	return d.doc.ImageDPI(page, dpi)
}

func (d fitzDocument) Close() error { return d.doc.Close() }

// TesseractEngine is the production OCREngine, backed by the tesseract C
// library. A fresh client is created per call because gosseract clients
// are not safe for concurrent use across worker goroutines.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates an engine. language is a tesseract language
// code ("eng" when empty).
func NewTesseractEngine(language string) *TesseractEngine {
	return &TesseractEngine{language: language}
}

// TextFromFile runs OCR over an image file on disk.
func (t *TesseractEngine) TextFromFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()
	if t.language != "" {
		if err := client.SetLanguage(t.language); err != nil {
			return "", fmt.Errorf("set ocr language: %w", err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("load image %s: %w", path, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr %s: %w", path, err)
	}
	return text, nil
}

// TextFromImage runs OCR over an in-memory image (a rasterized PDF page).
func (t *TesseractEngine) TextFromImage(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page image: %w", err)
	}
	client := gosseract.NewClient()
	defer client.Close()
	if t.language != "" {
		if err := client.SetLanguage(t.language); err != nil {
			return "", fmt.Errorf("set ocr language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("load page image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr page: %w", err)
	}
	return text, nil
}

// ocrPDF rasterizes each page at the configured DPI and recognizes it.
// One failing page contributes an empty string; the rest of the document
// still goes through.
func (e *Extractor) ocrPDF(ctx context.Context, path string, pageCount int) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("no OCR engine configured")
	}

	doc, err := e.raster.Open(path)
	if err != nil {
		return "", fmt.Errorf("rasterize %s: %w", path, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if pageCount > 0 && pageCount != total {
		e.logger.Debug("page count mismatch between validators", "pdfcpu", pageCount, "mupdf", total)
	}

	pages := make([]string, 0, total)
	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			return strings.Join(pages, "\n\n"), err
		}
		img, err := doc.ImageDPI(n, float64(e.dpi))
		if err != nil {
			e.logger.Warn("page rasterization failed", "path", path, "page", n+1, "error", err)
			pages = append(pages, "")
			continue
		}
		text, err := e.ocr.TextFromImage(ctx, img)
		if err != nil {
			e.logger.Warn("page OCR failed", "path", path, "page", n+1, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n\n"), nil
}
