// sticker-extract runs the offline half of the pipeline over a single
// document: acquire, extract, segment, map. No browser, no checklist
// writes. Useful for tuning the vocabulary and the confidence threshold
// against real stickers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lotview/stickercheck/internal/acquire"
	"github.com/lotview/stickercheck/internal/extract"
	"github.com/lotview/stickercheck/internal/logging"
	"github.com/lotview/stickercheck/internal/match"
	"github.com/lotview/stickercheck/internal/resilience"
	"github.com/lotview/stickercheck/internal/segment"
	"github.com/lotview/stickercheck/internal/vocab"
)

var (
	vocabPath    = flag.String("vocab", "configs/feature_mapping.json", "Path to the feature vocabulary JSON file")
	threshold    = flag.Float64("threshold", 0.8, "Fuzzy match confidence threshold (0-1)")
	minFuzzyLen  = flag.Int("minfuzzylen", 4, "Minimum string length admitted to fuzzy matching")
	minTextChars = flag.Int("mintextchars", 100, "Minimum text-layer characters before OCR fallback")
	dpi          = flag.Int("dpi", 300, "Rasterization DPI for the OCR fallback")
	ocrLang      = flag.String("ocrlang", "eng", "Tesseract language code")
	cacheDir     = flag.String("cachedir", "", "Cache directory for remote documents (temp dir when empty)")
	maxFileSize  = flag.Int64("maxfilesize", 100*1024*1024, "Maximum sticker document size in bytes")
	outputFormat = flag.String("format", "text", "Output format: text, json")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	help         = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: sticker path or URL required\n\n")
		printUsage()
		os.Exit(1)
	}

	origin := flag.Arg(0)

	logger := logging.NewLogger(io.Discard, "sticker-extract", "info")
	if *verbose {
		logger = logging.NewLogger(os.Stderr, "sticker-extract", "debug")
	}

	result, err := run(origin, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := outputResults(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error outputting results: %v\n", err)
		os.Exit(1)
	}
}

// ExtractionResult is the complete output for one document.
type ExtractionResult struct {
	Origin     string                     `json:"origin"`
	Method     string                     `json:"method"`
	Status     string                     `json:"status"`
	Reason     string                     `json:"reason,omitempty"`
	PageCount  int                        `json:"page_count"`
	Statements []segment.FeatureStatement `json:"statements"`
	Matches    []match.Result             `json:"matches"`
}

func run(origin string, logger *slog.Logger) (*ExtractionResult, error) {
	ctx := context.Background()

	dir := *cacheDir
	if dir == "" {
		dir = os.TempDir()
	}

	exec := resilience.NewExecutor(resilience.Config{}, logger)
	acquirer := acquire.NewAcquirer(
		&http.Client{Timeout: 30 * time.Second},
		nil, // no renderer: viewer pages are out of reach offline
		exec,
		dir,
		*maxFileSize,
		logger,
	)
	extractor := extract.NewExtractor(*minTextChars, *dpi, extract.NewTesseractEngine(*ocrLang), logger)

	store, err := vocab.Load(*vocabPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	doc, err := acquirer.Acquire(ctx, origin)
	if err != nil {
		return nil, err
	}

	text := extractor.Extract(ctx, doc)
	result := &ExtractionResult{
		Origin:    origin,
		Method:    string(text.Method),
		Status:    string(text.Status),
		Reason:    text.Reason,
		PageCount: text.PageCount,
	}
	if text.Empty() {
		return result, nil
	}

	result.Statements = segment.Segment(text.Raw)

	mapper := match.NewMapper(*threshold, *minFuzzyLen, 0, logger)
	result.Matches = mapper.MapFeatures(ctx, result.Statements, store.Snapshot())

	return result, nil
}

func outputResults(result *ExtractionResult) error {
	switch *outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "text":
		return outputText(result)
	default:
		return fmt.Errorf("unsupported output format: %s", *outputFormat)
	}
}

func outputText(result *ExtractionResult) error {
	fmt.Printf("Sticker: %s\n", result.Origin)
	fmt.Printf("Extraction: %s (%s), %d page(s)\n", result.Method, result.Status, result.PageCount)
	if result.Reason != "" {
		fmt.Printf("Reason: %s\n", result.Reason)
	}

	if len(result.Statements) == 0 {
		fmt.Println("\nNo feature statements found")
		return nil
	}

	fmt.Printf("\nFeature statements (%d):\n", len(result.Statements))
	for i, st := range result.Statements {
		fmt.Printf("  %d. %s\n", i+1, st.Text)
	}

	matched := 0
	for _, m := range result.Matches {
		if m.Matched {
			matched++
		}
	}
	fmt.Printf("\nCanonical matches (%d of %d):\n", matched, len(result.Matches))
	for _, m := range result.Matches {
		marker := " "
		if m.Matched {
			marker = "x"
		}
		fmt.Printf("  [%s] %s", marker, m.CanonicalName)
		if m.Matched {
			fmt.Printf(" (%s, %.2f)", m.Method, m.Confidence)
		}
		fmt.Println()
	}

	return nil
}

func printHelp() {
	fmt.Println("sticker-extract - extract and map window sticker features offline")
	fmt.Println()
	fmt.Println("Runs acquisition, text extraction, segmentation, and canonical mapping")
	fmt.Println("over one document without touching any inventory checklist.")
	fmt.Println()
	printUsage()
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  sticker-extract window-sticker.pdf")
	fmt.Println("  sticker-extract -format json -threshold 0.85 sticker.pdf")
	fmt.Println("  sticker-extract -verbose https://stickers.example.com/vin123.pdf")
}

func printUsage() {
	fmt.Println("USAGE:")
	fmt.Println("  sticker-extract [OPTIONS] <path-or-url>")
}

func init() {
	flag.Usage = func() {
		printHelp()
	}
}
