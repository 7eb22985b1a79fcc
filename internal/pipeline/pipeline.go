// Package pipeline runs the per-record verification sequence: acquire,
// extract, segment, map, reconcile. One Verifier serves one worker; the
// target system supports a single logical session per worker, so stages
// run sequentially and the run is cancellable between them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lotview/stickercheck/internal/acquire"
	"github.com/lotview/stickercheck/internal/browser"
	"github.com/lotview/stickercheck/internal/extract"
	"github.com/lotview/stickercheck/internal/match"
	"github.com/lotview/stickercheck/internal/reconcile"
	"github.com/lotview/stickercheck/internal/segment"
	"github.com/lotview/stickercheck/internal/vocab"
)

// Acquirer resolves an origin into a local source document.
type Acquirer interface {
	Acquire(ctx context.Context, origin string) (*acquire.SourceDocument, error)
}

// Extractor produces raw text from a source document, best-effort.
type Extractor interface {
	Extract(ctx context.Context, doc *acquire.SourceDocument) extract.ExtractedText
}

// Mapper scores vocabulary entries against segmented statements.
type Mapper interface {
	MapFeatures(ctx context.Context, statements []segment.FeatureStatement, entries []vocab.Entry) []match.Result
}

// VocabSource provides immutable vocabulary snapshots for matching.
type VocabSource interface {
	Snapshot() []vocab.Entry
}

// RunResult is the structured outcome of one verification run. It is the
// only failure surface for callers: the pipeline itself degrades instead
// of raising wherever it can.
type RunResult struct {
	Origin       string
	Extraction   extract.ExtractedText
	Statements   []segment.FeatureStatement
	Matches      []match.Result
	MatchedCount int
	NoFeatures   bool
	Plan         reconcile.Plan
	Outcome      *reconcile.Outcome
}

// Verifier wires the pipeline stages for one worker.
type Verifier struct {
	acquirer  Acquirer
	extractor Extractor
	mapper    Mapper
	vocab     VocabSource
	checklist browser.Checklist
	logger    *slog.Logger
}

// NewVerifier builds a verifier. checklist may be nil for dry runs, in
// which case VerifyRecord stops after computing matches.
func NewVerifier(
	acquirer Acquirer,
	extractor Extractor,
	mapper Mapper,
	vocabSource VocabSource,
	checklist browser.Checklist,
	logger *slog.Logger,
) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		acquirer:  acquirer,
		extractor: extractor,
		mapper:    mapper,
		vocab:     vocabSource,
		checklist: checklist,
		logger:    logger,
	}
}

// ExtractFeatures runs acquisition through segmentation for one origin.
// Only acquisition can fail; extraction degradation shows up in the
// returned ExtractedText.
func (v *Verifier) ExtractFeatures(ctx context.Context, origin string) ([]segment.FeatureStatement, extract.ExtractedText, error) {
	doc, err := v.acquirer.Acquire(ctx, origin)
	if err != nil {
		return nil, extract.ExtractedText{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, extract.ExtractedText{}, err
	}

	text := v.extractor.Extract(ctx, doc)
	if text.Empty() {
		v.logger.Warn("extraction produced no text", "origin", origin, "reason", text.Reason)
		return nil, text, nil
	}

	statements := segment.Segment(text.Raw)
	v.logger.Info("segmented sticker text",
		"origin", origin,
		"method", string(text.Method),
		"statements", len(statements),
	)
	return statements, text, nil
}

// MapOrigin runs the pipeline through canonical mapping and returns the
// total match vector.
func (v *Verifier) MapOrigin(ctx context.Context, origin string) ([]match.Result, extract.ExtractedText, error) {
	statements, text, err := v.ExtractFeatures(ctx, origin)
	if err != nil {
		return nil, text, err
	}
	results := v.mapper.MapFeatures(ctx, statements, v.vocab.Snapshot())
	return results, text, nil
}

// VerifyRecord executes the full verification run for one inventory
// record. A document that yields no text at all skips reconciliation and
// reports "no features found" rather than unchecking a live checklist on
// the strength of a failed extraction.
func (v *Verifier) VerifyRecord(ctx context.Context, origin string) (*RunResult, error) {
	result := &RunResult{Origin: origin}

	statements, text, err := v.ExtractFeatures(ctx, origin)
	if err != nil {
		return nil, err
	}
	result.Extraction = text
	result.Statements = statements

	if text.Empty() {
		result.NoFeatures = true
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Matches = v.mapper.MapFeatures(ctx, statements, v.vocab.Snapshot())
	for _, m := range result.Matches {
		if m.Matched {
			result.MatchedCount++
		}
	}
	if result.MatchedCount == 0 {
		result.NoFeatures = true
	}

	if v.checklist == nil {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	observed, err := v.checklist.ReadChecklist(ctx)
	if err != nil {
		return result, fmt.Errorf("read checklist: %w", err)
	}

	result.Plan = reconcile.BuildPlan(result.Matches, observed)
	if len(result.Plan) == 0 {
		v.logger.Info("checklist already in desired state", "origin", origin)
		result.Outcome = &reconcile.Outcome{}
		return result, nil
	}

	outcome, err := reconcile.Apply(ctx, result.Plan, v.checklist, v.logger)
	result.Outcome = outcome
	if err != nil {
		return result, err
	}
	return result, nil
}
