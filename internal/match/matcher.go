// Package match maps segmented feature statements onto the canonical
// vocabulary. The output is always total over the vocabulary: one result
// per canonical name, whether or not anything matched.
package match

import (
	"context"
	"log/slog"
	"runtime"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/lotview/stickercheck/internal/normalize"
	"github.com/lotview/stickercheck/internal/segment"
	"github.com/lotview/stickercheck/internal/vocab"
)

// Method records how a canonical entry was matched.
type Method string

const (
	// MethodExact means a normalized variant equaled a statement verbatim.
	MethodExact Method = "exact"
	// MethodFuzzy means a variant cleared the token-sort similarity threshold.
	MethodFuzzy Method = "fuzzy"
	// MethodNone means no variant matched.
	MethodNone Method = "none"
)

// Result is the match outcome for one canonical vocabulary entry.
type Result struct {
	CanonicalName string
	Matched       bool
	Method        Method
	Confidence    float64
}

// Mapper evaluates vocabulary entries against extracted statements.
type Mapper struct {
	threshold   float64
	minFuzzyLen int
	workers     int
	logger      *slog.Logger
}

// NewMapper creates a mapper. threshold is the configured confidence in
// [0,1]; minFuzzyLen is the minimum string length admitted to the fuzzy
// pass; workers bounds entry-level parallelism (0 means GOMAXPROCS).
func NewMapper(threshold float64, minFuzzyLen, workers int, logger *slog.Logger) *Mapper {
	if minFuzzyLen < 1 {
		minFuzzyLen = 4
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		threshold:   threshold,
		minFuzzyLen: minFuzzyLen,
		workers:     workers,
		logger:      logger,
	}
}

// MapFeatures evaluates every vocabulary entry against the statements and
// returns one result per entry, in vocabulary order. Entries are
// independent, so they are scored concurrently; the result slice is
// indexed by entry so merge order never depends on completion order.
func (m *Mapper) MapFeatures(ctx context.Context, statements []segment.FeatureStatement, entries []vocab.Entry) []Result {
	normalized := make([]string, 0, len(statements))
	for _, s := range statements {
		if n := normalize.Text(s.Text); n != "" {
			normalized = append(normalized, n)
		}
	}

	results := make([]Result, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, entry := range entries {
		results[i] = Result{CanonicalName: entry.Name, Method: MethodNone}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = m.scoreEntry(entry, normalized)
			return nil
		})
	}
	// Entries never return errors of their own; a non-nil result here only
	// means the context was cancelled and some entries kept their default.
	_ = g.Wait()

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	m.logger.Debug("mapped features",
		"statements", len(normalized),
		"vocabulary", len(entries),
		"matched", matched,
	)

	return results
}

// scoreEntry runs the exact pass, then the fuzzy pass. Exact matches
// short-circuit at confidence 1.0.
func (m *Mapper) scoreEntry(entry vocab.Entry, statements []string) Result {
	result := Result{CanonicalName: entry.Name, Method: MethodNone}

	for _, variant := range entry.Variants {
		for _, stmt := range statements {
			if variant == stmt {
				result.Matched = true
				result.Method = MethodExact
				result.Confidence = 1.0
				return result
			}
		}
	}

	best := 0
	for _, variant := range entry.Variants {
		if len(variant) < m.minFuzzyLen {
			continue
		}
		for _, stmt := range statements {
			if len(stmt) < m.minFuzzyLen {
				continue
			}
			if score := fuzzy.TokenSortRatio(variant, stmt); score > best {
				best = score
			}
		}
	}

	if best > 0 && float64(best) >= m.threshold*100 {
		result.Matched = true
		result.Method = MethodFuzzy
		result.Confidence = float64(best) / 100
	}

	return result
}
