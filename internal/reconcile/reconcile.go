// Package reconcile computes and applies the minimal set of checkbox
// toggles needed to align an observed checklist with the desired feature
// vector. Plans contain only entries whose state actually changes, which
// makes a retried run converge instead of double-toggling.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lotview/stickercheck/internal/match"
	"github.com/lotview/stickercheck/internal/normalize"
)

// ChecklistItem is the externally observed state of one checkbox, keyed
// by its visible label text.
type ChecklistItem struct {
	Label    string
	Observed bool
}

// PlanEntry is one required toggle. FromState always differs from ToState.
type PlanEntry struct {
	CanonicalName string
	ObservedLabel string
	FromState     bool
	ToState       bool
}

// Plan is the ordered toggle set for one run. Computed fresh per run,
// never persisted.
type Plan []PlanEntry

// ItemOutcome records the result of applying one plan entry.
type ItemOutcome struct {
	CanonicalName string
	Applied       bool
	Error         string
}

// Outcome aggregates per-item results for one apply pass.
type Outcome struct {
	Items          []ItemOutcome
	TotalItems     int
	AttemptedItems int
	UpdatedItems   int
	Committed      bool
}

// Succeeded reports overall success: nothing needed changing, or the
// batched commit went through.
func (o *Outcome) Succeeded() bool {
	return o.AttemptedItems == 0 || o.Committed
}

// CommitError marks a failed batched save after toggles were applied.
// It is fatal to the run: an uncommitted toggle set is indistinguishable
// from no change having happened externally.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("reconcile: commit failed after applying toggles: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Writer is the external toggle/commit primitive. It targets whichever
// checkbox-bearing form is currently open; reconciliation never navigates.
type Writer interface {
	Toggle(ctx context.Context, label string) error
	Commit(ctx context.Context) error
}

// BuildPlan compares the desired vector against the observed checklist.
// Observed items are matched to canonical names by normalized label
// equality; items with no corresponding canonical entry are left
// unmanaged. Entries appear only where desired differs from observed.
func BuildPlan(desired []match.Result, observed []ChecklistItem) Plan {
	byLabel := make(map[string]ChecklistItem, len(observed))
	for _, item := range observed {
		key := normalize.Text(item.Label)
		if _, dup := byLabel[key]; !dup {
			byLabel[key] = item
		}
	}

	var plan Plan
	for _, d := range desired {
		item, ok := byLabel[normalize.Text(d.CanonicalName)]
		if !ok {
			continue
		}
		if item.Observed == d.Matched {
			continue
		}
		plan = append(plan, PlanEntry{
			CanonicalName: d.CanonicalName,
			ObservedLabel: item.Label,
			FromState:     item.Observed,
			ToState:       d.Matched,
		})
	}
	return plan
}

// Apply executes the plan item by item. A failed toggle is recorded and
// the remaining entries still run; reconciliation of one checkbox must
// never abort the rest. The commit primitive fires exactly once, and only
// when at least one toggle succeeded. A commit failure is returned as
// *CommitError alongside the outcome gathered so far.
func Apply(ctx context.Context, plan Plan, writer Writer, logger *slog.Logger) (*Outcome, error) {
	if logger == nil {
		logger = slog.Default()
	}

	outcome := &Outcome{
		Items:      make([]ItemOutcome, 0, len(plan)),
		TotalItems: len(plan),
	}

	for _, entry := range plan {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.AttemptedItems++

		item := ItemOutcome{CanonicalName: entry.CanonicalName}
		if err := writer.Toggle(ctx, entry.ObservedLabel); err != nil {
			item.Error = err.Error()
			logger.Warn("toggle failed",
				"feature", entry.CanonicalName,
				"label", entry.ObservedLabel,
				"error", err,
			)
		} else {
			item.Applied = true
			outcome.UpdatedItems++
			logger.Info("toggled checkbox",
				"feature", entry.CanonicalName,
				"from", entry.FromState,
				"to", entry.ToState,
			)
		}
		outcome.Items = append(outcome.Items, item)
	}

	if outcome.UpdatedItems > 0 {
		if err := writer.Commit(ctx); err != nil {
			return outcome, &CommitError{Err: err}
		}
		outcome.Committed = true
		logger.Info("committed checklist changes", "updated", outcome.UpdatedItems)
	}

	return outcome, nil
}
