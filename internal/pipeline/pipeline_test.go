package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotview/stickercheck/internal/acquire"
	"github.com/lotview/stickercheck/internal/extract"
	"github.com/lotview/stickercheck/internal/match"
	"github.com/lotview/stickercheck/internal/reconcile"
	"github.com/lotview/stickercheck/internal/segment"
	"github.com/lotview/stickercheck/internal/vocab"
)

type fakeAcquirer struct {
	doc *acquire.SourceDocument
	err error
}

func (f *fakeAcquirer) Acquire(context.Context, string) (*acquire.SourceDocument, error) {
	return f.doc, f.err
}

type fakeExtractor struct {
	text extract.ExtractedText
}

func (f *fakeExtractor) Extract(context.Context, *acquire.SourceDocument) extract.ExtractedText {
	return f.text
}

type fakeMapper struct {
	results []match.Result
}

func (f *fakeMapper) MapFeatures(context.Context, []segment.FeatureStatement, []vocab.Entry) []match.Result {
	return f.results
}

type fakeVocabSource struct{}

func (fakeVocabSource) Snapshot() []vocab.Entry {
	return []vocab.Entry{{Name: "Sunroof", Variants: []string{"sunroof"}}}
}

type fakeChecklist struct {
	items     []reconcile.ChecklistItem
	readErr   error
	toggled   []string
	commits   int
	toggleErr error
	commitErr error
}

func (f *fakeChecklist) ReadChecklist(context.Context) ([]reconcile.ChecklistItem, error) {
	return f.items, f.readErr
}

func (f *fakeChecklist) Toggle(_ context.Context, label string) error {
	if f.toggleErr != nil {
		return f.toggleErr
	}
	f.toggled = append(f.toggled, label)
	return nil
}

func (f *fakeChecklist) Commit(context.Context) error {
	if f.commitErr == nil {
		f.commits++
	}
	return f.commitErr
}

func okExtraction(raw string) extract.ExtractedText {
	return extract.ExtractedText{
		Raw:       raw,
		Method:    extract.MethodTextLayer,
		PageCount: 1,
		Status:    extract.StatusOK,
	}
}

func TestExtractFeatures(t *testing.T) {
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("STANDARD EQUIPMENT\nSunroof\nBluetooth")},
		&fakeMapper{},
		fakeVocabSource{},
		nil,
		nil,
	)

	statements, text, err := v.ExtractFeatures(context.Background(), "/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, extract.StatusOK, text.Status)
	require.Len(t, statements, 2)
	assert.Equal(t, "Sunroof", statements[0].Text)
}

func TestExtractFeaturesAcquireError(t *testing.T) {
	wantErr := &acquire.Error{Origin: "/missing.pdf", Reason: "file does not exist"}
	v := NewVerifier(&fakeAcquirer{err: wantErr}, &fakeExtractor{}, &fakeMapper{}, fakeVocabSource{}, nil, nil)

	_, _, err := v.ExtractFeatures(context.Background(), "/missing.pdf")

	var acqErr *acquire.Error
	assert.ErrorAs(t, err, &acqErr)
}

func TestExtractFeaturesDegradedIsNotAnError(t *testing.T) {
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: extract.ExtractedText{Status: extract.StatusDegraded, Reason: "ocr produced no text"}},
		&fakeMapper{},
		fakeVocabSource{},
		nil,
		nil,
	)

	statements, text, err := v.ExtractFeatures(context.Background(), "/x.pdf")
	require.NoError(t, err)
	assert.Empty(t, statements)
	assert.True(t, text.Empty())
}

func TestVerifyRecordDryRun(t *testing.T) {
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{results: []match.Result{{CanonicalName: "Sunroof", Matched: true, Method: match.MethodExact, Confidence: 1}}},
		fakeVocabSource{},
		nil, // no checklist attached
		nil,
	)

	result, err := v.VerifyRecord(context.Background(), "/x.pdf")
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedCount)
	assert.False(t, result.NoFeatures)
	assert.Nil(t, result.Outcome)
}

func TestVerifyRecordNoFeaturesSkipsChecklist(t *testing.T) {
	checklist := &fakeChecklist{items: []reconcile.ChecklistItem{{Label: "Sunroof", Observed: true}}}
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: extract.ExtractedText{Status: extract.StatusDegraded, Reason: "no text"}},
		&fakeMapper{},
		fakeVocabSource{},
		checklist,
		nil,
	)

	result, err := v.VerifyRecord(context.Background(), "/x.pdf")
	require.NoError(t, err)

	// A failed extraction must not uncheck a live checklist.
	assert.True(t, result.NoFeatures)
	assert.Nil(t, result.Outcome)
	assert.Empty(t, checklist.toggled)
	assert.Zero(t, checklist.commits)
}

func TestVerifyRecordReconciles(t *testing.T) {
	checklist := &fakeChecklist{items: []reconcile.ChecklistItem{
		{Label: "Sunroof", Observed: false},
		{Label: "Bluetooth", Observed: true},
	}}
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{results: []match.Result{
			{CanonicalName: "Sunroof", Matched: true, Method: match.MethodExact, Confidence: 1},
			{CanonicalName: "Bluetooth", Matched: false, Method: match.MethodNone},
		}},
		fakeVocabSource{},
		checklist,
		nil,
	)

	result, err := v.VerifyRecord(context.Background(), "/x.pdf")
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	assert.Equal(t, []string{"Sunroof", "Bluetooth"}, checklist.toggled)
	assert.Equal(t, 1, checklist.commits)
	assert.True(t, result.Outcome.Committed)
	assert.Len(t, result.Plan, 2)
}

func TestVerifyRecordChecklistAlreadyAligned(t *testing.T) {
	checklist := &fakeChecklist{items: []reconcile.ChecklistItem{
		{Label: "Sunroof", Observed: true},
	}}
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{results: []match.Result{{CanonicalName: "Sunroof", Matched: true}}},
		fakeVocabSource{},
		checklist,
		nil,
	)

	result, err := v.VerifyRecord(context.Background(), "/x.pdf")
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	assert.True(t, result.Outcome.Succeeded())
	assert.Empty(t, checklist.toggled)
	assert.Zero(t, checklist.commits)
}

func TestVerifyRecordReadChecklistError(t *testing.T) {
	checklist := &fakeChecklist{readErr: errors.New("session expired")}
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{results: []match.Result{{CanonicalName: "Sunroof", Matched: true}}},
		fakeVocabSource{},
		checklist,
		nil,
	)

	_, err := v.VerifyRecord(context.Background(), "/x.pdf")
	assert.ErrorContains(t, err, "session expired")
}

func TestVerifyRecordCommitErrorSurfaces(t *testing.T) {
	checklist := &fakeChecklist{
		items:     []reconcile.ChecklistItem{{Label: "Sunroof", Observed: false}},
		commitErr: errors.New("save failed"),
	}
	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{results: []match.Result{{CanonicalName: "Sunroof", Matched: true}}},
		fakeVocabSource{},
		checklist,
		nil,
	)

	result, err := v.VerifyRecord(context.Background(), "/x.pdf")

	var commitErr *reconcile.CommitError
	require.ErrorAs(t, err, &commitErr)
	require.NotNil(t, result.Outcome)
	assert.False(t, result.Outcome.Committed)
}

func TestVerifyRecordCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewVerifier(
		&fakeAcquirer{doc: &acquire.SourceDocument{Path: "/x.pdf"}},
		&fakeExtractor{text: okExtraction("EQUIPMENT\nSunroof")},
		&fakeMapper{},
		fakeVocabSource{},
		nil,
		nil,
	)

	_, _, err := v.ExtractFeatures(ctx, "/x.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}
