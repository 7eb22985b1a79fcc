// Package browser defines the collaborator boundary toward the rendered
// UI: page rendering for HTML sticker viewers, and checklist read/toggle/
// commit primitives for the reconciliation write side. The pipeline core
// depends only on these interfaces; chromedp provides the implementation.
package browser

import (
	"context"

	"github.com/lotview/stickercheck/internal/reconcile"
)

// Element is a DOM element captured during FindAll, with its attributes
// snapshotted at query time.
type Element struct {
	attributes map[string]string
}

// NewElement builds an element from an attribute map. Exposed for test
// doubles.
func NewElement(attributes map[string]string) Element {
	return Element{attributes: attributes}
}

// Attribute returns the named attribute value and whether it was present.
func (e Element) Attribute(name string) (string, bool) {
	v, ok := e.attributes[name]
	return v, ok
}

// DOM is a handle to one rendered page.
type DOM interface {
	// FindAll returns all elements matching the CSS selector. A selector
	// matching nothing is an empty slice, not an error.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Screenshot captures the full page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the page.
	Close() error
}

// Renderer renders URLs into DOM handles. Used by the acquirer's
// HTML-viewer fallback path.
type Renderer interface {
	RenderPage(ctx context.Context, url string) (DOM, error)
}

// Checklist exposes the checkbox form currently open in the target UI.
// Reconciliation never navigates; the session layer owning this handle
// is responsible for having the right form on screen.
type Checklist interface {
	ReadChecklist(ctx context.Context) ([]reconcile.ChecklistItem, error)
	reconcile.Writer
}
