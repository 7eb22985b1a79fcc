package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/lotview/stickercheck/internal/reconcile"
	"github.com/lotview/stickercheck/internal/resilience"
)

// Chrome drives a headless browser instance. One Chrome value owns one
// browser process; each RenderPage opens a fresh tab.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

// NewChrome starts a browser allocator. Close must be called to release
// the browser process.
func NewChrome(parent context.Context, headless bool, timeout time.Duration, logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	return &Chrome{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     timeout,
		logger:      logger,
	}
}

// Close shuts the browser down.
func (c *Chrome) Close() {
	c.allocCancel()
}

// RenderPage opens a tab, navigates to url, and waits for the document
// body before handing back the DOM.
func (c *Chrome) RenderPage(ctx context.Context, url string) (DOM, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)

	// Run on a timeout-derived child so a hung navigation cannot wedge the
	// pipeline; cancelling the child leaves the tab itself alive.
	runCtx, runCancel := context.WithTimeout(tabCtx, c.timeout)
	defer runCancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	c.logger.Debug("rendered page", "url", url)
	return &chromeDOM{tabCtx: tabCtx, cancel: tabCancel, timeout: c.timeout}, nil
}

// OpenChecklist opens the inventory form in a fresh tab and binds a
// checklist to it. The returned func closes the tab.
func (c *Chrome) OpenChecklist(url string, exec *resilience.Executor) (*ChromeChecklist, func(), error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)

	runCtx, runCancel := context.WithTimeout(tabCtx, c.timeout)
	defer runCancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("open form %s: %w", url, err)
	}

	c.logger.Info("opened inventory form", "url", url)
	return NewChecklist(tabCtx, exec, c.logger), tabCancel, nil
}

type chromeDOM struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func (d *chromeDOM) FindAll(_ context.Context, selector string) ([]Element, error) {
	runCtx, runCancel := context.WithTimeout(d.tabCtx, d.timeout)
	defer runCancel()

	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, node := range nodes {
		attrs := make(map[string]string, len(node.Attributes)/2)
		for i := 0; i+1 < len(node.Attributes); i += 2 {
			attrs[node.Attributes[i]] = node.Attributes[i+1]
		}
		elements = append(elements, NewElement(attrs))
	}
	return elements, nil
}

func (d *chromeDOM) Screenshot(_ context.Context) ([]byte, error) {
	runCtx, runCancel := context.WithTimeout(d.tabCtx, d.timeout)
	defer runCancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (d *chromeDOM) Close() error {
	d.cancel()
	return nil
}

// checkboxStateJS harvests every checkbox on the open form together with
// its visible label. Label resolution order: label[for], parent label,
// sibling label, then any nearby span/div with text.
const checkboxStateJS = `
(() => {
	const getLabel = (el) => {
		if (el.id) {
			const byFor = document.querySelector('label[for="' + el.id + '"]');
			if (byFor && byFor.textContent.trim()) return byFor.textContent.trim();
		}
		const parent = el.parentElement;
		if (parent && parent.tagName === 'LABEL') return parent.textContent.trim();
		const sibling = el.nextElementSibling;
		if (sibling && sibling.tagName === 'LABEL') return sibling.textContent.trim();
		if (parent) {
			for (const s of parent.querySelectorAll('span, div')) {
				if (s.textContent.trim()) return s.textContent.trim();
			}
		}
		return '';
	};
	return [...document.querySelectorAll("input[type='checkbox']")]
		.map(cb => ({label: getLabel(cb), checked: cb.checked}))
		.filter(it => it.label);
})()
`

// toggleByLabelJS clicks the checkbox whose normalized label equals the
// argument. Evaluates to true when a checkbox was found and clicked.
const toggleByLabelJS = `
((wanted) => {
	const norm = (s) => s.toLowerCase().replace(/\s+/g, ' ').trim();
	const getLabel = (el) => {
		if (el.id) {
			const byFor = document.querySelector('label[for="' + el.id + '"]');
			if (byFor && byFor.textContent.trim()) return byFor.textContent.trim();
		}
		const parent = el.parentElement;
		if (parent && parent.tagName === 'LABEL') return parent.textContent.trim();
		const sibling = el.nextElementSibling;
		if (sibling && sibling.tagName === 'LABEL') return sibling.textContent.trim();
		if (parent) {
			for (const s of parent.querySelectorAll('span, div')) {
				if (s.textContent.trim()) return s.textContent.trim();
			}
		}
		return '';
	};
	for (const cb of document.querySelectorAll("input[type='checkbox']")) {
		if (norm(getLabel(cb)) === norm(wanted)) {
			cb.click();
			return true;
		}
	}
	return false;
})(%q)
`

// commitJS clicks the first recognizable save control on the form.
const commitJS = `
(() => {
	const selectors = ["button[type='submit']", "input[type='submit']", "button.save", "button"];
	for (const sel of selectors) {
		for (const btn of document.querySelectorAll(sel)) {
			const text = (btn.textContent || btn.value || '').trim().toLowerCase();
			if (sel !== 'button' || text.includes('save')) {
				btn.click();
				return true;
			}
		}
	}
	return false;
})()
`

// ChromeChecklist implements Checklist against the form open in one tab.
// Toggle and Commit go through the resilience executor because stale-node
// style failures in the target UI are usually transient.
type ChromeChecklist struct {
	tabCtx context.Context
	exec   *resilience.Executor
	logger *slog.Logger
}

// NewChecklist binds a checklist to an already-navigated tab context.
func NewChecklist(tabCtx context.Context, exec *resilience.Executor, logger *slog.Logger) *ChromeChecklist {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeChecklist{tabCtx: tabCtx, exec: exec, logger: logger}
}

// ReadChecklist returns the current label/checked pairs.
func (c *ChromeChecklist) ReadChecklist(_ context.Context) ([]reconcile.ChecklistItem, error) {
	var raw []struct {
		Label   string `json:"label"`
		Checked bool   `json:"checked"`
	}
	if err := chromedp.Run(c.tabCtx, chromedp.Evaluate(checkboxStateJS, &raw)); err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}

	items := make([]reconcile.ChecklistItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, reconcile.ChecklistItem{Label: r.Label, Observed: r.Checked})
	}
	return items, nil
}

// Toggle flips the checkbox carrying the given visible label.
func (c *ChromeChecklist) Toggle(ctx context.Context, label string) error {
	return c.exec.Execute(ctx, "checklist_toggle", func(context.Context) error {
		var clicked bool
		js := fmt.Sprintf(toggleByLabelJS, label)
		if err := chromedp.Run(c.tabCtx, chromedp.Evaluate(js, &clicked)); err != nil {
			return fmt.Errorf("toggle %q: %w", label, err)
		}
		if !clicked {
			return fmt.Errorf("toggle %q: checkbox not found", label)
		}
		return nil
	}, resilience.TransientNetwork)
}

// Commit clicks the save control once for the whole batch.
func (c *ChromeChecklist) Commit(ctx context.Context) error {
	return c.exec.Execute(ctx, "checklist_commit", func(context.Context) error {
		var clicked bool
		if err := chromedp.Run(c.tabCtx, chromedp.Evaluate(commitJS, &clicked)); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if !clicked {
			return fmt.Errorf("commit: save control not found")
		}
		return nil
	}, resilience.TransientNetwork)
}
