// Package browsertest provides an in-memory browser for tests that exercise
// the messenger without launching Chrome.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"firstcontact/internal/browser"
)

// Browser is a scriptable stand-in for *browser.Session.
type Browser struct {
	mu       sync.Mutex
	StartErr error
	page     *Page
	starts   int
}

// New returns a browser whose Start hands out p.
func New(p *Page) *Browser {
	return &Browser{page: p}
}

func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return b.StartErr
	}
	b.starts++
	return ctx.Err()
}

func (b *Browser) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts > 0
}

func (b *Browser) Page() (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.starts == 0 {
		return nil, browser.ErrNotStarted
	}
	return b.page, nil
}

func (b *Browser) Starts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts
}

// Page records every interaction. Selectors listed in Missing never become
// visible; everything else is present.
type Page struct {
	mu sync.Mutex

	Missing     map[string]bool
	NavigateErr error
	// MissingFor hides a selector while the given text is the last thing
	// typed, so a single recipient can be made "not found".
	MissingFor map[string]string
	// OnClick runs after every click, outside the page lock.
	OnClick func(selector string)

	lastSearch string
	actions    []string
	typed      map[string][]string
}

func NewPage() *Page {
	return &Page{Missing: map[string]bool{}, MissingFor: map[string]string{}, typed: map[string][]string{}}
}

func (p *Page) SetMissing(selector string, missing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Missing[selector] = missing
}

func (p *Page) hidden(selector string) bool {
	if p.Missing[selector] {
		return true
	}
	user, ok := p.MissingFor[selector]
	return ok && user == p.lastSearch
}

func (p *Page) record(format string, args ...any) {
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	return ctx.Err()
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	hidden := p.hidden(selector)
	p.record("wait %s", selector)
	p.mu.Unlock()
	if hidden {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("exists %s", selector)
	return !p.hidden(selector), ctx.Err()
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	if p.hidden(selector) {
		p.mu.Unlock()
		return errors.New("node not visible")
	}
	p.record("click %s", selector)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(selector)
	}
	return ctx.Err()
}

func (p *Page) Type(ctx context.Context, selector, text string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hidden(selector) {
		return errors.New("node not visible")
	}
	p.record("type %s %s", selector, text)
	p.typed[selector] = append(p.typed[selector], text)
	p.lastSearch = text
	return ctx.Err()
}

// Actions returns the interaction log in order.
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Typed returns everything typed into selector, one entry per Type call.
func (p *Page) Typed(selector string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typed[selector]...)
}

// Count returns how many logged actions start with prefix.
func (p *Page) Count(prefix string) int {
	n := 0
	for _, a := range p.Actions() {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}
