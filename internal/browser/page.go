package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Page is the set of DOM primitives the messenger needs. Every call is
// bounded by the caller's context.
type Page interface {
	// Navigate loads url and waits until the network is nearly idle.
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Type focuses selector and sends text one key at a time, keyDelay apart.
	Type(ctx context.Context, selector, text string, keyDelay time.Duration) error
}

// Tab is the chromedp-backed Page.
type Tab struct {
	ctx context.Context
}

// run executes actions on the tab, cancelled when either the tab or ctx ends.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the networkAlmostIdle event of that load.
// Lifecycle events are enabled once per tab in Session.Start; events left over
// from an earlier load carry a different loader id and are ignored.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	idle := make(chan cdp.LoaderID, 16)
	listenCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkAlmostIdle" {
			select {
			case idle <- e.LoaderID:
			default:
			}
		}
	})

	var loaderID cdp.LoaderID
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, id, errorText, err := page.Navigate(url).Do(ctx)
		switch {
		case err != nil:
			return err
		case errorText != "":
			return fmt.Errorf("page load error %s", errorText)
		}
		loaderID = id
		return nil
	}))
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	// Same-document navigations start no new load.
	if loaderID == "" {
		return nil
	}
	return waitForLoader(ctx, t.ctx, idle, loaderID, url)
}

// waitForLoader drains idle until the event for want arrives.
func waitForLoader(ctx, tabCtx context.Context, idle <-chan cdp.LoaderID, want cdp.LoaderID, url string) error {
	for {
		select {
		case id := <-idle:
			if id == want {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for network idle on %s: %w", url, ctx.Err())
		case <-tabCtx.Done():
			return tabCtx.Err()
		}
	}
}

func (t *Tab) WaitVisible(ctx context.Context, selector string) error {
	return t.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (t *Tab) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := t.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	return t.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (t *Tab) Type(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	actions := []chromedp.Action{
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	}
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
		if keyDelay > 0 {
			actions = append(actions, chromedp.Sleep(keyDelay))
		}
	}
	return t.run(ctx, actions...)
}
