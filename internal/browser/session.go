// Package browser owns the single Chrome instance and tab the service drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNotStarted is returned by Page before a successful Start.
var ErrNotStarted = errors.New("browser not initialized")

type Options struct {
	ExecPath       string
	UserDataDir    string
	UserAgent      string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

// Session holds at most one browser process and one tab at a time.
type Session struct {
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	tab         *Tab
}

func NewSession(opts Options, log *zap.Logger) *Session {
	return &Session{opts: opts, log: log.Named("browser")}
}

// Start launches a fresh browser and tab, closing any previous pair first.
// The browser outlives ctx; ctx only bounds how long the launch may take.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tab != nil {
		s.log.Info("Closing previous browser before reinitializing")
		s.closeLocked()
	}

	if err := validateExecPath(s.opts.ExecPath); err != nil {
		return err
	}
	if err := ensureUserDataDir(s.log, s.opts.UserDataDir); err != nil {
		return fmt.Errorf("failed to prepare user data directory: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run launches Chrome; it must use the tab context itself or
	// cancelling it would tear the browser down again.
	launched := make(chan error, 1)
	go func() {
		launched <- chromedp.Run(tabCtx,
			page.SetLifecycleEventsEnabled(true),
			emulation.SetUserAgentOverride(s.opts.UserAgent),
			chromedp.EmulateViewport(int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight)),
		)
	}()

	var err error
	select {
	case err = <-launched:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		allocCancel()
		s.log.Error("Error initializing browser", zap.Error(err))
		return describeLaunchError(err)
	}

	s.allocCancel = allocCancel
	s.cancel = cancel
	s.tab = &Tab{ctx: tabCtx}
	s.log.Info("Browser initialized successfully",
		zap.Bool("headless", s.opts.Headless),
		zap.String("user_data_dir", s.opts.UserDataDir))
	return nil
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.UserAgent(s.opts.UserAgent),
		chromedp.WindowSize(s.opts.ViewportWidth, s.opts.ViewportHeight),
	)
	if s.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.opts.UserDataDir))
	}
	if s.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
	}
	return opts
}

// Page returns the live tab.
func (s *Session) Page() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab == nil {
		return nil, ErrNotStarted
	}
	return s.tab, nil
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab != nil
}

// Close shuts the browser down. Calling it without a running browser is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.tab == nil {
		return nil
	}
	s.log.Info("Closing browser...")

	closeCtx, cancel := context.WithTimeout(s.tab.ctx, 10*time.Second)
	err := chromedp.Cancel(closeCtx)
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("Browser did not close cleanly", zap.Error(err))
	}

	s.cancel()
	s.allocCancel()
	s.tab, s.cancel, s.allocCancel = nil, nil, nil
	return err
}

func describeLaunchError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "executable file not found"), strings.Contains(msg, "cannot find Chrome"):
		return fmt.Errorf("chrome executable not found, set CHROME_PATH or browser.chrome_path: %w", err)
	case strings.Contains(msg, "chrome failed to start"):
		return fmt.Errorf("chrome failed to start, check that no other instance holds the user data dir: %w", err)
	}
	return fmt.Errorf("failed to start browser: %w", err)
}
