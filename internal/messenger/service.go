// Package messenger drives the messaging client: it probes whether the
// browser profile is logged in, sends single messages and runs paced bulk
// sessions over the one shared page.
package messenger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"firstcontact/internal/browser"
	"firstcontact/internal/config"
	"firstcontact/internal/contacts"
	"firstcontact/internal/pacing"
)

// Browser is the holder of the single page every operation runs against.
type Browser interface {
	Start(ctx context.Context) error
	Ready() bool
	Page() (browser.Page, error)
}

// Ledger remembers recipients that were already sent a given template.
type Ledger interface {
	Contacted(r contacts.Recipient, t *contacts.Template) bool
	MarkContacted(r contacts.Recipient, t *contacts.Template) error
}

type Options struct {
	LoginURL       string
	ElementTimeout time.Duration
	Settle         time.Duration
	Selectors      config.SelectorsConfig
	Typing         config.TypingConfig
	MaxPerSession  int
	Retry          config.RetryConfig
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LoginURL:       cfg.Browser.LoginURL,
		ElementTimeout: cfg.Browser.Timeout(),
		Settle:         cfg.Browser.Settle(),
		Selectors:      cfg.Selectors,
		Typing:         cfg.Typing,
		MaxPerSession:  cfg.Session.MaxPerSession,
		Retry:          cfg.Retry,
	}
}

// Service owns the process-wide messaging state. All page access goes
// through the single-slot semaphore.
type Service struct {
	opts    Options
	browser Browser
	delays  pacing.Delayer
	limiter *pacing.Limiter
	ledger  Ledger
	log     *zap.Logger

	page *semaphore.Weighted

	authenticated atomic.Bool
	sent          atomic.Int64
	active        atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
}

type Option func(*Service)

func WithLimiter(l *pacing.Limiter) Option { return func(s *Service) { s.limiter = l } }
func WithLedger(l Ledger) Option           { return func(s *Service) { s.ledger = l } }

func New(opts Options, b Browser, delays pacing.Delayer, log *zap.Logger, options ...Option) *Service {
	s := &Service{
		opts:    opts,
		browser: b,
		delays:  delays,
		log:     log.Named("messenger"),
		page:    semaphore.NewWeighted(1),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) Authenticated() bool { return s.authenticated.Load() }
func (s *Service) MessagesSent() int64 { return s.sent.Load() }
func (s *Service) SessionActive() bool { return s.active.Load() }
func (s *Service) MaxPerSession() int  { return s.opts.MaxPerSession }

type AuthResult struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Authenticate starts the browser when needed and probes the login state.
func (s *Service) Authenticate(ctx context.Context) (AuthResult, error) {
	if !s.browser.Ready() {
		if err := s.browser.Start(ctx); err != nil {
			return AuthResult{}, fmt.Errorf("%w: %w", ErrBrowserInit, err)
		}
	}
	return s.Probe(ctx)
}

// Probe loads the login page and infers the login state from the login form
// marker. Navigation failures are reported in the result and leave the
// current state untouched.
func (s *Service) Probe(ctx context.Context) (AuthResult, error) {
	page, err := s.browser.Page()
	if err != nil {
		return AuthResult{}, ErrNotInitialized
	}

	if err := s.page.Acquire(ctx, 1); err != nil {
		return AuthResult{}, err
	}
	defer s.page.Release(1)

	navCtx, cancel := context.WithTimeout(ctx, s.opts.ElementTimeout)
	err = page.Navigate(navCtx, s.opts.LoginURL)
	cancel()
	if err == nil {
		err = pacing.Sleep(ctx, s.opts.Settle)
	}
	var loginForm bool
	if err == nil {
		checkCtx, cancel := context.WithTimeout(ctx, s.opts.ElementTimeout)
		loginForm, err = page.Exists(checkCtx, s.opts.Selectors.LoginMarker)
		cancel()
	}
	if err != nil {
		s.log.Warn("Authentication check failed", zap.Error(err))
		return AuthResult{Success: false, Authenticated: s.Authenticated(), Error: err.Error()}, nil
	}

	if !loginForm {
		s.authenticated.Store(true)
		s.log.Info("Already authenticated")
		return AuthResult{Success: true, Authenticated: true}, nil
	}

	s.authenticated.Store(false)
	s.log.Info("Authentication required", zap.String("login_url", s.opts.LoginURL))
	return AuthResult{Success: true, Authenticated: false, Message: "Authentication required"}, nil
}
