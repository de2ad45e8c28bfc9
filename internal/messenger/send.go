package messenger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"firstcontact/internal/browser"
	"firstcontact/internal/pacing"
)

// Result is the outcome for one recipient.
type Result struct {
	Success      bool   `json:"success"`
	Username     string `json:"username"`
	MessagesSent int64  `json:"messagesSent,omitempty"`
	Error        string `json:"error,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

func failure(username string, err error) Result {
	return Result{Success: false, Username: username, Error: err.Error()}
}

// SendMessage delivers one message. It fails with ErrNotAuthenticated
// before touching the page; otherwise it waits for the page and reports
// per-step failures inside the Result.
func (s *Service) SendMessage(ctx context.Context, username, message string) (Result, error) {
	if !s.Authenticated() {
		return failure(username, ErrNotAuthenticated), ErrNotAuthenticated
	}
	if err := s.page.Acquire(ctx, 1); err != nil {
		return failure(username, err), err
	}
	defer s.page.Release(1)

	return s.deliver(ctx, s.log, username, message), nil
}

// deliver runs the send sequence with retries. The caller holds the page.
func (s *Service) deliver(ctx context.Context, log *zap.Logger, username, message string) Result {
	log = log.With(zap.String("username", username))

	if err := s.limiter.Wait(ctx); err != nil {
		return failure(username, fmt.Errorf("rate limiter: %w", err))
	}

	var (
		err      error
		attempts int
		retry    = s.opts.Retry
		delay    = retry.InitialDelay()
	)
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Info("Retrying send", zap.Int("attempt", attempt), zap.Int("max_retries", retry.MaxRetries), zap.Duration("after", delay))
			if werr := pacing.Sleep(ctx, delay); werr != nil {
				err = werr
				break
			}
			delay = nextBackoff(delay, retry.BackoffMultiplier, retry.MaxDelay())
		}

		attempts++
		if err = s.attempt(ctx, log, username, message); err == nil {
			break
		}
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < retry.MaxRetries {
			log.Warn("Send attempt failed", zap.Error(err))
		}
	}

	if err != nil {
		log.Error("Error sending message", zap.Error(err), zap.Int("attempts", attempts))
		r := failure(username, err)
		r.Attempts = attempts
		return r
	}

	total := s.sent.Add(1)
	log.Info("Message sent", zap.Int64("total_sent", total))
	return Result{Success: true, Username: username, MessagesSent: total, Attempts: attempts}
}

func nextBackoff(d time.Duration, multiplier float64, max time.Duration) time.Duration {
	if multiplier < 1 {
		multiplier = 1
	}
	next := time.Duration(float64(d) * multiplier)
	if max > 0 && next > max {
		next = max
	}
	return next
}

// attempt performs the search, select, type and send sequence once.
func (s *Service) attempt(ctx context.Context, log *zap.Logger, username, message string) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	page, err := s.browser.Page()
	if err != nil {
		return ErrNotInitialized
	}
	sel, typing := s.opts.Selectors, s.opts.Typing

	log.Info("Sending message")

	if !s.waitFor(ctx, log, page, sel.SearchInput) {
		return ErrSearchInputNotFound
	}
	if err := page.Type(ctx, sel.SearchInput, username, ms(typing.SearchKeyDelayMs)); err != nil {
		return fmt.Errorf("typing into search input: %w", err)
	}
	if err := pacing.Sleep(ctx, ms(typing.AfterSearchMs)); err != nil {
		return err
	}

	if !s.waitFor(ctx, log, page, sel.SearchResult) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err := page.Click(ctx, sel.SearchResult); err != nil {
		return fmt.Errorf("selecting %s: %w", username, err)
	}
	if err := pacing.Sleep(ctx, ms(typing.AfterSelectMs)); err != nil {
		return err
	}

	if !s.waitFor(ctx, log, page, sel.MessageInput) {
		return ErrMessageInputNotFound
	}
	if err := page.Type(ctx, sel.MessageInput, message, ms(typing.MessageKeyDelayMs)); err != nil {
		return fmt.Errorf("typing message: %w", err)
	}
	if err := pacing.Sleep(ctx, ms(typing.AfterTypeMs)); err != nil {
		return err
	}

	if !s.waitFor(ctx, log, page, sel.SendButton) {
		return ErrSendButtonNotFound
	}
	if err := page.Click(ctx, sel.SendButton); err != nil {
		return fmt.Errorf("clicking send: %w", err)
	}
	return pacing.Sleep(ctx, ms(typing.AfterSendMs))
}

func (s *Service) waitFor(ctx context.Context, log *zap.Logger, page browser.Page, selector string) bool {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ElementTimeout)
	defer cancel()
	if err := page.WaitVisible(waitCtx, selector); err != nil {
		log.Debug("Element not found", zap.String("selector", selector), zap.Duration("timeout", s.opts.ElementTimeout), zap.Error(err))
		return false
	}
	return true
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
