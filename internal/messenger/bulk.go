package messenger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firstcontact/internal/contacts"
)

// Report is the ordered outcome of one bulk session.
type Report struct {
	SessionID string
	Results   []Result
}

func (r Report) Successful() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed counts attempted recipients that did not get the message.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success && !res.Skipped {
			n++
		}
	}
	return n
}

func (r Report) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// RunBulk sends tmpl to at most MaxPerSession recipients in order, pausing a
// fresh random delay between them. It returns ErrSessionActive when another
// bulk session is running and ErrPageBusy when a single send or probe holds
// the page. Individual failures are recorded and do not end the
// session; only Stop or ctx cancellation does, and only between recipients.
func (s *Service) RunBulk(ctx context.Context, recipients []contacts.Recipient, tmpl *contacts.Template) (Report, error) {
	if !s.Authenticated() {
		return Report{}, ErrNotAuthenticated
	}
	if !s.page.TryAcquire(1) {
		if s.SessionActive() {
			return Report{}, ErrSessionActive
		}
		return Report{}, ErrPageBusy
	}
	defer s.page.Release(1)

	stop := s.begin()
	defer s.end(stop)

	report := Report{SessionID: uuid.NewString()}
	log := s.log.With(zap.String("session_id", report.SessionID))

	limit := min(len(recipients), s.opts.MaxPerSession)
	report.Results = make([]Result, 0, limit)
	log.Info("Bulk session started", zap.Int("recipients", len(recipients)), zap.Int("limit", limit))

loop:
	for i := 0; i < limit; i++ {
		select {
		case <-stop:
			log.Info("Session stopped by user", zap.Int("processed", i))
			break loop
		default:
		}
		if ctx.Err() != nil {
			log.Info("Session cancelled", zap.Int("processed", i), zap.Error(ctx.Err()))
			break
		}

		res, attempted := s.processRecipient(ctx, log, recipients[i], tmpl)
		report.Results = append(report.Results, res)

		if attempted && i < limit-1 {
			d := s.delays.Next()
			log.Info("Waiting before next message", zap.Duration("delay", d))
			waitOrStop(ctx, stop, d)
		}
	}

	log.Info("Bulk session finished",
		zap.Int("processed", len(report.Results)),
		zap.Int("successful", report.Successful()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped()))
	return report, nil
}

// processRecipient reports whether the page was touched for r.
func (s *Service) processRecipient(ctx context.Context, log *zap.Logger, r contacts.Recipient, tmpl *contacts.Template) (Result, bool) {
	if s.ledger != nil && s.ledger.Contacted(r, tmpl) {
		log.Info("Skipping recipient, already contacted", zap.String("username", r.Username))
		return Result{Username: r.Username, Skipped: true, Error: "already contacted"}, false
	}

	message, err := tmpl.Render(r)
	if err != nil {
		log.Error("Failed to render message", zap.String("username", r.Username), zap.Error(err))
		return failure(r.Username, err), false
	}

	res := s.deliver(ctx, log, r.Username, message)
	if res.Success && s.ledger != nil {
		if err := s.ledger.MarkContacted(r, tmpl); err != nil {
			log.Warn("Failed to record contacted recipient", zap.String("username", r.Username), zap.Error(err))
		}
	}
	return res, true
}

// Stop ends the running session before its next recipient. It is safe to
// call when nothing is running.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("Session stop requested", zap.Bool("running", s.stop != nil))
	s.active.Store(false)
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Service) begin() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop := make(chan struct{})
	s.stop = stop
	s.active.Store(true)
	return stop
}

func (s *Service) end(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == stop {
		s.stop = nil
	}
	s.active.Store(false)
}

func waitOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	case <-ctx.Done():
	}
}
