// Package reminders emails upcoming note reminders to users holding an
// approved pro request.
package reminders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/email"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultWindow   = 10 * time.Minute
)

var errMissingDependency = errors.New("reminders: notes, approvals and sender are required")

// NoteStore is the part of the notes service the scheduler needs.
type NoteStore interface {
	ListEmailCandidates(ctx context.Context, start, end time.Time) ([]notes.Note, error)
	MarkEmailSent(ctx context.Context, noteID int64) error
}

// ApprovalChecker reports whether a user holds an approved pro request.
type ApprovalChecker interface {
	HasApproved(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	Notes     NoteStore
	Approvals ApprovalChecker
	Sender    email.Sender
	Interval  time.Duration
	Window    time.Duration
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Scheduler periodically emails reminders falling within the next window.
type Scheduler struct {
	notes     NoteStore
	approvals ApprovalChecker
	sender    email.Sender
	interval  time.Duration
	window    time.Duration
	clock     func() time.Time
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Notes == nil || cfg.Approvals == nil || cfg.Sender == nil {
		return nil, errMissingDependency
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		notes:     cfg.Notes,
		approvals: cfg.Approvals,
		sender:    cfg.Sender,
		interval:  interval,
		window:    window,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Tick(runCtx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick emails every candidate in [now, now+window] whose owner is approved and
// returns the number of emails sent. Failures are logged per note; the note
// stays un-emailed for the next tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.clock().UTC()
	candidates, err := s.notes.ListEmailCandidates(ctx, now, now.Add(s.window))
	if err != nil {
		s.logger.Error("reminder scan failed", zap.Error(err))
		return 0
	}
	if len(candidates) > 0 {
		s.logger.Info("reminder scan", zap.Int("candidates", len(candidates)))
	}

	approved := make(map[string]bool)
	sent := 0
	for _, note := range candidates {
		fields := []zap.Field{zap.Int64("note_id", note.ID), zap.String("user_id", note.UserID)}

		allowed, checked := approved[note.UserID]
		if !checked {
			allowed, err = s.approvals.HasApproved(ctx, note.UserID)
			if err != nil {
				s.logger.Error("approval lookup failed", append(fields, zap.Error(err))...)
				continue
			}
			approved[note.UserID] = allowed
		}
		if !allowed {
			continue
		}
		if strings.TrimSpace(note.Email) == "" {
			s.logger.Warn("reminder skipped: owner has no email", fields...)
			continue
		}

		if err := s.sender.Send(ctx, ComposeMessage(note, now)); err != nil {
			s.logger.Error("reminder email failed", append(fields, zap.Error(err))...)
			continue
		}
		if err := s.notes.MarkEmailSent(ctx, note.ID); err != nil {
			s.logger.Error("failed to mark reminder emailed", append(fields, zap.Error(err))...)
			continue
		}
		sent++
		s.logger.Info("reminder email sent", fields...)
	}
	return sent
}
