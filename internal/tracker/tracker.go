// Package tracker surfaces notes whose reminder is due, delivers one desktop
// notification per note and session, and lets the user acknowledge reminders
// one at a time.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"go.uber.org/zap"
)

// DefaultInterval is the polling period between refreshes.
const DefaultInterval = 30 * time.Second

var (
	// ErrNothingSelected is returned by Acknowledge when no note is selected.
	ErrNothingSelected = errors.New("tracker: no note selected")
	errMissingSource   = errors.New("tracker: due source is required")
)

// DueSource provides the due reminders of the current user and acknowledges them.
type DueSource interface {
	ListDueReminders(ctx context.Context) ([]notes.Note, error)
	MarkRead(ctx context.Context, noteID int64) error
}

type Config struct {
	Source   DueSource
	Notifier Notifier
	Interval time.Duration
	// Triggers, when set, forces a refresh on every receive in addition to the timer.
	Triggers <-chan struct{}
	Logger   *zap.Logger
}

// Tracker holds the due reminder state of one session. Network calls run
// outside the lock; concurrent refreshes resolve as last response wins.
type Tracker struct {
	source   DueSource
	notifier Notifier
	interval time.Duration
	triggers <-chan struct{}
	logger   *zap.Logger

	mu           sync.Mutex
	dueNotes     []notes.Note
	acknowledged map[int64]struct{}
	notified     map[int64]struct{}
	selected     *notes.Note
	permission   Permission

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config) (*Tracker, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		source:       cfg.Source,
		notifier:     cfg.Notifier,
		interval:     interval,
		triggers:     cfg.Triggers,
		logger:       logger,
		dueNotes:     make([]notes.Note, 0),
		acknowledged: make(map[int64]struct{}),
		notified:     make(map[int64]struct{}),
	}, nil
}

// RequestPermission moves the permission to requested and then to the
// notifier's answer. Without a notifier the permission is denied.
func (t *Tracker) RequestPermission(ctx context.Context) Permission {
	t.mu.Lock()
	t.permission = PermissionRequested
	t.mu.Unlock()

	result := PermissionDenied
	if t.notifier != nil {
		granted, err := t.notifier.RequestPermission(ctx)
		if err != nil {
			t.logger.Warn("notification permission request failed", zap.Error(err))
		} else if granted {
			result = PermissionGranted
		}
	}

	t.mu.Lock()
	t.permission = result
	t.mu.Unlock()
	return result
}

// Refresh replaces the due notes with the server's view and notifies every
// note that is neither acknowledged nor already notified. On failure the
// previous due notes are kept.
func (t *Tracker) Refresh(ctx context.Context) error {
	fetched, err := t.source.ListDueReminders(ctx)
	if err != nil {
		t.logger.Warn("due reminders refresh failed", zap.Error(err))
		return err
	}

	t.mu.Lock()
	t.dueNotes = append(make([]notes.Note, 0, len(fetched)), fetched...)
	permission := t.permission
	t.mu.Unlock()

	if permission == PermissionDenied {
		permission = t.RequestPermission(ctx)
	}
	if permission != PermissionGranted {
		return nil
	}

	for _, note := range t.reserveNotifications(fetched) {
		if err := t.notifier.Notify(ctx, note); err != nil {
			t.logger.Warn("reminder notification failed", zap.Int64("note_id", note.ID), zap.Error(err))
			t.mu.Lock()
			delete(t.notified, note.ID)
			t.mu.Unlock()
		}
	}
	return nil
}

// reserveNotifications marks and returns the notes that still need a notification.
func (t *Tracker) reserveNotifications(candidates []notes.Note) []notes.Note {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := make([]notes.Note, 0, len(candidates))
	for _, note := range candidates {
		if !note.HasReminder() {
			continue
		}
		if _, ok := t.acknowledged[note.ID]; ok {
			continue
		}
		if _, ok := t.notified[note.ID]; ok {
			continue
		}
		t.notified[note.ID] = struct{}{}
		pending = append(pending, note)
	}
	return pending
}

// Select opens the acknowledgment for note.
func (t *Tracker) Select(note notes.Note) {
	t.mu.Lock()
	defer t.mu.Unlock()
	selected := note
	t.selected = &selected
}

// Selected returns the currently selected note.
func (t *Tracker) Selected() (notes.Note, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selected == nil {
		return notes.Note{}, false
	}
	return *t.selected, true
}

// Acknowledge marks the selected note as read. The selection is cleared
// whether or not the call succeeds; local state only changes on success.
func (t *Tracker) Acknowledge(ctx context.Context) error {
	t.mu.Lock()
	if t.selected == nil {
		t.mu.Unlock()
		return ErrNothingSelected
	}
	note := *t.selected
	t.mu.Unlock()

	err := t.source.MarkRead(ctx, note.ID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selected != nil && t.selected.ID == note.ID {
		t.selected = nil
	}
	if err != nil {
		t.logger.Warn("reminder acknowledgement failed", zap.Int64("note_id", note.ID), zap.Error(err))
		return err
	}
	t.acknowledged[note.ID] = struct{}{}
	remaining := make([]notes.Note, 0, len(t.dueNotes))
	for _, due := range t.dueNotes {
		if due.ID != note.ID {
			remaining = append(remaining, due)
		}
	}
	t.dueNotes = remaining
	return nil
}

// DueNotes returns a copy of the due notes in response order.
func (t *Tracker) DueNotes() []notes.Note {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(make([]notes.Note, 0, len(t.dueNotes)), t.dueNotes...)
}

// IsAcknowledged reports whether the note was acknowledged in this session.
func (t *Tracker) IsAcknowledged(noteID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.acknowledged[noteID]
	return ok
}

// Permission returns the current notification permission state.
func (t *Tracker) Permission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

// Run requests permission, refreshes immediately and then on every tick or
// trigger until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	t.RequestPermission(ctx)
	_ = t.Refresh(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	triggers := t.triggers

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.Refresh(ctx)
		case _, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			_ = t.Refresh(ctx)
		}
	}
}

// Start runs the tracker in the background until Stop is called or ctx ends.
func (t *Tracker) Start(ctx context.Context) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		t.Run(runCtx)
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.lifecycle.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.lifecycle.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
