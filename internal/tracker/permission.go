package tracker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
)

// Permission is the desktop notification permission state.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionRequested
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionRequested:
		return "requested"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Notifier delivers desktop notifications.
type Notifier interface {
	// RequestPermission asks the platform for permission and reports whether it was granted.
	RequestPermission(ctx context.Context) (bool, error)
	Notify(ctx context.Context, note notes.Note) error
}

// WriterNotifier prints notifications as lines of text. It is always granted.
type WriterNotifier struct {
	mu    sync.Mutex
	out   io.Writer
	clock func() time.Time
}

// NewWriterNotifier returns a notifier that writes to out.
func NewWriterNotifier(out io.Writer, clock func() time.Time) *WriterNotifier {
	if clock == nil {
		clock = time.Now
	}
	return &WriterNotifier{out: out, clock: clock}
}

func (w *WriterNotifier) RequestPermission(context.Context) (bool, error) {
	return w.out != nil, nil
}

func (w *WriterNotifier) Notify(_ context.Context, note notes.Note) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := fmt.Sprintf("\a[reminder] #%d %s", note.ID, displayTitle(note))
	if remaining := TimeUntilDue(note.Reminder, w.clock()); remaining != "" {
		line += " (" + remaining + ")"
	}
	_, err := fmt.Fprintln(w.out, line)
	return err
}

func displayTitle(note notes.Note) string {
	if title := strings.TrimSpace(note.Title); title != "" {
		return title
	}
	content := []rune(strings.TrimSpace(note.Content))
	if len(content) > 40 {
		return string(content[:40]) + "..."
	}
	return string(content)
}
