package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/MarcoPoloResearchLab/keepnote/internal/tracker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchHelp = "Commands: list, ack <id>, refresh, quit"

func newWatchCommand(state *app) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for due reminders and acknowledge them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return state.watch(ctx, cmd.InOrStdin(), stream)
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", true, "Refresh immediately when the server pushes note changes")
	return cmd
}

func (a *app) watch(ctx context.Context, in io.Reader, stream bool) error {
	out := &syncWriter{out: a.out}

	if a.session.ConsumeFirstRedirect() {
		active, err := a.api.Notes().List(ctx)
		if err != nil {
			return err
		}
		printListing(out, notes.Group(active), time.Now())
		fmt.Fprintln(out)
	}

	var triggers <-chan struct{}
	if stream {
		changes, err := a.api.Notes().Subscribe(ctx)
		if err != nil {
			a.logger.Warn("note change stream unavailable, polling only", zap.Error(err))
		} else {
			triggers = changes
		}
	}

	reminders, err := tracker.New(tracker.Config{
		Source:   a.api.Notes(),
		Notifier: tracker.NewWriterNotifier(out, time.Now),
		Interval: a.config.PollInterval,
		Triggers: triggers,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	reminders.Start(ctx)
	defer reminders.Stop()

	fmt.Fprintln(out, "Watching reminders. "+watchHelp)
	session := watchSession{tracker: reminders, out: out, clock: time.Now}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if session.handle(ctx, line) {
				return nil
			}
		}
	}
}

// watchSession interprets the interactive commands of the watch loop.
type watchSession struct {
	tracker *tracker.Tracker
	out     io.Writer
	clock   func() time.Time
}

// handle runs one input line and reports whether the loop should end.
func (s watchSession) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "list", "ls":
		printDue(s.out, s.tracker.DueNotes(), s.clock())
	case "refresh":
		if err := s.tracker.Refresh(ctx); err != nil {
			fmt.Fprintln(s.out, "refresh failed:", err)
		}
	case "ack":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: ack <id>")
			return false
		}
		if err := s.acknowledge(ctx, fields[1]); err != nil {
			fmt.Fprintln(s.out, "ack failed:", err)
		}
	default:
		fmt.Fprintln(s.out, watchHelp)
	}
	return false
}

func (s watchSession) acknowledge(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	for _, note := range s.tracker.DueNotes() {
		if note.ID != id {
			continue
		}
		s.tracker.Select(note)
		if err := s.tracker.Acknowledge(ctx); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Acknowledged note %d.\n", id)
		return nil
	}
	return errors.New("note is not among the due reminders")
}

// syncWriter serialises writes from the notifier and the input loop.
type syncWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}
