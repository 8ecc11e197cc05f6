package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
	"github.com/MarcoPoloResearchLab/keepnote/internal/tracker"
)

const (
	displayTimeLayout = "2006-01-02 15:04"
	previewLength     = 48
)

func printIdentity(out io.Writer, claims auth.Claims) {
	fmt.Fprintf(out, "Name:    %s\n", claims.Name)
	fmt.Fprintf(out, "Email:   %s\n", claims.Email)
	fmt.Fprintf(out, "Subject: %s\n", claims.Subject)
	fmt.Fprintf(out, "Role:    %s\n", claims.Role)
}

// printListing renders the dashboard view: pinned notes first, then the rest.
func printListing(out io.Writer, listing notes.Listing, now time.Time) {
	if len(listing.Pinned) > 0 {
		fmt.Fprintln(out, "Pinned")
		printNotes(out, listing.Pinned, now)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Others")
	}
	if len(listing.Others) == 0 && len(listing.Pinned) == 0 {
		fmt.Fprintln(out, "No notes yet.")
		return
	}
	printNotes(out, listing.Others, now)
}

func printNotes(out io.Writer, list []notes.Note, now time.Time) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tCONTENT\tCOLOR\tREMINDER")
	for _, note := range list {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
			note.ID, preview(note.Title), preview(note.Content), note.Color, reminderCell(note, now))
	}
	_ = writer.Flush()
}

func reminderCell(note notes.Note, now time.Time) string {
	if !note.HasReminder() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", note.Reminder.Local().Format(displayTimeLayout), tracker.TimeUntilDue(note.Reminder, now))
}

func printRequests(out io.Writer, list []requests.Request) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No requests.")
		return
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tUSER\tEMAIL\tAMOUNT\tPAID\tSTATUS\tCREATED")
	for _, request := range list {
		status := "pending"
		if !request.Pending() {
			status = "approved"
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%.2f\t%t\t%s\t%s\n",
			request.ID, request.Username, request.UserEmail, request.Amount, request.PaymentStatus,
			status, request.CreatedDate.Local().Format(displayTimeLayout))
	}
	_ = writer.Flush()
}

func printDue(out io.Writer, due []notes.Note, now time.Time) {
	if len(due) == 0 {
		fmt.Fprintln(out, "No due reminders.")
		return
	}
	for _, note := range due {
		title := note.Title
		if strings.TrimSpace(title) == "" {
			title = preview(note.Content)
		}
		fmt.Fprintf(out, "#%d %s: %s\n", note.ID, title, tracker.TimeUntilDue(note.Reminder, now))
	}
}

func preview(text string) string {
	flattened := strings.Join(strings.Fields(text), " ")
	runes := []rune(flattened)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return flattened
}
