package reminders

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/email"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
)

const reminderTimeLayout = "Mon Jan 2 15:04 MST 2006"

// FormatRemaining renders the time left until reminder as days, hours and minutes.
func FormatRemaining(reminder, now time.Time) string {
	difference := reminder.Sub(now)
	if difference <= 0 {
		return "Reminder time has passed"
	}
	totalMinutes := int64(difference / time.Minute)
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes / 60) % 24
	minutes := totalMinutes % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
}

// ComposeMessage builds the reminder email for note.
func ComposeMessage(note notes.Note, now time.Time) email.Message {
	var reminder time.Time
	if note.Reminder != nil {
		reminder = note.Reminder.UTC()
	}
	remaining := FormatRemaining(reminder, now)
	reminderText := reminder.Format(reminderTimeLayout)

	var text strings.Builder
	text.WriteString("Dear user,\n\nThis is a reminder for your note:\n\n")
	fmt.Fprintf(&text, "Title: %s\n", note.Title)
	fmt.Fprintf(&text, "Content: %s\n", note.Content)
	fmt.Fprintf(&text, "Reminder Time: %s\n", reminderText)
	fmt.Fprintf(&text, "Time Remaining: %s\n\n", remaining)
	text.WriteString("Please take necessary actions.\n\nBest regards,\nYour Keep Note Reminder Service")

	var markup strings.Builder
	markup.WriteString("<html><body>")
	markup.WriteString("<h2>Reminder for Your Note</h2>")
	fmt.Fprintf(&markup, "<p><b>Title:</b> %s</p>", html.EscapeString(note.Title))
	fmt.Fprintf(&markup, "<p><b>Content:</b> %s</p>", html.EscapeString(note.Content))
	fmt.Fprintf(&markup, "<p><b>Reminder Time:</b> %s</p>", html.EscapeString(reminderText))
	fmt.Fprintf(&markup, "<p><b>Time Remaining:</b> %s</p>", html.EscapeString(remaining))
	markup.WriteString("<hr><p><b>Your Keep Note Reminder Service</b></p>")
	markup.WriteString("</body></html>")

	return email.Message{
		To:       note.Email,
		Subject:  "Reminder: " + note.Title,
		Body:     text.String(),
		HTMLBody: markup.String(),
	}
}
