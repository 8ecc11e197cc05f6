package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// LegacyReminderLayout is the naive timestamp layout emitted by older clients.
const LegacyReminderLayout = "2006-01-02 15:04:05"

var reminderLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	LegacyReminderLayout,
	"2006-01-02 15:04",
}

// Palette lists the swatches a note may be tagged with, in display order.
var Palette = []string{"#fff9c4", "#f28b82", "#fbbc04", "#fff475", "#ccff90", "#a7ffeb"}

// DefaultColor is applied when a note is stored without a color.
var DefaultColor = Palette[0]

var (
	// ErrEmptyNote indicates that both title and content are blank.
	ErrEmptyNote = errors.New("notes: title or content is required")
	// ErrInvalidColor indicates a color outside of Palette.
	ErrInvalidColor = errors.New("notes: color is not part of the palette")
	// ErrInvalidReminder indicates a reminder timestamp that could not be parsed.
	ErrInvalidReminder = errors.New("notes: invalid reminder timestamp")
	// ErrNotFound indicates that the note does not exist for the caller.
	ErrNotFound = errors.New("notes: note not found")
)

// Note is a user's note as stored and as exchanged over the API.
type Note struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id,omitempty" validate:"required,gt=0"`
	UserID           string     `gorm:"column:user_id;size:190;not null;index:idx_notes_user_state,priority:1" json:"userId,omitempty"`
	Email            string     `gorm:"column:user_email;size:320" json:"email,omitempty"`
	Title            string     `gorm:"column:title;type:text;not null;default:''" json:"title"`
	Content          string     `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Color            string     `gorm:"column:color;size:16;not null;default:'#fff9c4'" json:"color" validate:"omitempty,hexcolor"`
	Pinned           bool       `gorm:"column:pinned;not null;default:false" json:"pinned"`
	Archived         bool       `gorm:"column:archived;not null;default:false;index:idx_notes_user_state,priority:2" json:"archived"`
	Reminder         *time.Time `gorm:"column:reminder;index" json:"reminder,omitempty"`
	ReadNotification bool       `gorm:"column:read_notification;not null;default:false" json:"readNotification"`
	EmailSent        bool       `gorm:"column:email_sent;not null;default:false" json:"emailSent"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// MarshalJSON writes the reminder as RFC 3339 in UTC.
func (n Note) MarshalJSON() ([]byte, error) {
	type alias Note
	payload := struct {
		alias
		Reminder *string `json:"reminder,omitempty"`
	}{alias: alias(n)}
	if n.Reminder != nil {
		formatted := n.Reminder.UTC().Format(time.RFC3339)
		payload.Reminder = &formatted
	}
	return json.Marshal(payload)
}

// UnmarshalJSON accepts any reminder form understood by ParseReminder.
func (n *Note) UnmarshalJSON(data []byte) error {
	type alias Note
	payload := struct {
		*alias
		Reminder json.RawMessage `json:"reminder"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	reminder, err := parseReminderJSON(payload.Reminder)
	if err != nil {
		return err
	}
	n.Reminder = reminder
	return nil
}

func parseReminderJSON(raw json.RawMessage) (*time.Time, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	return ParseReminder(value)
}

// ParseReminder parses a reminder timestamp. Values without a zone are read as UTC.
// A blank value yields a nil reminder.
func ParseReminder(value string) (*time.Time, error) {
	return ParseReminderIn(value, time.UTC)
}

// ParseReminderIn parses a reminder timestamp, reading zoneless values in location.
func ParseReminderIn(value string, location *time.Location) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if location == nil {
		location = time.UTC
	}
	for _, layout := range reminderLayouts {
		parsed, err := time.ParseInLocation(layout, trimmed, location)
		if err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidReminder, trimmed)
}

// ValidateDraft rejects a note whose title and content are both blank.
func ValidateDraft(title, content string) error {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(content) == "" {
		return ErrEmptyNote
	}
	return nil
}

// NormalizeColor maps an empty color to DefaultColor and rejects colors outside Palette.
func NormalizeColor(color string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(color))
	if normalized == "" {
		return DefaultColor, nil
	}
	if !slices.Contains(Palette, normalized) {
		return "", fmt.Errorf("%w: %s", ErrInvalidColor, color)
	}
	return normalized, nil
}

// PrepareDraft validates a note about to be created and applies the default color.
func PrepareDraft(note Note) (Note, error) {
	if err := ValidateDraft(note.Title, note.Content); err != nil {
		return Note{}, err
	}
	color, err := NormalizeColor(note.Color)
	if err != nil {
		return Note{}, err
	}
	note.Color = color
	return note, nil
}

// HasReminder reports whether the note carries a reminder.
func (n Note) HasReminder() bool {
	return n.Reminder != nil && !n.Reminder.IsZero()
}

// IsDue reports whether the reminder is at or before now and still unread.
func (n Note) IsDue(now time.Time) bool {
	return n.HasReminder() && !n.ReadNotification && !n.Reminder.After(now)
}

// ReadNotificationUpdate is the body of the mark-read call.
type ReadNotificationUpdate struct {
	NoteID           int64 `json:"noteId" binding:"required" validate:"required"`
	ReadNotification bool  `json:"readNotification"`
}
