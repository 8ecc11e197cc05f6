package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultReminderLookahead widens the due-reminder query so reminders surface shortly before they fire.
const DefaultReminderLookahead = 5 * time.Minute

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	errInvalidWindow   = errors.New("window end precedes start")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a machine readable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew          = "notes.service.new"
	opListActive          = "notes.list_active"
	opListArchived        = "notes.list_archived"
	opListPinned          = "notes.list_pinned"
	opCreate              = "notes.create"
	opUpdate              = "notes.update"
	opDelete              = "notes.delete"
	opListDue             = "notes.list_due_reminders"
	opMarkRead            = "notes.mark_read_notification"
	opListEmailCandidates = "notes.list_email_candidates"
	opMarkEmailSent       = "notes.mark_email_sent"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Owner identifies the caller a note belongs to.
type Owner struct {
	UserID string
	Email  string
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	// ReminderLookahead extends the due window past now. Negative values are treated as zero.
	ReminderLookahead time.Duration
}

type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	lookahead time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	lookahead := cfg.ReminderLookahead
	if lookahead < 0 {
		lookahead = 0
	}

	return &Service{
		db:        cfg.Database,
		clock:     clock,
		logger:    logger,
		lookahead: lookahead,
	}, nil
}

// ListActive returns the caller's notes that are not archived, oldest first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]Note, error) {
	return s.listWhere(ctx, opListActive, userID, "archived = ?", false)
}

// ListArchived returns the caller's archived notes, oldest first.
func (s *Service) ListArchived(ctx context.Context, userID string) ([]Note, error) {
	return s.listWhere(ctx, opListArchived, userID, "archived = ?", true)
}

// ListPinned returns the caller's pinned notes regardless of archive state.
func (s *Service) ListPinned(ctx context.Context, userID string) ([]Note, error) {
	return s.listWhere(ctx, opListPinned, userID, "pinned = ?", true)
}

func (s *Service) listWhere(ctx context.Context, operation, userID, condition string, value bool) ([]Note, error) {
	if err := s.requireUser(operation, userID); err != nil {
		return nil, err
	}

	notes := make([]Note, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(condition, value).
		Order("id ASC").
		Find(&notes).Error; err != nil {
		s.logError(operation, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(operation, "query_failed", err)
	}
	return notes, nil
}

// Create stores a new note for owner. Server-managed fields in the input are ignored.
func (s *Service) Create(ctx context.Context, owner Owner, input Note) (Note, error) {
	if err := s.requireUser(opCreate, owner.UserID); err != nil {
		return Note{}, err
	}

	draft, err := PrepareDraft(input)
	if err != nil {
		return Note{}, newServiceError(opCreate, invalidReason(err), err)
	}

	note := Note{
		UserID:           owner.UserID,
		Email:            strings.TrimSpace(owner.Email),
		Title:            draft.Title,
		Content:          draft.Content,
		Color:            draft.Color,
		Pinned:           draft.Pinned,
		Archived:         draft.Archived,
		Reminder:         utcPointer(draft.Reminder),
		ReadNotification: draft.ReadNotification,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", owner.UserID))
		return Note{}, newServiceError(opCreate, "insert_failed", err)
	}
	return note, nil
}

// Update replaces the editable fields of an owned note. Moving the reminder later
// clears EmailSent so the new reminder is emailed again.
func (s *Service) Update(ctx context.Context, owner Owner, noteID int64, input Note) (Note, error) {
	if err := s.requireUser(opUpdate, owner.UserID); err != nil {
		return Note{}, err
	}

	color, err := NormalizeColor(input.Color)
	if err != nil {
		return Note{}, newServiceError(opUpdate, "invalid_color", err)
	}

	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findOwned(tx, opUpdate, owner.UserID, noteID)
		if err != nil {
			return err
		}

		reminder := utcPointer(input.Reminder)
		if reminderMovedLater(existing.Reminder, reminder) {
			existing.EmailSent = false
		}

		existing.Title = input.Title
		existing.Content = input.Content
		existing.Color = color
		existing.Pinned = input.Pinned
		existing.Archived = input.Archived
		existing.Reminder = reminder
		if email := strings.TrimSpace(owner.Email); email != "" {
			existing.Email = email
		}

		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdate, "save_failed", err,
				zap.String("user_id", owner.UserID),
				zap.Int64("note_id", noteID))
			return newServiceError(opUpdate, "save_failed", err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

// Delete removes an owned note permanently.
func (s *Service) Delete(ctx context.Context, userID string, noteID int64) error {
	if err := s.requireUser(opDelete, userID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, noteID).
		Delete(&Note{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error,
			zap.String("user_id", userID),
			zap.Int64("note_id", noteID))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "not_found", ErrNotFound)
	}
	return nil
}

// ListDueReminders returns unread notes whose reminder is at or before now plus the lookahead.
func (s *Service) ListDueReminders(ctx context.Context, userID string) ([]Note, error) {
	if err := s.requireUser(opListDue, userID); err != nil {
		return nil, err
	}

	cutoff := s.clock().UTC().Add(s.lookahead)
	notes := make([]Note, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("read_notification = ?", false).
		Where("reminder IS NOT NULL AND reminder <= ?", cutoff).
		Order("reminder ASC").
		Order("id ASC").
		Find(&notes).Error; err != nil {
		s.logError(opListDue, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListDue, "query_failed", err)
	}
	return notes, nil
}

// MarkReadNotification records whether the reminder of an owned note was acknowledged.
func (s *Service) MarkReadNotification(ctx context.Context, userID string, update ReadNotificationUpdate) error {
	if err := s.requireUser(opMarkRead, userID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&Note{}).
		Where("user_id = ? AND id = ?", userID, update.NoteID).
		Update("read_notification", update.ReadNotification)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error,
			zap.String("user_id", userID),
			zap.Int64("note_id", update.NoteID))
		return newServiceError(opMarkRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opMarkRead, "not_found", ErrNotFound)
	}
	return nil
}

// ListEmailCandidates returns unread notes of every user whose reminder lies in
// [start, end] and whose email has not been sent yet.
func (s *Service) ListEmailCandidates(ctx context.Context, start, end time.Time) ([]Note, error) {
	if end.Before(start) {
		return nil, newServiceError(opListEmailCandidates, "invalid_window", errInvalidWindow)
	}

	notes := make([]Note, 0)
	if err := s.db.WithContext(ctx).
		Where("email_sent = ?", false).
		Where("read_notification = ?", false).
		Where("reminder >= ? AND reminder <= ?", start.UTC(), end.UTC()).
		Order("reminder ASC").
		Find(&notes).Error; err != nil {
		s.logError(opListEmailCandidates, "query_failed", err)
		return nil, newServiceError(opListEmailCandidates, "query_failed", err)
	}
	return notes, nil
}

// MarkEmailSent flags the reminder email of a note as delivered.
func (s *Service) MarkEmailSent(ctx context.Context, noteID int64) error {
	result := s.db.WithContext(ctx).
		Model(&Note{}).
		Where("id = ?", noteID).
		Update("email_sent", true)
	if result.Error != nil {
		s.logError(opMarkEmailSent, "update_failed", result.Error, zap.Int64("note_id", noteID))
		return newServiceError(opMarkEmailSent, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opMarkEmailSent, "not_found", ErrNotFound)
	}
	return nil
}

func (s *Service) findOwned(tx *gorm.DB, operation, userID string, noteID int64) (Note, error) {
	var note Note
	err := tx.Where("user_id = ? AND id = ?", userID, noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err,
			zap.String("user_id", userID),
			zap.Int64("note_id", noteID))
		return Note{}, newServiceError(operation, "note_select_failed", err)
	}
	return note, nil
}

func (s *Service) requireUser(operation, userID string) error {
	if s == nil || s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" {
		s.logError(operation, "missing_user_id", errMissingUserID)
		return newServiceError(operation, "missing_user_id", errMissingUserID)
	}
	return nil
}

func reminderMovedLater(previous, next *time.Time) bool {
	if next == nil {
		return false
	}
	if previous == nil {
		return true
	}
	return next.After(*previous)
}

func invalidReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyNote):
		return "empty_note"
	case errors.Is(err, ErrInvalidColor):
		return "invalid_color"
	default:
		return "invalid_note"
	}
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	utc := value.UTC().Truncate(time.Second)
	return &utc
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
