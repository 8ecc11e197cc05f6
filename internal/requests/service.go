package requests

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
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
	opServiceNew  = "requests.service.new"
	opSubmit      = "requests.submit"
	opListByUser  = "requests.list_by_user"
	opListPending = "requests.list_pending"
	opApprove     = "requests.approve"
	opHasApproved = "requests.has_approved"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists pro upgrade requests.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
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
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Submit records a new pending request on behalf of the caller.
// Username and email are taken from the caller's claims.
func (s *Service) Submit(ctx context.Context, caller auth.Claims, amount float64, paymentStatus bool) (Request, error) {
	if strings.TrimSpace(caller.Subject) == "" {
		s.logError(opSubmit, "missing_user_id", errMissingUserID)
		return Request{}, newServiceError(opSubmit, "missing_user_id", errMissingUserID)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Request{}, newServiceError(opSubmit, "invalid_amount", ErrInvalidAmount)
	}

	request := Request{
		Username:      caller.Name,
		UserEmail:     caller.Email,
		Amount:        amount,
		PaymentStatus: paymentStatus,
		ProUser:       false,
		UserID:        caller.Subject,
		CreatedDate:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		s.logError(opSubmit, "insert_failed", err, zap.String("user_id", caller.Subject))
		return Request{}, newServiceError(opSubmit, "insert_failed", err)
	}
	return request, nil
}

// ListByUser returns every request the user has submitted, oldest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	if strings.TrimSpace(userID) == "" {
		s.logError(opListByUser, "missing_user_id", errMissingUserID)
		return nil, newServiceError(opListByUser, "missing_user_id", errMissingUserID)
	}
	requests := make([]Request, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_date ASC").
		Order("id ASC").
		Find(&requests).Error; err != nil {
		s.logError(opListByUser, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListByUser, "query_failed", err)
	}
	return requests, nil
}

// ListPending returns every request awaiting approval, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Request, error) {
	requests := make([]Request, 0)
	if err := s.db.WithContext(ctx).
		Where("pro_user = ?", false).
		Order("created_date ASC").
		Order("id ASC").
		Find(&requests).Error; err != nil {
		s.logError(opListPending, "query_failed", err)
		return nil, newServiceError(opListPending, "query_failed", err)
	}
	return requests, nil
}

// Approve grants pro status for the request. Approving twice is a no-op.
func (s *Service) Approve(ctx context.Context, requestID int64) (Request, error) {
	var approved Request
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request Request
		err := tx.Where("id = ?", requestID).Take(&request).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opApprove, "not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opApprove, "request_select_failed", err, zap.Int64("request_id", requestID))
			return newServiceError(opApprove, "request_select_failed", err)
		}
		if !request.ProUser {
			if err := tx.Model(&request).Update("pro_user", true).Error; err != nil {
				s.logError(opApprove, "update_failed", err, zap.Int64("request_id", requestID))
				return newServiceError(opApprove, "update_failed", err)
			}
			request.ProUser = true
		}
		approved = request
		return nil
	})
	if txErr != nil {
		return Request{}, txErr
	}
	return approved, nil
}

// HasApproved reports whether the user owns at least one approved request.
func (s *Service) HasApproved(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Request{}).
		Where("user_id = ? AND pro_user = ?", userID, true).
		Count(&count).Error; err != nil {
		s.logError(opHasApproved, "query_failed", err, zap.String("user_id", userID))
		return false, newServiceError(opHasApproved, "query_failed", err)
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("requests service error", attrs...)
}
