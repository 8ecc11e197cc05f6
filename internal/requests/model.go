package requests

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAmount indicates a missing or non-positive amount.
	ErrInvalidAmount = errors.New("requests: amount must be positive")
	// ErrNotFound indicates that the request does not exist.
	ErrNotFound = errors.New("requests: request not found")
)

// Request is a user's application for pro status.
type Request struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id" validate:"required,gt=0"`
	Username      string    `gorm:"column:username;size:320" json:"username"`
	UserEmail     string    `gorm:"column:user_email;size:320" json:"userEmail"`
	Amount        float64   `gorm:"column:amount;not null" json:"amount" validate:"gt=0"`
	PaymentStatus bool      `gorm:"column:payment_status;not null;default:false" json:"paymentStatus"`
	ProUser       bool      `gorm:"column:pro_user;not null;default:false;index" json:"proUser"`
	UserID        string    `gorm:"column:user_id;size:190;not null;index" json:"userId" validate:"required"`
	CreatedDate   time.Time `gorm:"column:created_date;not null" json:"createdDate"`
}

// TableName provides the explicit table binding for GORM.
func (Request) TableName() string {
	return "pro_requests"
}

// Pending reports whether the request still awaits approval.
func (r Request) Pending() bool {
	return !r.ProUser
}

// CanSubmit reports whether a user holding existing may submit another request.
// Any existing request blocks resubmission, including approved ones.
func CanSubmit(existing []Request) bool {
	return len(existing) == 0
}

// HasPending reports whether any of the requests still awaits approval.
func HasPending(existing []Request) bool {
	for _, request := range existing {
		if request.Pending() {
			return true
		}
	}
	return false
}
