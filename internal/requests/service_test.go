package requests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:keepnote_requests_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Request{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tick := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})
	if err != nil {
		t.Fatalf("failed to construct requests service: %v", err)
	}
	return service
}

func TestSubmitCopiesIdentityFromClaims(t *testing.T) {
	service := newTestService(t)
	caller := auth.Claims{Subject: "1234", Name: "mahdi", Email: "mahdi@example.com", Role: auth.RoleNone}

	request, err := service.Submit(context.Background(), caller, 9.99, true)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if request.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if request.UserID != "1234" || request.Username != "mahdi" || request.UserEmail != "mahdi@example.com" {
		t.Fatalf("unexpected identity fields %#v", request)
	}
	if request.ProUser || !request.PaymentStatus || request.Amount != 9.99 {
		t.Fatalf("unexpected request state %#v", request)
	}
	if request.CreatedDate.IsZero() {
		t.Fatalf("expected created date")
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Submit(context.Background(), auth.Claims{Subject: "1"}, 0, false); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := service.Submit(context.Background(), auth.Claims{}, 5, false); err == nil {
		t.Fatalf("expected missing user error")
	}
}

func TestApproveWorkflow(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	first, err := service.Submit(ctx, auth.Claims{Subject: "user-1"}, 10, true)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := service.Submit(ctx, auth.Claims{Subject: "user-2"}, 20, false); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	pending, err := service.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("unexpected pending requests %#v", pending)
	}

	approved, err := service.Approve(ctx, first.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved.ProUser {
		t.Fatalf("expected approved request to be pro")
	}
	if _, err := service.Approve(ctx, first.ID); err != nil {
		t.Fatalf("expected repeated approval to succeed, got %v", err)
	}

	pending, err = service.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "user-2" {
		t.Fatalf("expected only user-2 pending, got %#v", pending)
	}

	hasApproved, err := service.HasApproved(ctx, "user-1")
	if err != nil || !hasApproved {
		t.Fatalf("expected user-1 to be approved, got %v (%v)", hasApproved, err)
	}
	hasApproved, err = service.HasApproved(ctx, "user-2")
	if err != nil || hasApproved {
		t.Fatalf("expected user-2 not approved, got %v (%v)", hasApproved, err)
	}

	if _, err := service.Approve(ctx, 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByUserIsScoped(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for _, subject := range []string{"user-1", "user-1", "user-2"} {
		if _, err := service.Submit(ctx, auth.Claims{Subject: subject}, 1, false); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	mine, err := service.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected two requests, got %d", len(mine))
	}
	if !mine[0].CreatedDate.Before(mine[1].CreatedDate) {
		t.Fatalf("expected oldest first")
	}
}
