package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendDeliversMessage(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "reminders@keepnote.test", WithEndpoint(server.URL), WithHTTPClient(server.Client()))

	err := client.Send(context.Background(), Message{
		To:      "alice@example.com",
		Subject: "Reminder: Call mom",
		Body:    "Title: Call mom",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.From != "reminders@keepnote.test" {
		t.Errorf("From = %q, want %q", received.From, "reminders@keepnote.test")
	}
	if received.Subject != "Reminder: Call mom" {
		t.Errorf("Subject = %q, want %q", received.Subject, "Reminder: Call mom")
	}
	if received.TextBody != "Title: Call mom" {
		t.Errorf("TextBody = %q", received.TextBody)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "reminders@keepnote.test")

	err := client.Send(context.Background(), Message{To: "alice@example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	client := NewClient("token", "reminders@keepnote.test")

	if err := client.Send(context.Background(), Message{To: "  "}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ErrorCode": 300, "Message": "Invalid email request"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "reminders@keepnote.test", WithEndpoint(server.URL))

	err := client.Send(context.Background(), Message{To: "alice@example.com"})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestConfigured(t *testing.T) {
	if !NewClient("token", "from@test.com").Configured() {
		t.Error("expected Configured() = true")
	}
	if NewClient("", "from@test.com").Configured() {
		t.Error("expected Configured() = false")
	}
}
