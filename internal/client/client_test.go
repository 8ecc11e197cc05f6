package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
)

const testToken = "test-access-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL:    server.URL + "/",
		Tokens:     auth.StaticTokenSource(testToken),
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client, &calls
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, value any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestNewRequiresBaseURLAndTokens(t *testing.T) {
	if _, err := New(Config{Tokens: auth.StaticTokenSource(testToken)}); !errors.Is(err, errMissingBaseURL) {
		t.Fatalf("expected missing base URL error, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); !errors.Is(err, errMissingTokenSource) {
		t.Fatalf("expected missing token source error, got %v", err)
	}
}

func TestListSendsBearerAndContentType(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/notes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"id": 1, "title": "Buy milk", "content": "", "color": "#fff9c4"},
		})
	})

	listed, err := client.Notes().List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || listed[0].Title != "Buy milk" {
		t.Fatalf("unexpected notes: %+v", listed)
	}
}

func TestCreateRejectsEmptyDraftWithoutNetworkCall(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 1})
	})

	_, err := client.Notes().Create(context.Background(), notes.Note{Title: "", Content: "   "})
	if !errors.Is(err, notes.ErrEmptyNote) {
		t.Fatalf("expected empty note error, got %v", err)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatalf("expected no network call, got %d", atomic.LoadInt32(calls))
	}
}

func TestCreateAppliesDefaultColor(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var received notes.Note
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if received.Color != notes.DefaultColor {
			t.Errorf("expected default color, got %q", received.Color)
		}
		received.ID = 12
		writeJSON(t, w, http.StatusOK, received)
	})

	created, err := client.Notes().Create(context.Background(), notes.Note{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != 12 || created.Pinned || created.Archived {
		t.Fatalf("unexpected created note: %+v", created)
	}
}

func TestNon2xxReturnsHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"error": "list_failed"})
	})

	_, err := client.Notes().ListArchived(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusInternalServerError || httpErr.Path != "/api/notes/archived" {
		t.Fatalf("unexpected http error: %+v", httpErr)
	}
}

func TestInvalidResponseIsRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"title": "missing id"}})
	})

	_, err := client.Notes().ListDueReminders(context.Background())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid response error, got %v", err)
	}
}

func TestTokenFailureSkipsRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Tokens: auth.StaticTokenSource("")})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	if err := client.Notes().Delete(context.Background(), 3); !errors.Is(err, auth.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no request without a token")
	}
}

func TestMarkReadSendsAcknowledgement(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notes/updateReadNotification" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var update notes.ReadNotificationUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if update.NoteID != 7 || !update.ReadNotification {
			t.Errorf("unexpected update: %+v", update)
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"message": "Note updated successfully"})
	})

	if err := client.Notes().MarkRead(context.Background(), 7); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
}

func TestSubmitEncodesQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notes/addRequest" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("amount") != "9.5" || r.URL.Query().Get("paymentStatus") != "false" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 4, "amount": 9.5, "userId": "alice"})
	})

	created, err := client.Requests().Submit(context.Background(), 9.5, false)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if created.ID != 4 {
		t.Fatalf("unexpected request: %+v", created)
	}

	if _, err := client.Requests().Submit(context.Background(), 0, true); !errors.Is(err, requests.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
}

func TestApproveUsesRequestID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/notes/updateUserToPro/42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 42, "amount": 5, "userId": "bob", "proUser": true})
	})

	approved, err := client.Requests().Approve(context.Background(), 42)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved.ProUser {
		t.Fatalf("expected approved request, got %+v", approved)
	}
}
