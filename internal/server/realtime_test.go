package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRealtimeDispatcherDeliversToOwnerOnly(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceStream, aliceCleanup := dispatcher.Subscribe(ctx, "alice")
	defer aliceCleanup()
	bobStream, bobCleanup := dispatcher.Subscribe(ctx, "bob")
	defer bobCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "alice",
		EventType: RealtimeEventNoteChanged,
		NoteIDs:   []int64{7},
		Timestamp: testNow,
	})

	select {
	case message := <-aliceStream:
		if len(message.NoteIDs) != 1 || message.NoteIDs[0] != 7 {
			t.Fatalf("unexpected message: %+v", message)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected alice to receive the event")
	}

	select {
	case message := <-bobStream:
		t.Fatalf("bob should not receive alice's events, got %+v", message)
	default:
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "alice")
	if dispatcher.subscriberCount("alice") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount("alice") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber to be removed after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cleanup()
}

func TestRealtimeDispatcherIgnoresIncompleteMessages(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "alice")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{UserID: "alice"})
	dispatcher.Publish(RealtimeMessage{EventType: RealtimeEventNoteChanged})

	select {
	case message := <-stream:
		t.Fatalf("unexpected message: %+v", message)
	default:
	}
}

func TestNotesStreamEmitsNoteChangeEvents(t *testing.T) {
	harness := newTestHarness(t)
	token := harness.token(t, alice)

	server := httptest.NewServer(harness.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/notes/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to build stream request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if !strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}

	deadline := time.Now().Add(time.Second)
	for harness.realtime.subscriberCount(alice.Subject) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream subscriber was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	created := harness.do(t, token, http.MethodPost, "/api/notes", map[string]any{"title": "Buy milk"})
	if created.Code != http.StatusOK {
		t.Fatalf("expected note creation to succeed, got %d", created.Code)
	}

	reader := bufio.NewReader(response.Body)
	var sawEvent, sawData bool
	for !(sawEvent && sawData) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before event: %v", err)
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "event:"+RealtimeEventNoteChanged:
			sawEvent = true
		case sawEvent && strings.HasPrefix(line, "data:"):
			if !strings.Contains(line, `"noteIds":[1]`) {
				t.Fatalf("unexpected event payload: %s", line)
			}
			sawData = true
		}
	}
}
