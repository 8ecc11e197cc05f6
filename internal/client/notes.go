package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
)

const (
	notesPath       = "/api/notes"
	noteChangeEvent = "note-change"
)

// Notes wraps the note endpoints.
type Notes struct {
	client *Client
}

type messageResponse struct {
	Message string `json:"message" validate:"required"`
}

// List returns the caller's active notes.
func (n *Notes) List(ctx context.Context) ([]notes.Note, error) {
	result := make([]notes.Note, 0)
	if err := n.client.do(ctx, http.MethodGet, notesPath, nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListArchived returns the caller's archived notes.
func (n *Notes) ListArchived(ctx context.Context) ([]notes.Note, error) {
	result := make([]notes.Note, 0)
	if err := n.client.do(ctx, http.MethodGet, notesPath+"/archived", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Create stores a new note. Empty drafts are rejected before any request is sent.
func (n *Notes) Create(ctx context.Context, draft notes.Note) (notes.Note, error) {
	prepared, err := notes.PrepareDraft(draft)
	if err != nil {
		return notes.Note{}, err
	}
	prepared.ID = 0
	var created notes.Note
	if err := n.client.do(ctx, http.MethodPost, notesPath, nil, prepared, &created); err != nil {
		return notes.Note{}, err
	}
	return created, nil
}

// Update replaces the note with the given id.
func (n *Notes) Update(ctx context.Context, id int64, note notes.Note) (notes.Note, error) {
	var updated notes.Note
	if err := n.client.do(ctx, http.MethodPut, notePath(id), nil, note, &updated); err != nil {
		return notes.Note{}, err
	}
	return updated, nil
}

// Delete removes the note with the given id.
func (n *Notes) Delete(ctx context.Context, id int64) error {
	return n.client.do(ctx, http.MethodDelete, notePath(id), nil, nil, nil)
}

// ListDueReminders returns unread notes whose reminder is due.
func (n *Notes) ListDueReminders(ctx context.Context) ([]notes.Note, error) {
	result := make([]notes.Note, 0)
	if err := n.client.do(ctx, http.MethodGet, notesPath+"/getNotesWithDueReminders", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkRead acknowledges the reminder of a note.
func (n *Notes) MarkRead(ctx context.Context, noteID int64) error {
	update := notes.ReadNotificationUpdate{NoteID: noteID, ReadNotification: true}
	if err := n.client.validate.Struct(update); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	var response messageResponse
	return n.client.do(ctx, http.MethodPost, notesPath+"/updateReadNotification", nil, update, &response)
}

// Subscribe opens the note change stream and signals changes until ctx ends or
// the stream closes. The returned channel is closed when the stream ends.
func (n *Notes) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	token, err := n.client.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, n.client.baseURL+notesPath+"/stream", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "text/event-stream")

	streamClient := *n.client.httpClient
	streamClient.Timeout = 0
	response, err := streamClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, &HTTPError{Method: http.MethodGet, Path: notesPath + "/stream", StatusCode: response.StatusCode}
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer response.Body.Close()
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "event:") {
				continue
			}
			if strings.TrimSpace(strings.TrimPrefix(line, "event:")) != noteChangeEvent {
				continue
			}
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()
	return changes, nil
}

func notePath(id int64) string {
	return notesPath + "/" + strconv.FormatInt(id, 10)
}
