package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	result, err := h.notesService.ListActive(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleListArchived(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	result, err := h.notesService.ListArchived(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleListPinned(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	result, err := h.notesService.ListPinned(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	claims := claimsFrom(c)

	var payload notes.Note
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeBindError(c, err)
		return
	}

	created, err := h.notesService.Create(c.Request.Context(), ownerFrom(c), payload)
	if err != nil {
		h.writeServiceError(c, "create_failed", err)
		return
	}
	h.publishNoteChange(claims.Subject, created.ID)
	c.JSON(http.StatusOK, created)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}

	var payload notes.Note
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeBindError(c, err)
		return
	}

	updated, err := h.notesService.Update(c.Request.Context(), ownerFrom(c), noteID, payload)
	if err != nil {
		h.writeServiceError(c, "update_failed", err)
		return
	}
	h.publishNoteChange(updated.UserID, updated.ID)
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	userID := c.GetString(userIDContextKey)
	if err := h.notesService.Delete(c.Request.Context(), userID, noteID); err != nil {
		h.writeServiceError(c, "delete_failed", err)
		return
	}
	h.publishNoteChange(userID, noteID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDueReminders(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	due, err := h.notesService.ListDueReminders(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, "due_reminders_failed", err)
		return
	}
	c.JSON(http.StatusOK, due)
}

func (h *httpHandler) handleUpdateReadNotification(c *gin.Context) {
	var payload notes.ReadNotificationUpdate
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeBindError(c, err)
		return
	}
	userID := c.GetString(userIDContextKey)
	if err := h.notesService.MarkReadNotification(c.Request.Context(), userID, payload); err != nil {
		h.writeServiceError(c, "read_notification_failed", err)
		return
	}
	h.publishNoteChange(userID, payload.NoteID)
	c.JSON(http.StatusOK, gin.H{"message": "Note updated successfully"})
}

func (h *httpHandler) noteIDParam(c *gin.Context) (int64, bool) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || noteID <= 0 {
		h.logger.Debug("invalid note id", zap.String("id", c.Param("id")))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return 0, false
	}
	return noteID, true
}

func (h *httpHandler) writeBindError(c *gin.Context, err error) {
	if errors.Is(err, notes.ErrInvalidReminder) {
		h.writeServiceError(c, "invalid_request", err)
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}

func ownerFrom(c *gin.Context) notes.Owner {
	claims := claimsFrom(c)
	owner := notes.Owner{UserID: c.GetString(userIDContextKey)}
	if claims.HasEmail() {
		owner.Email = claims.Email
	}
	return owner
}
