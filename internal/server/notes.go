package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quill/internal/export"
	"quill/internal/notestore"
)

type notePayload struct {
	ID           string `json:"id"`
	IsProcessing bool   `json:"isProcessing"`
	notestore.Note
}

func newNotePayload(note notestore.Note) notePayload {
	return notePayload{ID: note.ID, IsProcessing: note.IsProcessing, Note: note}
}

func newNotePayloads(notes []notestore.Note) []notePayload {
	payloads := make([]notePayload, 0, len(notes))
	for _, note := range notes {
		payloads = append(payloads, newNotePayload(note))
	}
	return payloads
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	var notes []notestore.Note
	switch {
	case c.Query("view") == "trash":
		notes = h.notes.TrashedNotes()
	case c.Query("tag") != "":
		notes = h.notes.NotesByTag(c.Query("tag"))
	case c.Query("folder") != "":
		notes = h.notes.NotesByFolder(c.Query("folder"))
	default:
		notes = h.notes.AllNotes()
	}
	c.JSON(http.StatusOK, gin.H{"notes": newNotePayloads(notes)})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	id := c.Param("id")
	note, ok := h.notes.Note(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"note":          newNotePayload(note),
		"pendingFields": h.notes.PendingFields(id),
	})
}

type createNoteRequestPayload struct {
	Type string         `json:"type"`
	Set  map[string]any `json:"set"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.notes.Create(c.Request.Context(), notestore.NoteType(request.Type), notestore.NoteUpdate{Set: request.Set})
	if err != nil {
		if errors.Is(err, notestore.ErrUnknownNoteType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_type"})
			return
		}
		h.logger.Error("failed to create note", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}
	h.publishNoteChange(c, note.ID)
	c.JSON(http.StatusCreated, gin.H{"note": newNotePayload(note)})
}

type updateNoteRequestPayload struct {
	Set   map[string]any `json:"set"`
	Clear []string       `json:"clear"`
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	id := c.Param("id")
	var request updateNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	update := notestore.NoteUpdate{Set: request.Set, Clear: request.Clear}
	if update.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_update"})
		return
	}
	if err := h.notes.Update(c.Request.Context(), id, update); err != nil {
		h.respondNoteError(c, err, "update_failed")
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	id := c.Param("id")
	if err := h.notes.Delete(c.Request.Context(), id); err != nil {
		h.respondNoteError(c, err, "delete_failed")
		return
	}
	h.publishNoteChange(c, id)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRestoreNote(c *gin.Context) {
	id := c.Param("id")
	if err := h.notes.Restore(c.Request.Context(), id); err != nil {
		h.respondNoteError(c, err, "restore_failed")
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handlePurgeNote(c *gin.Context) {
	id := c.Param("id")
	if err := h.notes.PermanentlyDelete(c.Request.Context(), id); err != nil {
		h.respondNoteError(c, err, "purge_failed")
		return
	}
	h.publishNoteChange(c, id)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	id := c.Param("id")
	if err := h.notes.TogglePin(c.Request.Context(), id); err != nil {
		h.respondNoteError(c, err, "pin_failed")
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handleExportMarkdown(c *gin.Context) {
	note, ok := h.notes.Note(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(export.ToMarkdown(note)))
}

func (h *httpHandler) handleExportDrive(c *gin.Context) {
	note, ok := h.notes.Note(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(export.ToDriveText(note)))
}

type captureRequestPayload struct {
	Kind     string `json:"kind"`
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	MediaURL string `json:"mediaUrl"`
}

func (h *httpHandler) handleProcessCapture(c *gin.Context) {
	if h.processor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "processing_unavailable"})
		return
	}
	id := c.Param("id")
	var request captureRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Data) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.processor.ProcessCapture(c.Request.Context(), notestore.Capture{
		NoteID:     id,
		Kind:       notestore.NoteType(request.Kind),
		Base64Data: request.Data,
		MIMEType:   request.MIMEType,
		MediaURL:   request.MediaURL,
	})
	if err != nil {
		h.respondProcessingError(c, err)
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

func (h *httpHandler) handleSummarize(c *gin.Context) {
	if h.processor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "processing_unavailable"})
		return
	}
	id := c.Param("id")
	if err := h.processor.Summarize(c.Request.Context(), id); err != nil {
		h.respondProcessingError(c, err)
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

type refineRequestPayload struct {
	Instruction string `json:"instruction"`
}

func (h *httpHandler) handleRefineSummary(c *gin.Context) {
	if h.processor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "processing_unavailable"})
		return
	}
	id := c.Param("id")
	var request refineRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Instruction) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.processor.Refine(c.Request.Context(), id, request.Instruction); err != nil {
		h.respondProcessingError(c, err)
		return
	}
	h.publishNoteChange(c, id)
	note, _ := h.notes.Note(id)
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(note)})
}

type driveNotePayload struct {
	ID string `json:"id"`
	notestore.Note
}

type driveSyncRequestPayload struct {
	Notes []driveNotePayload `json:"notes"`
}

func (h *httpHandler) handleDriveSync(c *gin.Context) {
	var request driveSyncRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	incoming := make([]notestore.Note, 0, len(request.Notes))
	for _, item := range request.Notes {
		note := item.Note
		note.ID = item.ID
		incoming = append(incoming, note)
	}
	staged, err := h.notes.SyncWithDrive(c.Request.Context(), incoming)
	if err != nil {
		h.logger.Error("drive sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged": staged})
}

func (h *httpHandler) respondNoteError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, notestore.ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	h.logger.Error("note operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func (h *httpHandler) respondProcessingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notestore.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
	case errors.Is(err, notestore.ErrNothingToSummarize):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_note"})
	case errors.Is(err, notestore.ErrNothingToRefine):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_summary"})
	case errors.Is(err, notestore.ErrUnknownNoteType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_capture_kind"})
	default:
		h.logger.Error("processing pipeline failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "processing_failed"})
	}
}

func (h *httpHandler) publishNoteChange(c *gin.Context, noteID string) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    c.GetString(userIDContextKey),
		EventType: RealtimeEventNoteChanged,
		IDs:       []string{noteID},
		Timestamp: time.Now().UTC(),
	})
}
