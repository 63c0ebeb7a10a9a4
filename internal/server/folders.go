package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quill/internal/folderstore"
)

type folderPayload struct {
	ID string `json:"id"`
	folderstore.Folder
}

func newFolderPayload(folder folderstore.Folder) folderPayload {
	return folderPayload{ID: folder.ID, Folder: folder}
}

func (h *httpHandler) handleListFolders(c *gin.Context) {
	folders := h.folders.Folders()
	payloads := make([]folderPayload, 0, len(folders))
	for _, folder := range folders {
		payloads = append(payloads, newFolderPayload(folder))
	}
	c.JSON(http.StatusOK, gin.H{"folders": payloads})
}

type folderRequestPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateFolder(c *gin.Context) {
	var request folderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folder, err := h.folders.Create(c.Request.Context(), request.Name)
	if err != nil {
		if errors.Is(err, folderstore.ErrEmptyName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
			return
		}
		h.logger.Error("failed to create folder", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}
	h.publishFolderChange(c, folder.ID)
	c.JSON(http.StatusCreated, gin.H{"folder": newFolderPayload(folder)})
}

func (h *httpHandler) handleRenameFolder(c *gin.Context) {
	id := c.Param("id")
	var request folderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.folders.Rename(c.Request.Context(), id, request.Name); err != nil {
		h.respondFolderError(c, err, "rename_failed")
		return
	}
	h.publishFolderChange(c, id)
	folder, _ := h.folders.Folder(id)
	c.JSON(http.StatusOK, gin.H{"folder": newFolderPayload(folder)})
}

func (h *httpHandler) handleDeleteFolder(c *gin.Context) {
	id := c.Param("id")
	if err := h.folders.Delete(c.Request.Context(), id); err != nil {
		h.respondFolderError(c, err, "delete_failed")
		return
	}
	h.publishFolderChange(c, id)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondFolderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, folderstore.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "folder_not_found"})
	case errors.Is(err, folderstore.ErrEmptyName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
	default:
		h.logger.Error("folder operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *httpHandler) publishFolderChange(c *gin.Context, folderID string) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    c.GetString(userIDContextKey),
		EventType: RealtimeEventFolderChanged,
		IDs:       []string{folderID},
		Timestamp: time.Now().UTC(),
	})
}
