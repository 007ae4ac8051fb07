package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-chat/internal/storage"
)

// BlobReader loads stored attachments.
type BlobReader interface {
	Get(ctx context.Context, name string) (storage.Blob, error)
}

// MediaHandler serves attachment bytes at the URLs handed out by the blob store.
type MediaHandler struct {
	blobs BlobReader
}

// NewMediaHandler builds a MediaHandler.
func NewMediaHandler(blobs BlobReader) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// Get streams /media/:owner/:file.
func (h *MediaHandler) Get(c *gin.Context) {
	owner, file := c.Param("owner"), c.Param("file")
	if owner == "" || file == "" || strings.Contains(file, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media path"})
		return
	}

	blob, err := h.blobs.Get(c.Request.Context(), owner+"/"+file)
	if err != nil {
		respondError(c, err, "failed to load media")
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}
