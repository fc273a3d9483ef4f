package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UploadHandler stores message attachments on local disk.
type UploadHandler struct {
	dir string
}

// NewUploadHandler builds an UploadHandler writing into dir.
func NewUploadHandler(dir string) *UploadHandler {
	return &UploadHandler{dir: dir}
}

// Upload accepts one multipart file and returns its served path.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	name := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.dir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": "/uploads/" + name, "filename": file.Filename})
}
