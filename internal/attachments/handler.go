// Package attachments issues presigned S3 URLs for issue file attachments.
// Blob bytes never pass through the API server.
package attachments

import (
	"path"

	"github.com/gin-gonic/gin"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
	"github.com/trackline/backend/pkg/storage"
)

// Handler handles attachment presign endpoints. Routes are mounted under
// the issue-scoped middleware, so the issue and role are already checked.
type Handler struct {
	s3 *storage.S3
}

// NewHandler creates an attachments handler.
func NewHandler(s3 *storage.S3) *Handler {
	return &Handler{s3: s3}
}

func issueFromContext(c *gin.Context) *models.Issue {
	i, _ := access.Entity(c).(*models.Issue)
	return i
}

// requireStorage rejects the request when S3 is not configured.
func (h *Handler) requireStorage(c *gin.Context) bool {
	if h.s3 == nil {
		response.Error(c, apperror.Internal("storage not configured"))
		return false
	}
	return true
}

// UploadURLRequest is the body for POST /issues/:issueId/attachments/upload-url.
type UploadURLRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// UploadURL handles POST /issues/:issueId/attachments/upload-url (editor).
func (h *Handler) UploadURL(c *gin.Context) {
	if !h.requireStorage(c) {
		return
	}
	issue := issueFromContext(c)
	var body UploadURLRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("filename", "required"))
		return
	}
	filename := path.Base(body.Filename)
	if !storage.ValidateAttachmentFilename(filename) {
		response.Error(c, apperror.Validation("filename", "file type not allowed"))
		return
	}
	key := storage.AttachmentKey(issue.ProjectID.String(), issue.ID.String(), filename)
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), h.s3.AttachmentsBucket(), key,
		storage.ContentTypeForFilename(filename), h.s3.PresignExpire())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"key":          key,
		"content_type": storage.ContentTypeForFilename(filename),
		"max_bytes":    storage.MaxAttachmentSize,
		"expires_in":   int(h.s3.PresignExpire().Seconds()),
	})
}

// DownloadURL handles GET /issues/:issueId/attachments/download-url?filename=
// (viewer or public).
func (h *Handler) DownloadURL(c *gin.Context) {
	if !h.requireStorage(c) {
		return
	}
	issue := issueFromContext(c)
	filename := path.Base(c.Query("filename"))
	if filename == "" || filename == "." {
		response.Error(c, apperror.Validation("filename", "required"))
		return
	}
	key := storage.AttachmentKey(issue.ProjectID.String(), issue.ID.String(), filename)
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.AttachmentsBucket(), key, h.s3.PresignExpire())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(h.s3.PresignExpire().Seconds())})
}

// Delete handles DELETE /issues/:issueId/attachments?filename= (editor).
func (h *Handler) Delete(c *gin.Context) {
	if !h.requireStorage(c) {
		return
	}
	issue := issueFromContext(c)
	filename := path.Base(c.Query("filename"))
	if filename == "" || filename == "." {
		response.Error(c, apperror.Validation("filename", "required"))
		return
	}
	key := storage.AttachmentKey(issue.ProjectID.String(), issue.ID.String(), filename)
	if err := h.s3.DeleteObject(c.Request.Context(), h.s3.AttachmentsBucket(), key); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
