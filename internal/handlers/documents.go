package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vcfolio/internal/database"
	"vcfolio/internal/service"
	"vcfolio/internal/storage"
)

// multipartSlack allows for form fields and part headers on top of the
// file itself.
const multipartSlack = 1 << 20

func (h *Handler) ListDocuments(c *gin.Context) {
	f := database.DocumentFilter{
		ProjectID:   c.Query("project_id"),
		VisibleOnly: c.Query("visible") == "true" || !h.sessions.IsAdmin(c),
		GeneralOnly: c.Query("general") == "true",
	}
	rows, err := h.repo.ListDocuments(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "list documents", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetDocument(c *gin.Context) {
	d, err := h.repo.GetDocument(c.Request.Context(), c.Param("id"))
	if err == nil && !d.IsVisible && !h.sessions.IsAdmin(c) {
		err = database.ErrNotFound
	}
	if err != nil {
		h.fail(c, "get document", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// CreateDocument accepts either a multipart upload or a JSON body linking
// an existing URL.
func (h *Handler) CreateDocument(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.UploadDocument(c)
		return
	}
	var in service.LinkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.log.Warnf("invalid document body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields: name, type and url are required"})
		return
	}
	d, err := h.docs.Link(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "create document", err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) UploadDocument(c *gin.Context) {
	policy := h.docs.Policy()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, policy.MaxBytes+multipartSlack)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.fail(c, "upload", fmt.Errorf("%w: limit is %s", service.ErrTooLarge, policy.MaxSize))
		case errors.Is(err, http.ErrMissingFile):
			h.fail(c, "upload", &service.ValidationError{Msg: "file is required"})
		default:
			h.log.Warnf("upload: parse multipart form: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		}
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, "upload", err)
		return
	}
	defer f.Close()

	d, err := h.docs.Upload(c.Request.Context(), service.UploadInput{
		ProjectID:   c.PostForm("project_id"),
		Name:        strings.TrimSpace(c.PostForm("name")),
		Type:        c.PostForm("type"),
		Description: strings.TrimSpace(c.PostForm("description")),
		Filename:    fh.Filename,
		Size:        fh.Size,
		File:        f,
	})
	if err != nil {
		h.fail(c, "upload", err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

type visibilityRequest struct {
	IsVisible *bool `json:"is_visible" binding:"required"`
}

func (h *Handler) SetDocumentVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_visible is required"})
		return
	}
	d, err := h.repo.SetDocumentVisibility(c.Request.Context(), c.Param("id"), *req.IsVisible)
	if err != nil {
		h.fail(c, "update document visibility", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	if _, err := h.docs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ServeFile streams a stored file. Unknown, unsafe or missing keys are 404.
func (h *Handler) ServeFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	f, info, err := h.docs.Open(key)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.log.Warnf("file not found: %q", key)
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.fail(c, "serve file", err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", storage.ContentTypeByExt(key))
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", key))
	http.ServeContent(c.Writer, c.Request, key, info.ModTime(), f)
}
