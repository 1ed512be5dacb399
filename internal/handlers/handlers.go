package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"vcfolio/internal/auth"
	"vcfolio/internal/database"
	"vcfolio/internal/service"
)

type Handler struct {
	repo     *database.Repo
	docs     *service.DocumentService
	sessions *auth.Sessions
	log      *logrus.Logger
}

func NewHandler(r *database.Repo, docs *service.DocumentService, sessions *auth.Sessions, log *logrus.Logger) *Handler {
	return &Handler{repo: r, docs: docs, sessions: sessions, log: log}
}

// Routes registers the API on r. Mutations require an admin session.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	admin := h.sessions.RequireAdmin()
	api := r.Group("/api")

	api.GET("/upload-policy", h.GetUploadPolicy)
	api.GET("/stats", h.GetStats)
	api.POST("/admin/login", h.sessions.HandleLogin)
	api.GET("/admin/session", admin, h.sessions.HandleSession)

	api.GET("/projects", h.ListProjects)
	api.POST("/projects", admin, h.CreateProject)
	api.GET("/projects/:id", h.GetProject)
	api.PUT("/projects/:id", admin, h.UpdateProject)
	api.DELETE("/projects/:id", admin, h.DeleteProject)

	api.GET("/documents", h.ListDocuments)
	api.POST("/documents", admin, h.CreateDocument)
	api.GET("/documents/:id", h.GetDocument)
	api.PATCH("/documents/:id", admin, h.SetDocumentVisibility)
	api.DELETE("/documents/:id", admin, h.DeleteDocument)
	api.POST("/upload", admin, h.UploadDocument)

	api.GET("/files/*path", h.ServeFile)
	r.GET("/uploads/*path", h.ServeFile)
}

func (h *Handler) GetUploadPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.docs.Policy())
}

// fail maps an error onto a status code. Unexpected errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.log.Warnf("%s: %v", op, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
	case errors.Is(err, service.ErrTooLarge):
		h.log.Warnf("%s: %v", op, err)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnsupportedType):
		h.log.Warnf("%s: %v", op, err)
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.log.Errorf("%s failed: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}
