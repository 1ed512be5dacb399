package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"vcfolio/internal/config"
	"vcfolio/internal/database"
	"vcfolio/internal/models"
	"vcfolio/internal/storage"
)

// FilesPrefix is the URL path stored files are served under.
const FilesPrefix = "/api/files/"

var (
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrProjectNotFound = errors.New("project not found")
	ErrNotFound        = errors.New("not found")
)

// ValidationError is a client error with a message safe to return.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type UploadInput struct {
	ProjectID   string
	Name        string
	Type        string
	Description string
	Filename    string
	// Size is the size declared by the client, or -1 when unknown.
	Size int64
	File io.Reader
}

type LinkInput struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
	IsVisible   *bool  `json:"is_visible"`
}

type DocumentService struct {
	repo   *database.Repo
	disk   *storage.Disk
	policy config.UploadPolicy
	log    *logrus.Logger
}

func NewDocumentService(r *database.Repo, d *storage.Disk, policy config.UploadPolicy, log *logrus.Logger) *DocumentService {
	return &DocumentService{repo: r, disk: d, policy: policy, log: log}
}

func (s *DocumentService) Policy() config.UploadPolicy { return s.policy }

// resolveOwner checks the owning project for a document of type docType.
// It returns nil for general documents uploaded without a project.
func (s *DocumentService) resolveOwner(ctx context.Context, projectID, docType string) (*string, error) {
	if projectID == "" {
		if models.RequiresProject(docType) {
			return nil, invalid("project_id is required for document type %q", docType)
		}
		return nil, nil
	}
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &projectID, nil
}

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

// Upload validates the input, writes the file, then records it. If the
// record cannot be written the file is removed again.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (models.Document, error) {
	if in.File == nil || in.Filename == "" {
		return models.Document{}, invalid("file is required")
	}
	if in.Name == "" || models.NormalizeType(in.Type) == "" {
		return models.Document{}, invalid("name and type are required")
	}
	if in.Size > s.policy.MaxBytes {
		return models.Document{}, fmt.Errorf("%w: %s is larger than %s", ErrTooLarge, humanize.Bytes(uint64(in.Size)), s.policy.MaxSize)
	}
	if !s.policy.Allows(in.Filename) {
		return models.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, in.Filename)
	}
	docType := models.NormalizeType(in.Type)
	owner, err := s.resolveOwner(ctx, in.ProjectID, docType)
	if err != nil {
		return models.Document{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.File, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return models.Document{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	blob, err := s.disk.Save(ctx, in.Filename, io.MultiReader(bytes.NewReader(head), in.File), s.policy.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return models.Document{}, fmt.Errorf("%w: limit is %s", ErrTooLarge, s.policy.MaxSize)
		}
		return models.Document{}, err
	}

	doc := models.Document{
		Name:        in.Name,
		Type:        docType,
		URL:         FilesPrefix + blob.Key,
		StorageKey:  &blob.Key,
		ContentType: contentType,
		SizeBytes:   blob.Size,
		IsVisible:   true,
		Description: optional(in.Description),
		ProjectID:   owner,
	}
	if err := s.repo.CreateDocument(ctx, &doc); err != nil {
		s.removeBlob(blob.Key)
		if errors.Is(err, database.ErrConstraint) {
			return models.Document{}, ErrProjectNotFound
		}
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	s.log.Infof("stored document %s (%s, %s)", doc.ID, blob.Key, humanize.Bytes(uint64(blob.Size)))
	return doc, nil
}

// Link records a document that points at an existing URL. No file is stored.
func (s *DocumentService) Link(ctx context.Context, in LinkInput) (models.Document, error) {
	docType := models.NormalizeType(in.Type)
	if in.Name == "" || docType == "" || in.URL == "" {
		return models.Document{}, invalid("name, type and url are required")
	}
	owner, err := s.resolveOwner(ctx, in.ProjectID, docType)
	if err != nil {
		return models.Document{}, err
	}
	doc := models.Document{
		Name:        in.Name,
		Type:        docType,
		URL:         in.URL,
		IsVisible:   in.IsVisible == nil || *in.IsVisible,
		Description: optional(in.Description),
		ProjectID:   owner,
	}
	if err := s.repo.CreateDocument(ctx, &doc); err != nil {
		if errors.Is(err, database.ErrConstraint) {
			return models.Document{}, ErrProjectNotFound
		}
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// Delete removes the record, then tries to remove its file. A failure to
// remove the file is logged and does not fail the call.
func (s *DocumentService) Delete(ctx context.Context, id string) (models.Document, error) {
	doc, err := s.repo.DeleteDocument(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return doc, ErrNotFound
		}
		return doc, err
	}
	if doc.StorageKey != nil {
		s.removeBlob(*doc.StorageKey)
	}
	return doc, nil
}

// DeleteProject removes a project with its documents, then their files on
// a best-effort basis.
func (s *DocumentService) DeleteProject(ctx context.Context, id string) error {
	keys, err := s.repo.DeleteProject(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	for _, k := range keys {
		s.removeBlob(k)
	}
	s.log.Infof("deleted project %s with %d stored files", id, len(keys))
	return nil
}

// Open returns a stored file for serving.
func (s *DocumentService) Open(key string) (*os.File, fs.FileInfo, error) {
	f, info, err := s.disk.Open(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	return f, info, err
}

func (s *DocumentService) removeBlob(key string) {
	if err := s.disk.Remove(key); err != nil {
		s.log.Warnf("remove stored file %s: %v", key, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
