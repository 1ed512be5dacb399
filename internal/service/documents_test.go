package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcfolio/internal/config"
	"vcfolio/internal/database"
	"vcfolio/internal/models"
	"vcfolio/internal/storage"
)

type fixture struct {
	svc   *DocumentService
	repo  *database.Repo
	disk  *storage.Disk
	close func() error
}

func setup(t *testing.T, maxSize string) fixture {
	t.Helper()
	ctx := context.Background()
	log := logrus.New()
	db, err := database.Open(ctx, database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	disk, err := storage.NewDisk(t.TempDir(), log)
	require.NoError(t, err)
	policy, err := config.NewUploadPolicy(maxSize, "pdf,txt,png")
	require.NoError(t, err)

	repo := database.New(db, log)
	return fixture{svc: NewDocumentService(repo, disk, policy, log), repo: repo, disk: disk, close: db.Close}
}

func (f fixture) project(t *testing.T) models.Project {
	t.Helper()
	p := models.Project{Name: "Acme", InvestmentDate: time.Now(), CommittedCapital: decimal.NewFromInt(1000)}
	require.NoError(t, f.repo.CreateProject(context.Background(), &p))
	return p
}

func (f fixture) files(t *testing.T) []string {
	t.Helper()
	keys, err := f.disk.Keys()
	require.NoError(t, err)
	return keys
}

func pdf(body string) *strings.Reader {
	return strings.NewReader("%PDF-1.4\n" + body)
}

func TestUploadStoresFileAndRecord(t *testing.T) {
	f := setup(t, "1KB")
	p := f.project(t)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		ProjectID: p.ID, Name: "Plan", Type: "Business_Plan", Description: "first draft",
		Filename: "plan.pdf", Size: -1, File: pdf("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "business_plan", doc.Type)
	assert.Equal(t, "application/pdf", doc.ContentType)
	require.NotNil(t, doc.StorageKey)
	assert.Equal(t, FilesPrefix+*doc.StorageKey, doc.URL)
	assert.Equal(t, p.ID, *doc.ProjectID)
	assert.True(t, doc.IsVisible)

	fh, _, err := f.svc.Open(*doc.StorageKey)
	require.NoError(t, err)
	defer fh.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(fh)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\nhello", buf.String())
}

func TestUploadValidation(t *testing.T) {
	f := setup(t, "1KB")
	ctx := context.Background()
	var verr *ValidationError

	_, err := f.svc.Upload(ctx, UploadInput{Name: "x", Type: "general"})
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Upload(ctx, UploadInput{Type: "general", Filename: "a.txt", File: strings.NewReader("a")})
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Upload(ctx, UploadInput{Name: "x", Type: "contract", Filename: "a.txt", File: strings.NewReader("a")})
	assert.ErrorAs(t, err, &verr, "non-general documents need a project")

	_, err = f.svc.Upload(ctx, UploadInput{Name: "x", Type: "contract", ProjectID: "3f1c1d8e-2a7b-4c1e-9a55-0d1f6d0f0b11", Filename: "a.txt", File: strings.NewReader("a")})
	assert.ErrorIs(t, err, ErrProjectNotFound)

	_, err = f.svc.Upload(ctx, UploadInput{Name: "x", Type: "general", Filename: "run.exe", File: strings.NewReader("a")})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	assert.Empty(t, f.files(t))
}

func TestUploadTooLargeLeavesNoTrace(t *testing.T) {
	f := setup(t, "1KB")
	ctx := context.Background()
	big := strings.Repeat("x", 1001)

	_, err := f.svc.Upload(ctx, UploadInput{Name: "big", Type: "general", Filename: "big.txt", Size: 1001, File: strings.NewReader(big)})
	assert.ErrorIs(t, err, ErrTooLarge)

	// declared size lies; the stream is still capped
	_, err = f.svc.Upload(ctx, UploadInput{Name: "big", Type: "general", Filename: "big.txt", Size: 10, File: strings.NewReader(big)})
	assert.ErrorIs(t, err, ErrTooLarge)

	assert.Empty(t, f.files(t))
	docs, err := f.repo.ListDocuments(ctx, database.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadGeneralWithoutProject(t *testing.T) {
	f := setup(t, "1KB")
	doc, err := f.svc.Upload(context.Background(), UploadInput{Name: "Letter", Type: "general", Filename: "letter.txt", Size: 5, File: strings.NewReader("hello")})
	require.NoError(t, err)
	assert.Nil(t, doc.ProjectID)
	assert.Equal(t, int64(5), doc.SizeBytes)
	assert.Contains(t, doc.ContentType, "text/plain")
}

func TestUploadRemovesFileWhenInsertFails(t *testing.T) {
	f := setup(t, "1KB")
	require.NoError(t, f.close())

	_, err := f.svc.Upload(context.Background(), UploadInput{Name: "Letter", Type: "general", Filename: "letter.txt", Size: 5, File: strings.NewReader("hello")})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Empty(t, f.files(t))
}

func TestLink(t *testing.T) {
	f := setup(t, "1KB")
	p := f.project(t)
	hidden := false

	doc, err := f.svc.Link(context.Background(), LinkInput{ProjectID: p.ID, Name: "DD", Type: "due_diligence", URL: "https://example.com/dd.pdf", IsVisible: &hidden})
	require.NoError(t, err)
	assert.False(t, doc.IsVisible)
	assert.Nil(t, doc.StorageKey)

	_, err = f.svc.Link(context.Background(), LinkInput{Name: "DD", Type: "due_diligence", URL: "x"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeleteIsBestEffortOnFiles(t *testing.T) {
	f := setup(t, "1KB")
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, UploadInput{Name: "a", Type: "general", Filename: "a.txt", File: strings.NewReader("a")})
	require.NoError(t, err)

	require.NoError(t, os.Remove(f.disk.Dir()+"/"+*doc.StorageKey))
	_, err = f.svc.Delete(ctx, doc.ID)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectRemovesDocumentsAndFiles(t *testing.T) {
	f := setup(t, "1KB")
	ctx := context.Background()
	p := f.project(t)
	a, err := f.svc.Upload(ctx, UploadInput{ProjectID: p.ID, Name: "a", Type: "contract", Filename: "a.pdf", File: pdf("a")})
	require.NoError(t, err)
	b, err := f.svc.Upload(ctx, UploadInput{ProjectID: p.ID, Name: "b", Type: "receipt", Filename: "b.pdf", File: pdf("b")})
	require.NoError(t, err)
	// a file that vanished already must not fail the deletion
	require.NoError(t, os.Remove(f.disk.Dir()+"/"+*b.StorageKey))

	require.NoError(t, f.svc.DeleteProject(ctx, p.ID))
	assert.False(t, f.disk.Exists(*a.StorageKey))
	docs, err := f.repo.ListDocuments(ctx, database.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.ErrorIs(t, f.svc.DeleteProject(ctx, p.ID), ErrNotFound)
}

func TestReconcile(t *testing.T) {
	f := setup(t, "1KB")
	ctx := context.Background()
	kept, err := f.svc.Upload(ctx, UploadInput{Name: "a", Type: "general", Filename: "a.txt", File: strings.NewReader("a")})
	require.NoError(t, err)
	gone, err := f.svc.Upload(ctx, UploadInput{Name: "b", Type: "general", Filename: "b.txt", File: strings.NewReader("b")})
	require.NoError(t, err)
	require.NoError(t, f.disk.Remove(*gone.StorageKey))
	orphan, err := f.disk.Save(ctx, "stray.txt", strings.NewReader("s"), 10)
	require.NoError(t, err)

	rep, err := f.svc.Reconcile(ctx, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.Key}, rep.OrphanFiles)
	assert.Equal(t, []string{*gone.StorageKey}, rep.MissingFiles)
	assert.Zero(t, rep.Pruned)
	assert.True(t, f.disk.Exists(orphan.Key))

	// a fresh orphan may be an upload whose row is not written yet
	rep, err = f.svc.Reconcile(ctx, true, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, rep.Pruned)
	assert.Equal(t, 1, rep.Recent)
	assert.True(t, f.disk.Exists(orphan.Key))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.disk.Dir(), orphan.Key), old, old))
	rep, err = f.svc.Reconcile(ctx, true, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pruned)
	assert.Zero(t, rep.Recent)
	assert.False(t, f.disk.Exists(orphan.Key))
	assert.True(t, f.disk.Exists(*kept.StorageKey))
}
