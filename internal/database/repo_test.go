package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcfolio/internal/models"
)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func sampleProject(name string, date time.Time) *models.Project {
	return &models.Project{
		Name:                     name,
		BriefIntro:               "seed round",
		PortfolioStatus:          "active",
		InvestmentDate:           date,
		CommittedCapital:         decimal.RequireFromString("150000"),
		InitialShareholdingRatio: nd("25"),
		CurrentShareholdingRatio: nd("20"),
		InvestmentCost:           nd("100000"),
		LatestFinancingValuation: nd("1000000"),
	}
}

func strp(s string) *string { return &s }

func TestProjectCRUD(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()
	date := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	p := sampleProject("Acme", date)
	require.NoError(t, r.CreateProject(ctx, p))
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "200000", p.BookValue.Decimal.String())

	got, err := r.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "seed round", got.BriefIntro)
	assert.True(t, got.InvestmentDate.Equal(date))
	assert.True(t, got.CommittedCapital.Equal(decimal.NewFromInt(150000)))
	assert.True(t, got.BookValue.Decimal.Equal(decimal.NewFromInt(200000)))
	assert.Equal(t, "2.00", got.MOIC.Decimal.StringFixed(2))

	got.Name = "Acme Corp"
	got.LatestFinancingValuation = decimal.NullDecimal{}
	require.NoError(t, r.UpdateProject(ctx, &got))
	assert.False(t, got.BookValue.Valid)
	assert.False(t, got.MOIC.Valid)

	again, err := r.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", again.Name)
	assert.False(t, again.LatestFinancingValuation.Valid)

	_, err = r.DeleteProject(ctx, p.ID)
	require.NoError(t, err)
	_, err = r.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectNotFound(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()

	_, err := r.GetProject(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetProject(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	p := sampleProject("Ghost", time.Now())
	p.ID = uuid.NewString()
	assert.ErrorIs(t, r.UpdateProject(ctx, p), ErrNotFound)
	_, err = r.DeleteProject(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjectsOrderAndLimit(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		require.NoError(t, r.CreateProject(ctx, sampleProject(name, base.AddDate(0, i, 0))))
	}

	all, err := r.ListProjects(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.True(t, all[0].BookValue.Valid)

	two, err := r.ListProjects(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestDocumentOwnershipConstraint(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()

	general := &models.Document{Name: "Annual letter", Type: "General", URL: "https://example.com/a.pdf", IsVisible: true}
	require.NoError(t, r.CreateDocument(ctx, general))
	assert.Equal(t, "general", general.Type)

	orphan := &models.Document{Name: "Contract", Type: "contract", URL: "/api/files/x.pdf"}
	assert.ErrorIs(t, r.CreateDocument(ctx, orphan), ErrConstraint)

	missing := &models.Document{Name: "Contract", Type: "contract", URL: "/api/files/x.pdf", ProjectID: strp(uuid.NewString())}
	assert.ErrorIs(t, r.CreateDocument(ctx, missing), ErrConstraint)
}

func TestDocumentLifecycle(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()
	p := sampleProject("Owner", time.Now())
	require.NoError(t, r.CreateProject(ctx, p))

	d := &models.Document{
		Name: "Business plan", Type: "business_plan", URL: "/api/files/k1-plan.pdf",
		StorageKey: strp("k1-plan.pdf"), ContentType: "application/pdf", SizeBytes: 42,
		IsVisible: true, Description: strp("v1"), ProjectID: &p.ID,
	}
	require.NoError(t, r.CreateDocument(ctx, d))
	require.NoError(t, r.CreateDocument(ctx, &models.Document{Name: "Letter", Type: "general", URL: "https://example.com/l", IsVisible: true}))

	got, err := r.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProjectName)
	assert.Equal(t, "Owner", *got.ProjectName)
	assert.Equal(t, int64(42), got.SizeBytes)
	assert.Equal(t, "v1", *got.Description)

	hidden, err := r.SetDocumentVisibility(ctx, d.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsVisible)

	all, err := r.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	visible, err := r.ListDocuments(ctx, DocumentFilter{VisibleOnly: true})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Letter", visible[0].Name)
	assert.Nil(t, visible[0].ProjectName)
	owned, err := r.ListDocuments(ctx, DocumentFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Len(t, owned, 1)
	general, err := r.ListDocuments(ctx, DocumentFilter{GeneralOnly: true})
	require.NoError(t, err)
	assert.Len(t, general, 1)
	none, err := r.ListDocuments(ctx, DocumentFilter{ProjectID: "bogus"})
	require.NoError(t, err)
	assert.Empty(t, none)

	keys, err := r.ListStorageKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1-plan.pdf"}, keys)

	counts, err := r.DocumentCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{p.ID: 1}, counts)

	deleted, err := r.DeleteDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "k1-plan.pdf", *deleted.StorageKey)
	_, err = r.GetDocument(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.DeleteDocument(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.SetDocumentVisibility(ctx, d.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascadesDocuments(t *testing.T) {
	r := New(setupDB(t), logrus.New())
	ctx := context.Background()
	p := sampleProject("Cascade", time.Now())
	require.NoError(t, r.CreateProject(ctx, p))
	for _, k := range []string{"a.pdf", "b.pdf"} {
		require.NoError(t, r.CreateDocument(ctx, &models.Document{Name: k, Type: "contract", URL: "/api/files/" + k, StorageKey: strp(k), ProjectID: &p.ID}))
	}
	require.NoError(t, r.CreateDocument(ctx, &models.Document{Name: "link", Type: "other", URL: "https://example.com", ProjectID: &p.ID}))

	keys, err := r.DeleteProject(ctx, p.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, keys)

	docs, err := r.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupDB(t)
	assert.NoError(t, Migrate(context.Background(), db))
}

func TestWithParam(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=on", withParam(":memory:", "_foreign_keys=on"))
	assert.Equal(t, "x.db?cache=shared&_foreign_keys=on", withParam("x.db?cache=shared", "_foreign_keys=on"))
	assert.Equal(t, "x.db?_foreign_keys=on", withParam("x.db?_foreign_keys=on", "_foreign_keys=on"))
}
