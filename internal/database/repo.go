package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"vcfolio/internal/models"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repo) Migrate(ctx context.Context) error {
	return Migrate(ctx, r.db)
}

// validID rejects ids that could never match a row, so callers get
// ErrNotFound instead of a driver type error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func now() time.Time {
	return time.Now().UTC()
}

const projectColumns = `id, name, brief_intro, portfolio_status, investment_date, committed_capital,
	initial_shareholding_ratio, current_shareholding_ratio, investment_cost,
	latest_financing_valuation, created_at, updated_at`

func (r *Repo) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	q := r.db.Rebind(`INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.Name, p.BriefIntro, p.PortfolioStatus, p.InvestmentDate.UTC(), p.CommittedCapital,
		p.InitialShareholdingRatio, p.CurrentShareholdingRatio, p.InvestmentCost,
		p.LatestFinancingValuation, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	p.Derive()
	return nil
}

func (r *Repo) GetProject(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	if !validID(id) {
		return p, ErrNotFound
	}
	q := r.db.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE id = ?`)
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return p, classify(err)
	}
	p.Derive()
	return p, nil
}

// ListProjects returns projects newest investment first. limit <= 0 means all.
func (r *Repo) ListProjects(ctx context.Context, limit int) ([]models.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects ORDER BY investment_date DESC, created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	res := []models.Project{}
	if err := r.db.SelectContext(ctx, &res, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Derive()
	}
	return res, nil
}

func (r *Repo) UpdateProject(ctx context.Context, p *models.Project) error {
	if !validID(p.ID) {
		return ErrNotFound
	}
	p.UpdatedAt = now()
	q := r.db.Rebind(`UPDATE projects SET name = ?, brief_intro = ?, portfolio_status = ?, investment_date = ?,
		committed_capital = ?, initial_shareholding_ratio = ?, current_shareholding_ratio = ?,
		investment_cost = ?, latest_financing_valuation = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q,
		p.Name, p.BriefIntro, p.PortfolioStatus, p.InvestmentDate.UTC(), p.CommittedCapital,
		p.InitialShareholdingRatio, p.CurrentShareholdingRatio, p.InvestmentCost,
		p.LatestFinancingValuation, p.UpdatedAt, p.ID)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	p.Derive()
	return nil
}

// DeleteProject removes the project and its documents in one transaction
// and returns the storage keys of the removed documents so the caller can
// clean up the files.
func (r *Repo) DeleteProject(ctx context.Context, id string) ([]string, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	keys := []string{}
	if err := tx.SelectContext(ctx, &keys, tx.Rebind(`SELECT storage_key FROM documents WHERE project_id = ? AND storage_key IS NOT NULL`), id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE project_id = ?`), id); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}
