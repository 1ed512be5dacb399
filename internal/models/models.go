package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Project struct {
	ID                       string              `db:"id" json:"id"`
	Name                     string              `db:"name" json:"name"`
	BriefIntro               string              `db:"brief_intro" json:"brief_intro"`
	PortfolioStatus          string              `db:"portfolio_status" json:"portfolio_status"`
	InvestmentDate           time.Time           `db:"investment_date" json:"investment_date"`
	CommittedCapital         decimal.Decimal     `db:"committed_capital" json:"committed_capital"`
	InitialShareholdingRatio decimal.NullDecimal `db:"initial_shareholding_ratio" json:"initial_shareholding_ratio"`
	CurrentShareholdingRatio decimal.NullDecimal `db:"current_shareholding_ratio" json:"current_shareholding_ratio"`
	InvestmentCost           decimal.NullDecimal `db:"investment_cost" json:"investment_cost"`
	LatestFinancingValuation decimal.NullDecimal `db:"latest_financing_valuation" json:"latest_financing_valuation"`
	BookValue                decimal.NullDecimal `db:"-" json:"book_value"`
	MOIC                     decimal.NullDecimal `db:"-" json:"moic"`
	CreatedAt                time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time           `db:"updated_at" json:"updated_at"`
}

// Derive fills BookValue and MOIC from the stored source fields. The
// derived fields are never persisted.
func (p *Project) Derive() {
	p.BookValue = BookValue(p.LatestFinancingValuation, p.CurrentShareholdingRatio)
	p.MOIC = MOIC(p.BookValue, p.InvestmentCost)
}

var hundred = decimal.NewFromInt(100)

// BookValue is valuation * ratio / 100, where ratio is a percentage.
func BookValue(valuation, ratio decimal.NullDecimal) decimal.NullDecimal {
	if !valuation.Valid || !ratio.Valid {
		return decimal.NullDecimal{}
	}
	v := valuation.Decimal.Mul(ratio.Decimal).Div(hundred).Round(2)
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

// MOIC is book value over actual investment cost, to two places.
func MOIC(bookValue, cost decimal.NullDecimal) decimal.NullDecimal {
	if !bookValue.Valid || !cost.Valid || !cost.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: bookValue.Decimal.DivRound(cost.Decimal, 2), Valid: true}
}

// Validate checks the stored fields: a name, non-negative amounts and
// ratios within 0..100.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.CommittedCapital.IsNegative() {
		return errors.New("committed_capital must not be negative")
	}
	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"investment_cost", p.InvestmentCost},
		{"latest_financing_valuation", p.LatestFinancingValuation},
	} {
		if f.v.Valid && f.v.Decimal.IsNegative() {
			return errors.New(f.name + " must not be negative")
		}
	}
	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"initial_shareholding_ratio", p.InitialShareholdingRatio},
		{"current_shareholding_ratio", p.CurrentShareholdingRatio},
	} {
		if f.v.Valid && (f.v.Decimal.IsNegative() || f.v.Decimal.GreaterThan(hundred)) {
			return errors.New(f.name + " must be between 0 and 100")
		}
	}
	return nil
}

// ProjectPatch holds the fields of a partial update. Nil fields are left
// unchanged; a non-nil pointer to an invalid NullDecimal clears the field.
type ProjectPatch struct {
	Name                     *string
	BriefIntro               *string
	PortfolioStatus          *string
	InvestmentDate           *time.Time
	CommittedCapital         *decimal.Decimal
	InitialShareholdingRatio *decimal.NullDecimal
	CurrentShareholdingRatio *decimal.NullDecimal
	InvestmentCost           *decimal.NullDecimal
	LatestFinancingValuation *decimal.NullDecimal
}

// Apply copies the supplied fields onto p. The caller validates afterwards.
func (patch ProjectPatch) Apply(p *Project) {
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.BriefIntro != nil {
		p.BriefIntro = *patch.BriefIntro
	}
	if patch.PortfolioStatus != nil {
		p.PortfolioStatus = *patch.PortfolioStatus
	}
	if patch.InvestmentDate != nil {
		p.InvestmentDate = patch.InvestmentDate.UTC()
	}
	if patch.CommittedCapital != nil {
		p.CommittedCapital = *patch.CommittedCapital
	}
	for _, f := range []struct {
		src *decimal.NullDecimal
		dst *decimal.NullDecimal
	}{
		{patch.InitialShareholdingRatio, &p.InitialShareholdingRatio},
		{patch.CurrentShareholdingRatio, &p.CurrentShareholdingRatio},
		{patch.InvestmentCost, &p.InvestmentCost},
		{patch.LatestFinancingValuation, &p.LatestFinancingValuation},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	p.Derive()
}

type Document struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	URL         string    `db:"url" json:"url"`
	StorageKey  *string   `db:"storage_key" json:"storage_key,omitempty"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	IsVisible   bool      `db:"is_visible" json:"is_visible"`
	Description *string   `db:"description" json:"description"`
	ProjectID   *string   `db:"project_id" json:"project_id"`
	ProjectName *string   `db:"project_name" json:"project_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

const TypeGeneral = "general"

// DocumentTypes maps the known document type tags to display labels.
// Tags outside this map are still accepted.
var DocumentTypes = map[string]string{
	"business_plan":        "Project Business Plan",
	"investment_committee": "Investment Committee Records",
	"due_diligence":        "Due Diligence",
	"contract":             "Investment Agreement",
	"payment_proof":        "Proof of Payment",
	"receipt":              "Payment Receipt Acknowledge Letter",
	TypeGeneral:            "General Disclosure",
	"other":                "Other Documents",
}

func NormalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// RequiresProject reports whether documents of type t must have an owner.
func RequiresProject(t string) bool {
	return NormalizeType(t) != TypeGeneral
}
