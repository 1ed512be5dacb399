package models

import "github.com/shopspring/decimal"

// PortfolioStats are totals over every project.
type PortfolioStats struct {
	ProjectCount int `json:"project_count"`
	// TotalInvested is the committed capital sum, or the investment cost
	// sum when no capital is committed.
	TotalInvested  decimal.Decimal     `json:"total_invested"`
	TotalBookValue decimal.Decimal     `json:"total_book_value"`
	MOIC           decimal.NullDecimal `json:"moic"`
}

// Summarize totals projects. Projects must already be derived.
func Summarize(projects []Project) PortfolioStats {
	var capital, cost, book decimal.Decimal
	for _, p := range projects {
		capital = capital.Add(p.CommittedCapital)
		if p.InvestmentCost.Valid {
			cost = cost.Add(p.InvestmentCost.Decimal)
		}
		if p.BookValue.Valid {
			book = book.Add(p.BookValue.Decimal)
		}
	}
	invested := capital
	if invested.IsZero() {
		invested = cost
	}
	st := PortfolioStats{ProjectCount: len(projects), TotalInvested: invested, TotalBookValue: book}
	st.MOIC = MOIC(decimal.NullDecimal{Decimal: book, Valid: true}, decimal.NullDecimal{Decimal: invested, Valid: true})
	return st
}
