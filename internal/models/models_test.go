package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestBookValueAndMOIC(t *testing.T) {
	bv := BookValue(nd("1000000"), nd("20"))
	require.True(t, bv.Valid)
	assert.True(t, bv.Decimal.Equal(decimal.NewFromInt(200000)), "got %s", bv.Decimal)

	m := MOIC(bv, nd("100000"))
	require.True(t, m.Valid)
	assert.Equal(t, "2.00", m.Decimal.StringFixed(2))
	assert.True(t, m.Decimal.Equal(decimal.NewFromInt(2)))
}

func TestMOICRounding(t *testing.T) {
	m := MOIC(nd("100"), nd("3"))
	require.True(t, m.Valid)
	assert.Equal(t, "33.33", m.Decimal.String())
}

func TestDerivedValuesNullWhenInputsMissing(t *testing.T) {
	assert.False(t, BookValue(decimal.NullDecimal{}, nd("20")).Valid)
	assert.False(t, BookValue(nd("10"), decimal.NullDecimal{}).Valid)
	assert.False(t, MOIC(nd("10"), decimal.NullDecimal{}).Valid)
	assert.False(t, MOIC(nd("10"), nd("0")).Valid)
	assert.False(t, MOIC(decimal.NullDecimal{}, nd("5")).Valid)
}

func TestProjectDerive(t *testing.T) {
	p := Project{
		LatestFinancingValuation: nd("5000000"),
		CurrentShareholdingRatio: nd("12.5"),
		InvestmentCost:           nd("250000"),
		BookValue:                nd("1"),
		MOIC:                     nd("99"),
	}
	p.Derive()
	assert.Equal(t, "625000", p.BookValue.Decimal.String())
	assert.Equal(t, "2.5", p.MOIC.Decimal.String())
}

func TestRequiresProject(t *testing.T) {
	assert.False(t, RequiresProject("general"))
	assert.False(t, RequiresProject(" General "))
	assert.True(t, RequiresProject("contract"))
	assert.True(t, RequiresProject("something_new"))
}

func TestProjectValidate(t *testing.T) {
	valid := Project{Name: "Acme", CommittedCapital: decimal.NewFromInt(1000), CurrentShareholdingRatio: nd("100")}
	require.NoError(t, valid.Validate())

	cases := map[string]func(p *Project){
		"name is required":                                     func(p *Project) { p.Name = "  " },
		"committed_capital must not be negative":               func(p *Project) { p.CommittedCapital = decimal.NewFromInt(-1) },
		"investment_cost must not be negative":                 func(p *Project) { p.InvestmentCost = nd("-5") },
		"latest_financing_valuation must not be negative":      func(p *Project) { p.LatestFinancingValuation = nd("-0.01") },
		"current_shareholding_ratio must be between 0 and 100": func(p *Project) { p.CurrentShareholdingRatio = nd("150") },
		"initial_shareholding_ratio must be between 0 and 100": func(p *Project) { p.InitialShareholdingRatio = nd("-1") },
	}
	for msg, mutate := range cases {
		p := valid
		mutate(&p)
		err := p.Validate()
		require.Error(t, err, msg)
		assert.Equal(t, msg, err.Error())
	}
}

func TestProjectPatchAppliesOnlySuppliedFields(t *testing.T) {
	p := Project{
		Name:                     "Acme",
		PortfolioStatus:          "Active",
		CommittedCapital:         decimal.NewFromInt(150000),
		CurrentShareholdingRatio: nd("20"),
		InvestmentCost:           nd("100000"),
		LatestFinancingValuation: nd("1000000"),
	}
	status := "Exited"
	valuation := nd("2000000")
	ProjectPatch{PortfolioStatus: &status, LatestFinancingValuation: &valuation}.Apply(&p)

	assert.Equal(t, "Acme", p.Name)
	assert.Equal(t, "Exited", p.PortfolioStatus)
	assert.True(t, p.CommittedCapital.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, "400000", p.BookValue.Decimal.String())
	assert.Equal(t, "4", p.MOIC.Decimal.String())

	ProjectPatch{InvestmentCost: &decimal.NullDecimal{}}.Apply(&p)
	assert.False(t, p.InvestmentCost.Valid)
	assert.False(t, p.MOIC.Valid)
}

func TestSummarize(t *testing.T) {
	p := Project{
		CommittedCapital:         decimal.Zero,
		CurrentShareholdingRatio: nd("20"),
		InvestmentCost:           nd("100000"),
		LatestFinancingValuation: nd("1000000"),
	}
	p.Derive()

	st := Summarize([]Project{p})
	assert.Equal(t, 1, st.ProjectCount)
	assert.Equal(t, "100000", st.TotalInvested.String())
	assert.Equal(t, "200000", st.TotalBookValue.String())
	require.True(t, st.MOIC.Valid)
	assert.Equal(t, "2.00", st.MOIC.Decimal.StringFixed(2))

	q := Project{CommittedCapital: decimal.NewFromInt(150000), InvestmentCost: nd("50000")}
	q.Derive()
	st = Summarize([]Project{p, q})
	assert.Equal(t, 2, st.ProjectCount)
	assert.Equal(t, "150000", st.TotalInvested.String())
	assert.Equal(t, "1.33", st.MOIC.Decimal.String())

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.ProjectCount)
	assert.True(t, empty.TotalInvested.IsZero())
	assert.False(t, empty.MOIC.Valid)
}
