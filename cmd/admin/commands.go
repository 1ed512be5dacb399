package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"vcfolio/internal/database"
	"vcfolio/internal/models"
	"vcfolio/internal/service"
)

var commands = []subcommands.Command{
	&pingCmd{},
	&listCmd{},
	&addCmd{},
	&updateCmd{},
	&deleteCmd{},
	&documentsCmd{},
	&orphansCmd{},
	&seedCmd{},
}

func withEnv(ctx context.Context, run func(*env) error) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()
	if err := run(e); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type pingCmd struct{}

func (*pingCmd) Name() string           { return "ping" }
func (*pingCmd) Synopsis() string       { return "test the database connection" }
func (*pingCmd) Usage() string          { return "ping\n" }
func (*pingCmd) SetFlags(*flag.FlagSet) {}
func (*pingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(e *env) error {
		if err := e.repo.Ping(ctx); err != nil {
			return err
		}
		projects, err := e.repo.ListProjects(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Printf("connected to %s, %d portfolios\n", e.cfg.DBDriver, len(projects))
		return nil
	})
}

type listCmd struct {
	limit int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list portfolios with valuation and document counts" }
func (*listCmd) Usage() string {
	return `list [-limit n]

  Lists portfolios, newest investment first. Book value and MOIC are
  derived from the latest financing valuation, current shareholding ratio
  and investment cost. The footer totals every portfolio.
`
}
func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 0, "maximum number of portfolios (0 = all)")
}
func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(e *env) error {
		projects, err := e.repo.ListProjects(ctx, c.limit)
		if err != nil {
			return err
		}
		counts, err := e.repo.DocumentCounts(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("no portfolios found")
			return nil
		}
		cur := e.cfg.DisplayCurrency
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tINVESTED\tCOMMITTED\tBOOK VALUE\tMOIC\tDOCS")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				p.ID, p.Name, p.InvestmentDate.Format("2006-01-02"),
				formatMoney(p.CommittedCapital, cur), formatNullMoney(p.BookValue, cur),
				formatMOIC(p.MOIC), counts[p.ID])
		}
		if err := w.Flush(); err != nil {
			return err
		}
		st := models.Summarize(projects)
		if c.limit > 0 {
			all, err := e.repo.ListProjects(ctx, 0)
			if err != nil {
				return err
			}
			st = models.Summarize(all)
		}
		fmt.Printf("\n%d portfolios, invested %s, book value %s, MOIC %s\n",
			st.ProjectCount, formatMoney(st.TotalInvested, cur), formatMoney(st.TotalBookValue, cur), formatMOIC(st.MOIC))
		return nil
	})
}

type addCmd struct {
	name      string
	date      string
	capital   string
	cost      string
	valuation string
	ratio     string
	status    string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a portfolio" }
func (*addCmd) Usage() string {
	return `add -name <name> -date <YYYY-MM-DD> -capital <amount> [-cost <amount> -valuation <amount> -ratio <percent> -status <text>]
`
}
func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "portfolio name (required)")
	f.StringVar(&c.date, "date", "", "investment date, YYYY-MM-DD (required)")
	f.StringVar(&c.capital, "capital", "", "committed capital (required)")
	f.StringVar(&c.cost, "cost", "", "actual investment cost")
	f.StringVar(&c.valuation, "valuation", "", "latest financing valuation")
	f.StringVar(&c.ratio, "ratio", "", "current shareholding ratio, percent")
	f.StringVar(&c.status, "status", "", "portfolio status")
}

func optionalDecimal(flagName, v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("-%s: %w", flagName, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" || c.date == "" || c.capital == "" {
		fmt.Fprintln(os.Stderr, "Error: -name, -date and -capital are required.")
		return subcommands.ExitUsageError
	}
	date, err := time.Parse("2006-01-02", c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -date %q: %v\n", c.date, err)
		return subcommands.ExitUsageError
	}
	capital, err := decimal.NewFromString(c.capital)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -capital %q: %v\n", c.capital, err)
		return subcommands.ExitUsageError
	}
	p := models.Project{Name: c.name, PortfolioStatus: c.status, InvestmentDate: date, CommittedCapital: capital}
	for _, o := range []struct {
		name, value string
		dst         *decimal.NullDecimal
	}{
		{"cost", c.cost, &p.InvestmentCost},
		{"valuation", c.valuation, &p.LatestFinancingValuation},
		{"ratio", c.ratio, &p.CurrentShareholdingRatio},
	} {
		if *o.dst, err = optionalDecimal(o.name, o.value); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	if err := p.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withEnv(ctx, func(e *env) error {
		if err := e.repo.CreateProject(ctx, &p); err != nil {
			return err
		}
		fmt.Printf("added portfolio %s (%s)\n", p.Name, p.ID)
		return nil
	})
}

type updateCmd struct {
	id        string
	name      string
	intro     string
	date      string
	capital   string
	cost      string
	valuation string
	initial   string
	ratio     string
	status    string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "update fields of a portfolio" }
func (*updateCmd) Usage() string {
	return `update -id <portfolio id> [-name -intro -date -capital -cost -valuation -initial -ratio -status]

  Only the flags given are changed. Pass an empty value to -cost,
  -valuation, -initial or -ratio to clear that field.
`
}
func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "portfolio id (required)")
	f.StringVar(&c.name, "name", "", "portfolio name")
	f.StringVar(&c.intro, "intro", "", "brief introduction")
	f.StringVar(&c.date, "date", "", "investment date, YYYY-MM-DD")
	f.StringVar(&c.capital, "capital", "", "committed capital")
	f.StringVar(&c.cost, "cost", "", "actual investment cost")
	f.StringVar(&c.valuation, "valuation", "", "latest financing valuation")
	f.StringVar(&c.initial, "initial", "", "initial shareholding ratio, percent")
	f.StringVar(&c.ratio, "ratio", "", "current shareholding ratio, percent")
	f.StringVar(&c.status, "status", "", "portfolio status")
}

// patch builds a partial update from the flags that were set on f.
func (c *updateCmd) patch(f *flag.FlagSet) (models.ProjectPatch, error) {
	var patch models.ProjectPatch
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "name":
			patch.Name = &c.name
		case "intro":
			patch.BriefIntro = &c.intro
		case "status":
			patch.PortfolioStatus = &c.status
		case "date":
			var d time.Time
			if d, err = time.Parse("2006-01-02", c.date); err != nil {
				err = fmt.Errorf("-date: %w", err)
				return
			}
			patch.InvestmentDate = &d
		case "capital":
			var d decimal.Decimal
			if d, err = decimal.NewFromString(c.capital); err != nil {
				err = fmt.Errorf("-capital: %w", err)
				return
			}
			patch.CommittedCapital = &d
		case "cost", "valuation", "initial", "ratio":
			var v decimal.NullDecimal
			if v, err = optionalDecimal(fl.Name, fl.Value.String()); err != nil {
				return
			}
			switch fl.Name {
			case "cost":
				patch.InvestmentCost = &v
			case "valuation":
				patch.LatestFinancingValuation = &v
			case "initial":
				patch.InitialShareholdingRatio = &v
			case "ratio":
				patch.CurrentShareholdingRatio = &v
			}
		}
	})
	return patch, err
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required.")
		return subcommands.ExitUsageError
	}
	patch, err := c.patch(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withEnv(ctx, func(e *env) error {
		p, err := e.repo.GetProject(ctx, c.id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("portfolio %s not found", c.id)
			}
			return err
		}
		patch.Apply(&p)
		if err := p.Validate(); err != nil {
			return err
		}
		if err := e.repo.UpdateProject(ctx, &p); err != nil {
			return err
		}
		fmt.Printf("updated portfolio %s (%s): book value %s, MOIC %s\n",
			p.Name, p.ID, formatNullMoney(p.BookValue, e.cfg.DisplayCurrency), formatMOIC(p.MOIC))
		return nil
	})
}

type deleteCmd struct {
	id string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a portfolio with its documents and files" }
func (*deleteCmd) Usage() string    { return "delete -id <portfolio id>\n" }
func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "portfolio id (required)")
}
func (c *deleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required.")
		return subcommands.ExitUsageError
	}
	return withEnv(ctx, func(e *env) error {
		if err := e.docs.DeleteProject(ctx, c.id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return fmt.Errorf("portfolio %s not found", c.id)
			}
			return err
		}
		fmt.Printf("deleted portfolio %s\n", c.id)
		return nil
	})
}

type documentsCmd struct {
	project string
}

func (*documentsCmd) Name() string     { return "documents" }
func (*documentsCmd) Synopsis() string { return "list documents" }
func (*documentsCmd) Usage() string    { return "documents [-project <id>]\n" }
func (c *documentsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.project, "project", "", "only documents of this portfolio")
}
func (c *documentsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(e *env) error {
		docs, err := e.repo.ListDocuments(ctx, database.DocumentFilter{ProjectID: c.project})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tPORTFOLIO\tSIZE\tVISIBLE\tURL")
		for _, d := range docs {
			owner := "General"
			if d.ProjectName != nil {
				owner = *d.ProjectName
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				d.ID, d.Name, d.Type, owner, humanize.Bytes(uint64(d.SizeBytes)), d.IsVisible, d.URL)
		}
		return w.Flush()
	})
}

type orphansCmd struct {
	prune bool
	grace time.Duration
}

func (*orphansCmd) Name() string     { return "orphans" }
func (*orphansCmd) Synopsis() string { return "compare stored files with document records" }
func (*orphansCmd) Usage() string {
	return `orphans [-prune]

  Reports files in the upload directory that no document references and
  documents whose file is missing. With -prune the unreferenced files are
  removed, except files modified within -grace, which may belong to an
  upload still in progress. Documents with missing files are only reported.
`
}
func (c *orphansCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.prune, "prune", false, "remove unreferenced files")
	f.DurationVar(&c.grace, "grace", service.DefaultPruneGrace, "keep unreferenced files modified more recently than this")
}
func (c *orphansCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEnv(ctx, func(e *env) error {
		rep, err := e.docs.Reconcile(ctx, c.prune, c.grace)
		if err != nil {
			return err
		}
		fmt.Printf("unreferenced files: %d\n", len(rep.OrphanFiles))
		for _, k := range rep.OrphanFiles {
			fmt.Printf("  %s\n", k)
		}
		fmt.Printf("documents with missing files: %d\n", len(rep.MissingFiles))
		for _, k := range rep.MissingFiles {
			fmt.Printf("  %s\n", k)
		}
		if c.prune {
			fmt.Printf("pruned %d files, kept %d recent\n", rep.Pruned, rep.Recent)
		}
		return nil
	})
}

type seedCmd struct{}

func (*seedCmd) Name() string           { return "seed" }
func (*seedCmd) Synopsis() string       { return "insert demo portfolios" }
func (*seedCmd) Usage() string          { return "seed\n" }
func (*seedCmd) SetFlags(*flag.FlagSet) {}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func (*seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	year := time.Now().UTC().Year()
	demo := []models.Project{
		{
			Name: "Northwind Robotics", BriefIntro: "Warehouse picking robots", PortfolioStatus: "Active",
			InvestmentDate: time.Date(year-2, 3, 15, 0, 0, 0, 0, time.UTC), CommittedCapital: decimal.RequireFromString("2000000"),
			InitialShareholdingRatio: nd("12"), CurrentShareholdingRatio: nd("9.5"),
			InvestmentCost: nd("1500000"), LatestFinancingValuation: nd("40000000"),
		},
		{
			Name: "Lumen Health", BriefIntro: "Remote patient monitoring", PortfolioStatus: "Active",
			InvestmentDate: time.Date(year-1, 9, 1, 0, 0, 0, 0, time.UTC), CommittedCapital: decimal.RequireFromString("500000"),
			InitialShareholdingRatio: nd("5"), CurrentShareholdingRatio: nd("5"),
			InvestmentCost: nd("500000"), LatestFinancingValuation: nd("10000000"),
		},
		{
			Name: "Quarry Labs", BriefIntro: "Materials discovery", PortfolioStatus: "Pending",
			InvestmentDate: time.Date(year, 1, 10, 0, 0, 0, 0, time.UTC), CommittedCapital: decimal.RequireFromString("250000"),
		},
	}
	return withEnv(ctx, func(e *env) error {
		for i := range demo {
			if err := demo[i].Validate(); err != nil {
				return fmt.Errorf("seed %s: %w", demo[i].Name, err)
			}
			if err := e.repo.CreateProject(ctx, &demo[i]); err != nil {
				fmt.Printf("Warning: could not insert %s: %v\n", demo[i].Name, err)
				continue
			}
			fmt.Printf("seeded %s (%s)\n", demo[i].Name, demo[i].ID)
		}
		return nil
	})
}
