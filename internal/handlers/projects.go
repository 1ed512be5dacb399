package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"vcfolio/internal/database"
	"vcfolio/internal/models"
)

// ProjectRequest is the body of create. book_value and moic are derived
// and ignored if sent.
type ProjectRequest struct {
	Name                     string              `json:"name" binding:"required"`
	BriefIntro               string              `json:"brief_intro"`
	PortfolioStatus          string              `json:"portfolio_status"`
	InvestmentDate           string              `json:"investment_date" binding:"required"`
	CommittedCapital         *decimal.Decimal    `json:"committed_capital" binding:"required"`
	InitialShareholdingRatio decimal.NullDecimal `json:"initial_shareholding_ratio"`
	CurrentShareholdingRatio decimal.NullDecimal `json:"current_shareholding_ratio"`
	InvestmentCost           decimal.NullDecimal `json:"investment_cost"`
	LatestFinancingValuation decimal.NullDecimal `json:"latest_financing_valuation"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

func parseDate(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

const badDate = "investment_date must be YYYY-MM-DD or RFC3339"

func (req ProjectRequest) project() (models.Project, string) {
	date, ok := parseDate(req.InvestmentDate)
	if !ok {
		return models.Project{}, badDate
	}
	return models.Project{
		Name:                     strings.TrimSpace(req.Name),
		BriefIntro:               req.BriefIntro,
		PortfolioStatus:          req.PortfolioStatus,
		InvestmentDate:           date,
		CommittedCapital:         *req.CommittedCapital,
		InitialShareholdingRatio: req.InitialShareholdingRatio,
		CurrentShareholdingRatio: req.CurrentShareholdingRatio,
		InvestmentCost:           req.InvestmentCost,
		LatestFinancingValuation: req.LatestFinancingValuation,
	}, ""
}

// optionalDecimal records whether a key was present, so that an explicit
// null clears the field and an absent key leaves it alone.
type optionalDecimal struct {
	Set   bool
	Value decimal.NullDecimal
}

func (o *optionalDecimal) UnmarshalJSON(b []byte) error {
	o.Set = true
	return o.Value.UnmarshalJSON(b)
}

func (o optionalDecimal) ptr() *decimal.NullDecimal {
	if !o.Set {
		return nil
	}
	return &o.Value
}

// ProjectUpdate is the body of update. Only the keys present are changed.
type ProjectUpdate struct {
	Name                     *string          `json:"name"`
	BriefIntro               *string          `json:"brief_intro"`
	PortfolioStatus          *string          `json:"portfolio_status"`
	InvestmentDate           *string          `json:"investment_date"`
	CommittedCapital         *decimal.Decimal `json:"committed_capital"`
	InitialShareholdingRatio optionalDecimal  `json:"initial_shareholding_ratio"`
	CurrentShareholdingRatio optionalDecimal  `json:"current_shareholding_ratio"`
	InvestmentCost           optionalDecimal  `json:"investment_cost"`
	LatestFinancingValuation optionalDecimal  `json:"latest_financing_valuation"`
}

func (req ProjectUpdate) patch() (models.ProjectPatch, string) {
	patch := models.ProjectPatch{
		Name:                     req.Name,
		BriefIntro:               req.BriefIntro,
		PortfolioStatus:          req.PortfolioStatus,
		CommittedCapital:         req.CommittedCapital,
		InitialShareholdingRatio: req.InitialShareholdingRatio.ptr(),
		CurrentShareholdingRatio: req.CurrentShareholdingRatio.ptr(),
		InvestmentCost:           req.InvestmentCost.ptr(),
		LatestFinancingValuation: req.LatestFinancingValuation.ptr(),
	}
	if req.InvestmentDate != nil {
		date, ok := parseDate(*req.InvestmentDate)
		if !ok {
			return patch, badDate
		}
		patch.InvestmentDate = &date
	}
	return patch, ""
}

func (h *Handler) invalidProject(c *gin.Context, msg string) {
	h.log.Warnf("invalid project: %s", msg)
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid project body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields: name, investment_date and committed_capital are required"})
		return
	}
	p, msg := req.project()
	if msg != "" {
		h.invalidProject(c, msg)
		return
	}
	if err := p.Validate(); err != nil {
		h.invalidProject(c, err.Error())
		return
	}
	if err := h.repo.CreateProject(c.Request.Context(), &p); err != nil {
		h.fail(c, "create project", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListProjects(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	rows, err := h.repo.ListProjects(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "list projects", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

type ProjectDetail struct {
	models.Project
	Documents []models.Document `json:"documents"`
}

func (h *Handler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.repo.GetProject(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "get project", err)
		return
	}
	docs, err := h.repo.ListDocuments(ctx, database.DocumentFilter{ProjectID: p.ID, VisibleOnly: !h.sessions.IsAdmin(c)})
	if err != nil {
		h.fail(c, "get project", err)
		return
	}
	c.JSON(http.StatusOK, ProjectDetail{Project: p, Documents: docs})
}

func (h *Handler) UpdateProject(c *gin.Context) {
	ctx := c.Request.Context()
	var req ProjectUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid project body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project body"})
		return
	}
	patch, msg := req.patch()
	if msg != "" {
		h.invalidProject(c, msg)
		return
	}
	p, err := h.repo.GetProject(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "update project", err)
		return
	}
	patch.Apply(&p)
	if err := p.Validate(); err != nil {
		h.invalidProject(c, err.Error())
		return
	}
	if err := h.repo.UpdateProject(ctx, &p); err != nil {
		h.fail(c, "update project", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.docs.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStats returns portfolio-wide totals.
func (h *Handler) GetStats(c *gin.Context) {
	rows, err := h.repo.ListProjects(c.Request.Context(), 0)
	if err != nil {
		h.fail(c, "portfolio stats", err)
		return
	}
	c.JSON(http.StatusOK, models.Summarize(rows))
}
