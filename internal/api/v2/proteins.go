// internal/api/v2/proteins.go
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/ptm"
)

// initProteinRoutes registers protein and consolidated-site endpoints
func (c *Controller) initProteinRoutes() {
	c.Group.GET("/sessions/:id/proteins", c.ListSessionProteins)
	c.Group.GET("/sessions/:id/proteins/:accession", c.GetSessionProtein)
	c.Group.GET("/sessions/:id/proteins/:accession/sites", c.GetProteinSites)
	c.Group.GET("/sessions/:id/proteins/:accession/sites/export", c.ExportProteinSites)
	c.Group.GET("/sessions/:id/summary", c.GetSessionSummary)
}

// ProteinResponse is the JSON view of a stored protein.
type ProteinResponse struct {
	Accession      string    `json:"accession"`
	Name           string    `json:"name,omitempty"`
	Gene           string    `json:"gene,omitempty"`
	Organism       string    `json:"organism,omitempty"`
	SequenceLength int       `json:"sequenceLength"`
	HasSequence    bool      `json:"hasSequence"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func proteinResponse(p *datastore.Protein) ProteinResponse {
	return ProteinResponse{
		Accession:      p.Accession,
		Name:           p.Name,
		Gene:           p.Gene,
		Organism:       p.Organism,
		SequenceLength: p.SequenceLength,
		HasSequence:    p.Sequence != "",
		UpdatedAt:      p.UpdatedAt,
	}
}

// ConditionView is the per-condition aggregate of one consolidated site.
type ConditionView struct {
	AverageQuantity *float64 `json:"averageQuantity"`
	PeptideCount    int      `json:"peptideCount"`
}

// SiteView is one consolidated modification site with its sequence window.
type SiteView struct {
	Position             int                      `json:"position"`
	AminoAcid            string                   `json:"aminoAcid,omitempty"`
	ModificationType     string                   `json:"modificationType"`
	EvidenceClass        ptm.EvidenceClass        `json:"evidenceClass"`
	PeptideCount         int                      `json:"peptideCount"`
	Probability          *float64                 `json:"probability"`
	Conditions           map[string]ConditionView `json:"conditions"`
	QuantifiedConditions int                      `json:"quantifiedConditions"`
	SequenceWindow       string                   `json:"sequenceWindow"`
	References           []string                 `json:"references,omitempty"`
}

// SitesResponse is the body of GET /sessions/:id/proteins/:accession/sites.
type SitesResponse struct {
	Accession    string     `json:"accession"`
	WindowRadius int        `json:"windowRadius"`
	Sites        []SiteView `json:"sites"`
}

// ListSessionProteins handles GET /sessions/:id/proteins
func (c *Controller) ListSessionProteins(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	if _, err := c.DS.GetSession(sessionID); err != nil {
		return c.HandleError(ctx, err, "Session not found", mapErrorCode(err, http.StatusInternalServerError))
	}

	proteins, err := c.DS.ListProteins(sessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list proteins", http.StatusInternalServerError)
	}

	response := make([]ProteinResponse, 0, len(proteins))
	for i := range proteins {
		response = append(response, proteinResponse(&proteins[i]))
	}
	return ctx.JSON(http.StatusOK, response)
}

// GetSessionProtein handles GET /sessions/:id/proteins/:accession
func (c *Controller) GetSessionProtein(ctx echo.Context) error {
	protein, err := c.DS.GetProtein(ctx.Param("id"), ctx.Param("accession"))
	if err != nil {
		return c.HandleError(ctx, err, "Protein not found", mapErrorCode(err, http.StatusInternalServerError))
	}
	return ctx.JSON(http.StatusOK, proteinResponse(&protein))
}

// GetProteinSites handles GET /sessions/:id/proteins/:accession/sites.
// The consolidated view is always re-derived from the stored raw rows; the
// short-lived cache only spares repeated folds while a viewer is open.
func (c *Controller) GetProteinSites(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	accession := ctx.Param("accession")

	radius, err := c.windowRadius(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid radius parameter", http.StatusBadRequest)
	}

	cacheKey := fmt.Sprintf("sites:%s:%s:%d", sessionID, accession, radius)
	if cached, found := c.siteViewCache.Get(cacheKey); found {
		if response, ok := cached.(*SitesResponse); ok {
			return ctx.JSON(http.StatusOK, response)
		}
	}

	protein, sites, err := c.consolidateProtein(sessionID, accession)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to consolidate sites", mapErrorCode(err, http.StatusInternalServerError))
	}

	response := &SitesResponse{
		Accession:    accession,
		WindowRadius: radius,
		Sites:        buildSiteViews(sites, protein.Sequence, radius),
	}
	c.siteViewCache.Set(cacheKey, response, cache.DefaultExpiration)

	c.logAPIRequest(ctx, slog.LevelDebug, "Consolidated sites served",
		"session_id", sessionID, "accession", accession, "sites", len(response.Sites))
	return ctx.JSON(http.StatusOK, response)
}

// ExportProteinSites handles GET /sessions/:id/proteins/:accession/sites/export,
// streaming the consolidated view as a CSV download.
func (c *Controller) ExportProteinSites(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	accession := ctx.Param("accession")

	radius, err := c.windowRadius(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid radius parameter", http.StatusBadRequest)
	}

	protein, sites, err := c.consolidateProtein(sessionID, accession)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to consolidate sites", mapErrorCode(err, http.StatusInternalServerError))
	}

	fileName := fmt.Sprintf("%s_ptm_sites.csv", accession)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	ctx.Response().Header().Set(echo.HeaderContentType, "text/csv")
	ctx.Response().WriteHeader(http.StatusOK)

	if err := ptm.WriteCSV(ctx.Response(), sites, protein.Sequence, radius); err != nil {
		// Headers are already out; log and give up on this response.
		c.logAPIRequest(ctx, slog.LevelError, "CSV export failed",
			"session_id", sessionID, "accession", accession, "error", err)
		return err
	}
	return nil
}

// SummaryResponse is the body of GET /sessions/:id/summary.
type SummaryResponse struct {
	Session       SessionResponse               `json:"session"`
	Modifications []datastore.ModificationCount `json:"modifications"`
}

// GetSessionSummary handles GET /sessions/:id/summary
func (c *Controller) GetSessionSummary(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	session, err := c.DS.GetSession(sessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", mapErrorCode(err, http.StatusInternalServerError))
	}

	summary, err := c.DS.ModificationSummary(sessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to build summary", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, SummaryResponse{
		Session:       sessionResponse(&session),
		Modifications: summary,
	})
}

// consolidateProtein folds a protein's stored observations and known sites
// into the consolidated site list.
func (c *Controller) consolidateProtein(sessionID, accession string) (*datastore.Protein, []*ptm.ConsolidatedSite, error) {
	protein, err := c.DS.GetProtein(sessionID, accession)
	if err != nil {
		return nil, nil, err
	}

	observations, err := c.DS.GetObservations(protein.ID)
	if err != nil {
		return nil, nil, err
	}
	knownSites, err := c.DS.GetKnownSites(protein.ID)
	if err != nil {
		return nil, nil, err
	}

	consolidator := ptm.NewConsolidator()
	for i := range observations {
		raw := rawFromObservation(&observations[i], accession)
		consolidator.Add(&raw)
	}
	for i := range knownSites {
		raw := rawFromKnownSite(&knownSites[i], accession)
		consolidator.Add(&raw)
	}

	return &protein, consolidator.Sites(), nil
}

// rawFromObservation converts a stored observation row back into the typed
// observation the consolidation engine folds.
func rawFromObservation(o *datastore.Observation, accession string) ptm.RawObservation {
	return ptm.RawObservation{
		Accession:        accession,
		Position:         o.Position,
		AminoAcid:        o.AminoAcid,
		ModificationType: o.ModificationType,
		Evidence:         ptm.EvidenceExperimental,
		Probability:      o.Probability,
		Quantity:         o.Quantity,
		FlankingRegion:   o.FlankingRegion,
		Multiplicity:     o.Multiplicity,
		ExperimentName:   o.ExperimentName,
		Condition:        o.Condition,
	}
}

// rawFromKnownSite converts a stored reference annotation into a
// known-evidence observation. Known evidence carries no condition or
// quantitative data, so those fields stay empty.
func rawFromKnownSite(k *datastore.KnownSite, accession string) ptm.RawObservation {
	return ptm.RawObservation{
		Accession:        accession,
		Position:         k.Position,
		AminoAcid:        k.AminoAcid,
		ModificationType: k.ModificationType,
		Evidence:         ptm.EvidenceKnown,
		Multiplicity:     1,
		References:       datastore.SplitReferences(k.References),
	}
}

// buildSiteViews renders consolidated sites with their sequence windows.
func buildSiteViews(sites []*ptm.ConsolidatedSite, sequence string, radius int) []SiteView {
	views := make([]SiteView, 0, len(sites))
	for _, site := range sites {
		window, err := ptm.SequenceWindow(sequence, site.Position, radius)
		switch {
		case err != nil:
			window = "position out of range"
		case window == "":
			window = ptm.WindowUnavailable
		}

		conditions := make(map[string]ConditionView, len(site.Conditions))
		for label, stats := range site.Conditions {
			view := ConditionView{PeptideCount: stats.PeptideCount}
			if avg, ok := stats.AverageQuantity(); ok {
				view.AverageQuantity = &avg
			}
			conditions[label] = view
		}

		views = append(views, SiteView{
			Position:             site.Position,
			AminoAcid:            site.AminoAcid,
			ModificationType:     site.ModificationType,
			EvidenceClass:        site.Evidence,
			PeptideCount:         site.PeptideCount,
			Probability:          site.Probability,
			Conditions:           conditions,
			QuantifiedConditions: site.QuantifiedConditionCount(),
			SequenceWindow:       window,
			References:           site.References(),
		})
	}
	return views
}

// windowRadius resolves the window radius for a request: the query parameter
// when present, the configured default otherwise.
func (c *Controller) windowRadius(ctx echo.Context) (int, error) {
	param := ctx.QueryParam("radius")
	if param == "" {
		radius := c.Settings.Consolidation.WindowRadius
		if radius < 1 {
			radius = ptm.DefaultWindowRadius
		}
		return radius, nil
	}

	radius, err := strconv.Atoi(param)
	if err != nil || radius < 1 {
		return 0, fmt.Errorf("radius must be a positive integer, got %q", param)
	}
	if radius > ptm.MaxWindowRadius {
		radius = ptm.MaxWindowRadius
	}
	return radius, nil
}
