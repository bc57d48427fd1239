// internal/api/v2/enrich.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// initEnrichmentRoutes registers reference enrichment endpoints
func (c *Controller) initEnrichmentRoutes() {
	c.Group.POST("/sessions/:id/enrich", c.EnrichSession)
	c.Group.POST("/sessions/:id/proteins/:accession/enrich", c.EnrichProtein)
}

// EnrichSession handles POST /sessions/:id/enrich, fetching sequences and
// known-evidence annotations for every protein in the session.
func (c *Controller) EnrichSession(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	if _, err := c.DS.GetSession(sessionID); err != nil {
		return c.HandleError(ctx, err, "Session not found", mapErrorCode(err, http.StatusInternalServerError))
	}
	if c.Enricher == nil {
		return c.HandleError(ctx, nil, "Enrichment is disabled", http.StatusServiceUnavailable)
	}

	result, err := c.Enricher.EnrichSession(ctx.Request().Context(), sessionID)
	if err != nil {
		return c.HandleError(ctx, err, "Enrichment failed", mapErrorCode(err, http.StatusBadGateway))
	}

	c.invalidateSessionViews()
	c.logAPIRequest(ctx, slog.LevelInfo, "Session enriched",
		"session_id", sessionID,
		"enriched", result.ProteinsEnriched,
		"failed", result.ProteinsFailed)
	return ctx.JSON(http.StatusOK, result)
}

// EnrichProtein handles POST /sessions/:id/proteins/:accession/enrich. A
// fetch failure reports upstream trouble and leaves the stored protein
// untouched.
func (c *Controller) EnrichProtein(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	accession := ctx.Param("accession")

	protein, err := c.DS.GetProtein(sessionID, accession)
	if err != nil {
		return c.HandleError(ctx, err, "Protein not found", mapErrorCode(err, http.StatusInternalServerError))
	}
	if c.Enricher == nil {
		return c.HandleError(ctx, nil, "Enrichment is disabled", http.StatusServiceUnavailable)
	}

	added, err := c.Enricher.EnrichProtein(ctx.Request().Context(), &protein)
	if err != nil {
		return c.HandleError(ctx, err, "Enrichment failed", mapErrorCode(err, http.StatusBadGateway))
	}

	c.invalidateSessionViews()
	updated, err := c.DS.GetProtein(sessionID, accession)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to reload protein", http.StatusInternalServerError)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "Protein enriched",
		"session_id", sessionID, "accession", accession, "known_sites", added)
	return ctx.JSON(http.StatusOK, map[string]any{
		"protein":         proteinResponse(&updated),
		"knownSitesAdded": added,
	})
}
