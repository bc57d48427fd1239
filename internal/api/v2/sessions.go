// internal/api/v2/sessions.go
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ptmscope/ptmscope/internal/datastore"
)

// initSessionRoutes registers session lifecycle and upload endpoints
func (c *Controller) initSessionRoutes() {
	c.Group.POST("/sessions", c.CreateSession)
	c.Group.GET("/sessions", c.ListSessions)
	c.Group.GET("/sessions/:id", c.GetSession)
	c.Group.DELETE("/sessions/:id", c.DeleteSession)
	c.Group.POST("/sessions/:id/upload", c.UploadFile)
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// SessionResponse is the JSON view of an analysis session.
type SessionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	FileName      string    `json:"fileName,omitempty"`
	Status        string    `json:"status"`
	TotalProteins int       `json:"totalProteins"`
	TotalPTMSites int       `json:"totalPtmSites"`
	CreatedAt     time.Time `json:"createdAt"`
}

func sessionResponse(s *datastore.AnalysisSession) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		Name:          s.Name,
		FileName:      s.FileName,
		Status:        s.Status,
		TotalProteins: s.TotalProteins,
		TotalPTMSites: s.TotalPTMSites,
		CreatedAt:     s.CreatedAt,
	}
}

// CreateSession handles POST /sessions
func (c *Controller) CreateSession(ctx echo.Context) error {
	var req CreateSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.HandleError(ctx, nil, "Session name is required", http.StatusBadRequest)
	}

	session := &datastore.AnalysisSession{
		ID:     uuid.New().String(),
		Name:   req.Name,
		Status: datastore.StatusProcessing,
	}
	if err := c.DS.CreateSession(session); err != nil {
		return c.HandleError(ctx, err, "Failed to create session", http.StatusInternalServerError)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "Session created", "session_id", session.ID, "name", session.Name)
	return ctx.JSON(http.StatusCreated, sessionResponse(session))
}

// ListSessions handles GET /sessions
func (c *Controller) ListSessions(ctx echo.Context) error {
	sessions, err := c.DS.ListSessions()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sessions", http.StatusInternalServerError)
	}

	response := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		response = append(response, sessionResponse(&sessions[i]))
	}
	return ctx.JSON(http.StatusOK, response)
}

// GetSession handles GET /sessions/:id
func (c *Controller) GetSession(ctx echo.Context) error {
	session, err := c.DS.GetSession(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", mapErrorCode(err, http.StatusInternalServerError))
	}
	return ctx.JSON(http.StatusOK, sessionResponse(&session))
}

// DeleteSession handles DELETE /sessions/:id
func (c *Controller) DeleteSession(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.DS.DeleteSession(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete session", mapErrorCode(err, http.StatusInternalServerError))
	}

	c.invalidateSessionViews()
	c.logAPIRequest(ctx, slog.LevelInfo, "Session deleted", "session_id", id)
	return ctx.NoContent(http.StatusNoContent)
}

// UploadFile handles POST /sessions/:id/upload. The request is multipart
// form data with the result file under the "file" field.
func (c *Controller) UploadFile(ctx echo.Context) error {
	sessionID := ctx.Param("id")

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "Missing file upload", http.StatusBadRequest)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to open uploaded file", http.StatusBadRequest)
	}
	defer func() {
		if err := file.Close(); err != nil {
			c.logAPIRequest(ctx, slog.LevelWarn, "Failed to close uploaded file", "error", err)
		}
	}()

	result, err := c.Processor.ProcessUpload(ctx.Request().Context(), sessionID, fileHeader.Filename, file)
	if err != nil {
		return c.HandleError(ctx, err, "Upload processing failed", mapErrorCode(err, http.StatusInternalServerError))
	}

	c.invalidateSessionViews()
	c.logAPIRequest(ctx, slog.LevelInfo, "Upload processed",
		"session_id", sessionID,
		"file_name", fileHeader.Filename,
		"proteins", result.Processed.Proteins,
		"ptm_sites", result.Processed.PTMSites,
		"row_errors", result.TotalRowErrors)

	return ctx.JSON(http.StatusOK, result)
}
