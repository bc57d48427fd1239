// internal/api/v2/api.go
package api

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/enrichment"
	"github.com/ptmscope/ptmscope/internal/errors"
	"github.com/ptmscope/ptmscope/internal/ingest"
	"github.com/ptmscope/ptmscope/internal/logging"
	"github.com/ptmscope/ptmscope/internal/observability"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings

	Processor *ingest.Processor
	Enricher  *enrichment.Enricher

	logger         *log.Logger
	siteViewCache  *cache.Cache // cache for consolidated site views
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
	metrics        *observability.Metrics
	startTime      time.Time
}

// New creates a new API controller and registers all routes under /api/v2.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	processor *ingest.Processor, enricher *enrichment.Enricher,
	metrics *observability.Metrics, logger *log.Logger) (*Controller, error) {
	c, err := NewWithOptions(e, ds, settings, processor, enricher, metrics, logger, true)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewWithOptions creates a new API controller with optional route
// initialization. Set initializeRoutes to false in tests that register
// handlers individually.
func NewWithOptions(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	processor *ingest.Processor, enricher *enrichment.Enricher,
	metrics *observability.Metrics, logger *log.Logger, initializeRoutes bool) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}
	if settings == nil {
		return nil, fmt.Errorf("settings must not be nil")
	}

	c := &Controller{
		Echo:          e,
		DS:            ds,
		Settings:      settings,
		Processor:     processor,
		Enricher:      enricher,
		logger:        logger,
		siteViewCache: cache.New(5*time.Minute, 10*time.Minute),
		metrics:       metrics,
		startTime:     time.Now(),
	}

	// Initialize structured logger for API requests
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: Failed to initialize API structured logger: %v", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
		logger.Printf("API structured logging initialized to %s", apiLogPath)
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(c.LoggingMiddleware())

	if initializeRoutes {
		c.initRoutes()
	}

	return c, nil
}

// LoggingMiddleware creates a middleware function that logs API requests
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			err := next(ctx)

			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}

			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"session routes", c.initSessionRoutes},
		{"protein routes", c.initProteinRoutes},
		{"enrichment routes", c.initEnrichmentRoutes},
	}

	for _, initializer := range routeInitializers {
		c.Debug("Initializing %s...", initializer.name)
		initializer.fn()
	}

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"version":   c.Settings.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	dbStatus := "connected"
	if _, err := c.DS.ListSessions(); err != nil {
		dbStatus = "disconnected"
		response["status"] = "degraded"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	uptime := time.Since(c.startTime)
	response["uptime_seconds"] = uptime.Seconds()

	return ctx.JSON(http.StatusOK, response)
}

// Shutdown closes the API log file.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}
}

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()
	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorResp.Error,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(code, errorResp)
}

// mapErrorCode translates an error's category into an HTTP status code.
func mapErrorCode(err error, fallback int) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryFileParsing):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryNetwork),
		errors.IsCategory(err, errors.CategoryTimeout):
		return http.StatusBadGateway
	case errors.IsCategory(err, errors.CategoryLimit):
		return http.StatusTooManyRequests
	default:
		return fallback
	}
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)

		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// logAPIRequest is a helper to log API requests with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	if c.apiLogger == nil {
		return
	}

	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)

	switch level {
	case slog.LevelDebug:
		c.apiLogger.Debug(msg, baseAttrs...)
	case slog.LevelInfo:
		c.apiLogger.Info(msg, baseAttrs...)
	case slog.LevelWarn:
		c.apiLogger.Warn(msg, baseAttrs...)
	case slog.LevelError:
		c.apiLogger.Error(msg, baseAttrs...)
	default:
		c.apiLogger.Log(ctx.Request().Context(), level, msg, baseAttrs...)
	}
}

// invalidateSessionViews drops cached consolidated views after a mutation.
func (c *Controller) invalidateSessionViews() {
	c.siteViewCache.Flush()
}
