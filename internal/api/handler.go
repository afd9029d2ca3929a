package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chartdesk/internal/broadcast"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
	"chartdesk/internal/render"
)

// HealthCheck handles GET /health requests
func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// ServeWebSocket handles GET /ws?role=broadcaster|viewer
func (h *APIHandler) ServeWebSocket(c *gin.Context) {
	h.stream.HandleWebSocket(c.Writer, c.Request, broadcast.ParseRole(c.Query("role")))
}

// GetSnapshot handles GET /api/v1/chart/snapshot
func (h *APIHandler) GetSnapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	format, err := render.ParseImageFormat(c.Query("format"))
	if err != nil {
		h.handleError(c, errors.Join(ports.ErrInvalidRequest, err))
		return
	}

	frame, err := h.service.Snapshot(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := render.Snapshot(&buf, h.pipeline, frame, format); err != nil {
		h.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// GetDrawings handles GET /api/v1/drawings
func (h *APIHandler) GetDrawings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	drawings, err := h.service.Drawings(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if drawings == nil {
		drawings = []domain.Drawing{}
	}
	c.JSON(http.StatusOK, drawings)
}

// ReplaceDrawings handles PUT /api/v1/drawings
func (h *APIHandler) ReplaceDrawings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var list []domain.Drawing
	if err := c.ShouldBindJSON(&list); err != nil {
		h.handleError(c, errors.Join(ports.ErrInvalidRequest, err))
		return
	}

	drawings, err := h.service.ReplaceDrawings(ctx, list)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if drawings == nil {
		drawings = []domain.Drawing{}
	}
	c.JSON(http.StatusOK, drawings)
}

// ClearDrawings handles DELETE /api/v1/drawings
func (h *APIHandler) ClearDrawings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	if err := h.service.ClearDrawings(ctx); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPositions handles GET /api/v1/positions
func (h *APIHandler) GetPositions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	positions, err := h.service.Positions(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	c.JSON(http.StatusOK, positions)
}

// OpenPosition handles POST /api/v1/positions
func (h *APIHandler) OpenPosition(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.Join(ports.ErrInvalidRequest, err))
		return
	}

	pos, err := h.service.OpenPosition(ctx, req.Direction, req.EntryPrice)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pos)
}

// ClosePosition handles POST /api/v1/positions/:id/close
func (h *APIHandler) ClosePosition(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	if err := h.service.ClosePosition(ctx, c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateExit handles PATCH /api/v1/positions/:id/exits
func (h *APIHandler) UpdateExit(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req updateExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.Join(ports.ErrInvalidRequest, err))
		return
	}

	pos, err := h.service.UpdateExit(ctx, req.toUpdate(c.Param("id")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// statusFor maps port errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrInvalidDrawing):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, ports.ErrExitRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrSessionClosed), errors.Is(err, ports.ErrFeedUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, ports.ErrContextCanceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs the error and sends appropriate HTTP response. Client errors carry the
// error text; server errors are reported generically.
func (h *APIHandler) handleError(c *gin.Context, err error) {
	statusCode := statusFor(err)
	requestIDStr := c.GetString(RequestIDContextKey)
	if requestIDStr == "" {
		requestIDStr = "unknown"
	}

	fields := map[string]interface{}{
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"status_code": statusCode,
	}
	userMessage := err.Error()
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), err, "API error", fields)
		userMessage = http.StatusText(statusCode)
	} else {
		fields["error"] = err.Error()
		h.logger.Warn(c.Request.Context(), "API request rejected", fields)
	}

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestIDStr,
	})
}
