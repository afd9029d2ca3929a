package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chartdesk/internal/broadcast"
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
	"chartdesk/internal/render"
)

// Constants
const (
	DefaultTimeout      = 10 * time.Second
	ServiceVersion      = "1.0.0"
	ServiceName         = "chartdesk"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// ChartService is the part of the broadcast session the HTTP surface drives.
type ChartService interface {
	Snapshot(ctx context.Context) (chart.Frame, error)
	Drawings(ctx context.Context) ([]domain.Drawing, error)
	ReplaceDrawings(ctx context.Context, list []domain.Drawing) ([]domain.Drawing, error)
	ClearDrawings(ctx context.Context) error
	Positions(ctx context.Context) ([]domain.Position, error)
	OpenPosition(ctx context.Context, direction domain.Direction, entryPrice float64) (*domain.Position, error)
	ClosePosition(ctx context.Context, id string) error
	UpdateExit(ctx context.Context, upd chart.PositionUpdate) (*domain.Position, error)
}

// StreamHandler upgrades a request into the broadcast hub.
type StreamHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, role broadcast.Role)
}

// APIHandler handles HTTP requests using Gin framework
type APIHandler struct {
	service  ChartService
	stream   StreamHandler
	pipeline *render.Pipeline
	logger   ports.Logger
}

// NewAPIHandler creates a new API handler. stream may be nil, in which case /ws is not
// registered.
func NewAPIHandler(service ChartService, stream StreamHandler, logger ports.Logger) *APIHandler {
	return &APIHandler{
		service:  service,
		stream:   stream,
		pipeline: render.NewPipeline(),
		logger:   logger,
	}
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(requestLoggerMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)
	if h.stream != nil {
		router.GET("/ws", h.ServeWebSocket)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/chart/snapshot", h.GetSnapshot)

		v1.GET("/drawings", h.GetDrawings)
		v1.PUT("/drawings", h.ReplaceDrawings)
		v1.DELETE("/drawings", h.ClearDrawings)

		v1.GET("/positions", h.GetPositions)
		v1.POST("/positions", h.OpenPosition)
		v1.POST("/positions/:id/close", h.ClosePosition)
		v1.PATCH("/positions/:id/exits", h.UpdateExit)
	}

	return router
}
