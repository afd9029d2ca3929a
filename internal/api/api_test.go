package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/broadcast"
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
)

// MockChartService implements ChartService for testing
type MockChartService struct {
	mock.Mock
}

func (m *MockChartService) Snapshot(ctx context.Context) (chart.Frame, error) {
	args := m.Called(ctx)
	return args.Get(0).(chart.Frame), args.Error(1)
}

func (m *MockChartService) Drawings(ctx context.Context) ([]domain.Drawing, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Drawing), args.Error(1)
}

func (m *MockChartService) ReplaceDrawings(ctx context.Context, list []domain.Drawing) ([]domain.Drawing, error) {
	args := m.Called(ctx, list)
	return args.Get(0).([]domain.Drawing), args.Error(1)
}

func (m *MockChartService) ClearDrawings(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockChartService) Positions(ctx context.Context) ([]domain.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Position), args.Error(1)
}

func (m *MockChartService) OpenPosition(ctx context.Context, direction domain.Direction, entryPrice float64) (*domain.Position, error) {
	args := m.Called(ctx, direction, entryPrice)
	pos, _ := args.Get(0).(*domain.Position)
	return pos, args.Error(1)
}

func (m *MockChartService) ClosePosition(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockChartService) UpdateExit(ctx context.Context, upd chart.PositionUpdate) (*domain.Position, error) {
	args := m.Called(ctx, upd)
	pos, _ := args.Get(0).(*domain.Position)
	return pos, args.Error(1)
}

type mockStream struct {
	role broadcast.Role
}

func (m *mockStream) HandleWebSocket(w http.ResponseWriter, _ *http.Request, role broadcast.Role) {
	m.role = role
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type mockLogger struct {
	mu     sync.Mutex
	errors int
}

func (m *mockLogger) Debug(context.Context, string, ...map[string]interface{}) {}
func (m *mockLogger) Info(context.Context, string, ...map[string]interface{})  {}
func (m *mockLogger) Warn(context.Context, string, ...map[string]interface{})  {}
func (m *mockLogger) Error(context.Context, error, string, ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func setupRouter(svc ChartService, stream StreamHandler) (*gin.Engine, *mockLogger) {
	gin.SetMode(gin.TestMode)
	log := &mockLogger{}
	return NewAPIHandler(svc, stream, log).SetupRoutes(), log
}

func doRequest(router *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, url, nil)
	}
	router.ServeHTTP(w, req)
	return w
}

func testFrame() chart.Frame {
	c := chart.New(chart.Options{
		Layout: chart.Layout{
			Width:   320,
			Height:  200,
			Padding: chart.Padding{Top: 10, Right: 60, Bottom: 10, Left: 10},
		},
		Scope: domain.Scope{ReferralCode: "ref-1", Symbol: "BTCUSDT"},
	})
	c.SetCandles([]domain.Candle{
		{Time: 0, Open: 100, High: 102, Low: 99, Close: 101},
		{Time: 60, Open: 101, High: 104, Low: 100, Close: 103},
	})
	return c.Frame()
}

func TestSetupRoutes(t *testing.T) {
	router, _ := setupRouter(&MockChartService{}, &mockStream{})

	paths := map[string]bool{}
	for _, route := range router.Routes() {
		paths[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /ws",
		"GET /api/v1/chart/snapshot",
		"PUT /api/v1/drawings",
		"PATCH /api/v1/positions/:id/exits",
	} {
		assert.True(t, paths[want], "missing route %s", want)
	}

	withoutStream, _ := setupRouter(&MockChartService{}, nil)
	for _, route := range withoutStream.Routes() {
		assert.NotEqual(t, "/ws", route.Path)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(&MockChartService{}, nil)

	w := doRequest(router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeaderKey))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "OK", response["status"])
	assert.Equal(t, ServiceName, response["service"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	router, _ := setupRouter(&MockChartService{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeaderKey, "req-42")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeaderKey))
}

func TestServeWebSocketParsesRole(t *testing.T) {
	stream := &mockStream{}
	router, _ := setupRouter(&MockChartService{}, stream)

	doRequest(router, http.MethodGet, "/ws?role=broadcaster", "")
	assert.Equal(t, broadcast.RoleBroadcaster, stream.role)

	doRequest(router, http.MethodGet, "/ws?role=admin", "")
	assert.Equal(t, broadcast.RoleViewer, stream.role)
}

func TestGetSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		frameErr    error
		wantStatus  int
		contentType string
	}{
		{name: "png by default", wantStatus: http.StatusOK, contentType: "image/png"},
		{name: "svg", query: "?format=svg", wantStatus: http.StatusOK, contentType: "image/svg+xml"},
		{name: "unknown format", query: "?format=gif", wantStatus: http.StatusBadRequest},
		{name: "session closed", frameErr: ports.ErrSessionClosed, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockChartService{}
			svc.On("Snapshot", mock.Anything).Return(testFrame(), tt.frameErr).Maybe()
			router, _ := setupRouter(svc, nil)

			w := doRequest(router, http.MethodGet, "/api/v1/chart/snapshot"+tt.query, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
				assert.NotEmpty(t, w.Body.Bytes())
			}
		})
	}
}

func TestDrawingsEndpoints(t *testing.T) {
	stored := []domain.Drawing{{
		ID: "d1", Type: domain.DrawingHorizontal, Color: "#ff0000", LineWidth: 1, Price: 101,
	}}

	t.Run("list", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("Drawings", mock.Anything).Return(stored, nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/drawings", "")

		require.Equal(t, http.StatusOK, w.Code)
		var got []domain.Drawing
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "d1", got[0].ID)
	})

	t.Run("empty list encodes as array", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("Drawings", mock.Anything).Return([]domain.Drawing(nil), nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/drawings", "")
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("replace", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("ReplaceDrawings", mock.Anything, mock.MatchedBy(func(list []domain.Drawing) bool {
			return len(list) == 1 && list[0].ID == "d1"
		})).Return(stored, nil)
		router, _ := setupRouter(svc, nil)

		body := `[{"id":"d1","type":"horizontal","color":"#ff0000","lineWidth":1,"price":101}]`
		w := doRequest(router, http.MethodPut, "/api/v1/drawings", body)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("replace rejects invalid drawing", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("ReplaceDrawings", mock.Anything, mock.Anything).
			Return([]domain.Drawing(nil), errors.Join(ports.ErrInvalidDrawing, errors.New("bad color")))
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodPut, "/api/v1/drawings", `[{"id":"d1"}]`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response["error"], "bad color")
		assert.NotEmpty(t, response["request_id"])
	})

	t.Run("replace rejects malformed body", func(t *testing.T) {
		router, _ := setupRouter(&MockChartService{}, nil)

		w := doRequest(router, http.MethodPut, "/api/v1/drawings", `{"id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("clear", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("ClearDrawings", mock.Anything).Return(nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodDelete, "/api/v1/drawings", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestPositionsEndpoints(t *testing.T) {
	tp := 110.0
	pos := &domain.Position{ID: "p1", Symbol: "BTCUSDT", EntryPrice: 100, Direction: domain.Long, TakeProfit: &tp, Status: domain.StatusOpen}

	t.Run("open", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("OpenPosition", mock.Anything, domain.Long, 0.0).Return(pos, nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/positions", `{"direction":"long"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("open rejects bad direction", func(t *testing.T) {
		router, _ := setupRouter(&MockChartService{}, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/positions", `{"direction":"up"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("Positions", mock.Anything).Return([]domain.Position{*pos}, nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/positions", "")

		require.Equal(t, http.StatusOK, w.Code)
		var got []domain.Position
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, 110.0, *got[0].TakeProfit)
	})

	t.Run("close unknown", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("ClosePosition", mock.Anything, "nope").Return(ports.ErrNotFound)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/positions/nope/close", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update exit", func(t *testing.T) {
		svc := &MockChartService{}
		want := chart.PositionUpdate{PositionID: "p1", Kind: domain.ExitTakeProfit, Price: 110}
		svc.On("UpdateExit", mock.Anything, want).Return(pos, nil)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodPatch, "/api/v1/positions/p1/exits", `{"kind":"TP","price":110}`)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("update exit rejected", func(t *testing.T) {
		svc := &MockChartService{}
		svc.On("UpdateExit", mock.Anything, mock.Anything).Return(pos, ports.ErrExitRejected)
		router, _ := setupRouter(svc, nil)

		w := doRequest(router, http.MethodPatch, "/api/v1/positions/p1/exits", `{"kind":"SL","price":120}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("update exit bad kind", func(t *testing.T) {
		router, _ := setupRouter(&MockChartService{}, nil)

		w := doRequest(router, http.MethodPatch, "/api/v1/positions/p1/exits", `{"kind":"XX","price":120}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ports.ErrInvalidRequest, http.StatusBadRequest},
		{ports.ErrNotFound, http.StatusNotFound},
		{ports.ErrDuplicateEntry, http.StatusConflict},
		{ports.ErrExitRejected, http.StatusUnprocessableEntity},
		{ports.ErrFeedUnavailable, http.StatusServiceUnavailable},
		{ports.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServerErrorsAreGeneric(t *testing.T) {
	svc := &MockChartService{}
	svc.On("Positions", mock.Anything).Return([]domain.Position(nil), errors.New("disk on fire"))
	router, log := setupRouter(svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/positions", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")
	assert.Equal(t, 1, log.errors)
}
