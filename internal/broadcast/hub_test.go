package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/render"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type recordingHandler struct {
	inputs chan Input
}

func (r *recordingHandler) HandleInput(ctx context.Context, in Input) error {
	r.inputs <- in
	return nil
}

func newTestHub(t *testing.T) (*Hub, *recordingHandler, *httptest.Server) {
	t.Helper()
	hub := NewHub(domain.Scope{ReferralCode: "ref-1", Symbol: "BTCUSDT"}, &mockLogger{})
	handler := &recordingHandler{inputs: make(chan Input, 8)}
	hub.SetHandler(handler)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, ParseRole(r.URL.Query().Get("role")))
	}))
	t.Cleanup(srv.Close)
	return hub, handler, srv
}

func dial(t *testing.T, srv *httptest.Server, role Role) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=" + string(role)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &head))
	return head.Type, data
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_InitAndBroadcast(t *testing.T) {
	hub, _, srv := newTestHub(t)
	viewer := dial(t, srv, RoleViewer)

	typ, data := readType(t, viewer)
	require.Equal(t, TypeConnectionInit, typ)
	var init InitMessage
	require.NoError(t, json.Unmarshal(data, &init))
	assert.Equal(t, RoleViewer, init.Role)
	assert.Equal(t, "BTCUSDT", init.Scope.Symbol)
	waitClients(t, hub, 1)

	hub.PublishFrame(&render.DisplayList{Width: 400, Height: 300, Ops: []render.Op{{Op: "clear", Color: "#000000"}}})
	typ, data = readType(t, viewer)
	require.Equal(t, TypeFrame, typ)
	var frame FrameMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, 400.0, frame.Width)
	require.Len(t, frame.Ops, 1)

	hub.PublishDrawings(nil)
	typ, data = readType(t, viewer)
	require.Equal(t, TypeDrawings, typ)
	assert.Contains(t, string(data), `"drawings":[]`)
}

func TestHub_LateJoinerReceivesLatestState(t *testing.T) {
	hub, _, srv := newTestHub(t)
	hub.PublishDrawings([]domain.Drawing{{ID: "d1", Type: domain.DrawingHorizontal, Price: 1}})
	hub.PublishFrame(&render.DisplayList{Width: 10, Height: 10})

	viewer := dial(t, srv, RoleViewer)
	var types []string
	for i := 0; i < 3; i++ {
		typ, _ := readType(t, viewer)
		types = append(types, typ)
	}
	assert.Equal(t, []string{TypeConnectionInit, TypeDrawings, TypeFrame}, types)
}

func TestHub_OnlyBroadcasterInputIsApplied(t *testing.T) {
	hub, handler, srv := newTestHub(t)
	viewer := dial(t, srv, RoleViewer)
	broadcaster := dial(t, srv, RoleBroadcaster)
	readType(t, viewer)
	readType(t, broadcaster)
	waitClients(t, hub, 2)

	require.NoError(t, viewer.WriteJSON(Input{Type: InputClear}))
	require.NoError(t, broadcaster.WriteJSON(Input{Type: InputPointer, Action: PointerDown, X: 10, Y: 20}))
	require.NoError(t, broadcaster.WriteJSON(Input{Type: "bogus"}))
	require.NoError(t, broadcaster.WriteJSON(Input{Type: InputTool, Tool: "trendline"}))

	select {
	case in := <-handler.inputs:
		assert.Equal(t, InputPointer, in.Type)
		assert.Equal(t, 20.0, in.Y)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster input not delivered")
	}
	select {
	case in := <-handler.inputs:
		assert.Equal(t, InputTool, in.Type, "viewer and invalid input are dropped")
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster input not delivered")
	}
}

func TestHub_TextRequestGoesToBroadcasterOnly(t *testing.T) {
	hub, _, srv := newTestHub(t)
	viewer := dial(t, srv, RoleViewer)
	broadcaster := dial(t, srv, RoleBroadcaster)
	readType(t, viewer)
	readType(t, broadcaster)
	waitClients(t, hub, 2)

	hub.PublishTextRequest(chart.TextRequest{Pixel: chart.Pixel{X: 5, Y: 6}})
	hub.PublishPositions(nil)

	typ, _ := readType(t, broadcaster)
	assert.Equal(t, TypeTextRequest, typ)
	typ, _ = readType(t, viewer)
	assert.Equal(t, TypePositions, typ)
}

func TestHub_SingleBroadcaster(t *testing.T) {
	hub, _, srv := newTestHub(t)
	first := dial(t, srv, RoleBroadcaster)
	readType(t, first)
	waitClients(t, hub, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=broadcaster"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	first.Close()
	waitClients(t, hub, 0)
	second := dial(t, srv, RoleBroadcaster)
	typ, _ := readType(t, second)
	assert.Equal(t, TypeConnectionInit, typ)
}

func TestInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		wantErr bool
	}{
		{name: "pointer", in: Input{Type: InputPointer, Action: PointerMove}},
		{name: "pointer without action", in: Input{Type: InputPointer}, wantErr: true},
		{name: "unknown action", in: Input{Type: InputPointer, Action: "hover"}, wantErr: true},
		{name: "tool without name", in: Input{Type: InputTool}, wantErr: true},
		{name: "style", in: Input{Type: InputStyle, Color: "#ff0000", LineWidth: 3}},
		{name: "bad color", in: Input{Type: InputStyle, Color: "red"}, wantErr: true},
		{name: "open long", in: Input{Type: InputPositionOpen, Direction: "long"}},
		{name: "open without direction", in: Input{Type: InputPositionOpen}, wantErr: true},
		{name: "unknown type", in: Input{Type: "zoom"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleBroadcaster, ParseRole("broadcaster"))
	assert.Equal(t, RoleViewer, ParseRole("viewer"))
	assert.Equal(t, RoleViewer, ParseRole(""))
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, _, srv := newTestHub(t)
	viewer := dial(t, srv, RoleViewer)
	readType(t, viewer)
	waitClients(t, hub, 1)

	hub.Close()

	viewer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := viewer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	waitClients(t, hub, 0)
}
