package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/domain"
)

func TestSession_SelectTool(t *testing.T) {
	var s Session
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, ToolSelect, s.Tool())

	s.SelectTool(ToolFor(domain.DrawingRectangle))
	assert.Equal(t, StateToolSelected, s.State())
	assert.Equal(t, Tool("rectangle"), s.Tool())

	s.SelectTool(Tool("lasso"))
	assert.Equal(t, StateIdle, s.State(), "unknown tools fall back to select")

	s.SelectTool(ToolFor(domain.DrawingTrendline))
	proj := testProjection(t, threeCandles())
	s.PointerDown(Pixel{X: 50, Y: 50}, proj)
	require.Equal(t, StateDragging, s.State())
	s.SelectTool(ToolSelect)
	assert.Equal(t, StateIdle, s.State())
	_, ok := s.Preview()
	assert.False(t, ok, "switching tools abandons the drag")
}

func TestSession_PointerDownWhileDraggingRestarts(t *testing.T) {
	proj := testProjection(t, threeCandles())
	var s Session
	s.SelectTool(ToolFor(domain.DrawingArrow))

	s.PointerDown(Pixel{X: 50, Y: 50}, proj)
	s.PointerMove(Pixel{X: 90, Y: 90})
	act := s.PointerDown(Pixel{X: 120, Y: 60}, proj)

	assert.Equal(t, ActionDragStarted, act.Kind)
	pv, ok := s.Preview()
	require.True(t, ok)
	assert.Equal(t, Pixel{X: 120, Y: 60}, pv.Start)
}

func TestSession_IdleIgnoresPointer(t *testing.T) {
	proj := testProjection(t, threeCandles())
	var s Session

	assert.Equal(t, ActionNone, s.PointerDown(Pixel{X: 50, Y: 50}, proj).Kind)
	assert.Equal(t, ActionNone, s.PointerMove(Pixel{X: 60, Y: 60}).Kind)
	assert.Equal(t, ActionNone, s.PointerUp(Pixel{X: 60, Y: 60}, proj).Kind)
}

func TestSession_LevelNeedsPriceScale(t *testing.T) {
	var s Session
	s.SelectTool(ToolFor(domain.DrawingHorizontal))

	act := s.PointerDown(Pixel{X: 50, Y: 50}, Projection{})
	assert.Equal(t, ActionNone, act.Kind)
	assert.Equal(t, StateToolSelected, s.State())
}
