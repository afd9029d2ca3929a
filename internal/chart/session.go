package chart

import "chartdesk/internal/domain"

// Tool is the toolbar selection: ToolSelect or one of the drawing types.
type Tool string

// ToolSelect is the pointer/selection tool.
const ToolSelect Tool = "select"

// ToolFor returns the tool that creates drawings of the given type.
func ToolFor(kind domain.DrawingType) Tool {
	return Tool(kind)
}

// Kind returns the drawing type created by the tool, if it is a drawing tool.
func (t Tool) Kind() (domain.DrawingType, bool) {
	for _, k := range domain.DrawingTypes {
		if string(t) == string(k) {
			return k, true
		}
	}
	return "", false
}

// isDragKind reports whether the type is drawn by press-drag-release rather than a click.
func isDragKind(kind domain.DrawingType) bool {
	switch kind {
	case domain.DrawingTrendline, domain.DrawingRectangle, domain.DrawingArrow:
		return true
	}
	return false
}

// SessionState is the drawing session's state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateToolSelected
	StateDragging
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateToolSelected:
		return "tool_selected"
	case StateDragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// ActionKind tells the chart what a pointer event produced.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPlaceLevel
	ActionRequestText
	ActionDragStarted
	ActionDragMoved
	ActionFinalize
	ActionDiscard
)

// Action is the result of feeding one pointer event into the session.
type Action struct {
	Kind  ActionKind
	Type  domain.DrawingType
	Price float64      // ActionPlaceLevel
	Start domain.Point // ActionFinalize
	End   domain.Point // ActionFinalize; ActionRequestText anchor
	Pixel Pixel        // pointer position of the event
}

// Preview is the in-progress drag in raw pixel space.
type Preview struct {
	Type    domain.DrawingType
	Start   Pixel
	Current Pixel
}

// Session is the drawing state machine. It is a long-lived, synchronously updated object
// owned by one chart; the renderer only reads it through Preview.
type Session struct {
	state        SessionState
	kind         domain.DrawingType
	startPixel   Pixel
	currentPixel Pixel
	startPoint   domain.Point
	startOK      bool
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Tool returns the active tool.
func (s *Session) Tool() Tool {
	if s.state == StateIdle {
		return ToolSelect
	}
	return ToolFor(s.kind)
}

// DrawingMode reports whether a drawing tool is active.
func (s *Session) DrawingMode() bool {
	return s.state != StateIdle
}

// SelectTool switches tools. Any drag in progress is abandoned. Unknown tools fall back
// to select.
func (s *Session) SelectTool(t Tool) {
	*s = Session{}
	if kind, ok := t.Kind(); ok {
		s.state = StateToolSelected
		s.kind = kind
	}
}

// PointerDown starts a drag for drag kinds or places single-click kinds immediately.
func (s *Session) PointerDown(px Pixel, proj Projection) Action {
	if s.state == StateDragging {
		// A release was never delivered; never let the stale drag survive.
		s.resetDrag()
	}
	if s.state != StateToolSelected {
		return Action{Kind: ActionNone, Pixel: px}
	}

	switch {
	case s.kind == domain.DrawingHorizontal || s.kind == domain.DrawingPriceMarker:
		if !proj.Params.PriceScaleValid() {
			return Action{Kind: ActionNone, Pixel: px}
		}
		return Action{Kind: ActionPlaceLevel, Type: s.kind, Price: proj.Params.YToPrice(px.Y), Pixel: px}

	case s.kind == domain.DrawingText:
		pt, ok := proj.PixelToChartPoint(px)
		if !ok {
			return Action{Kind: ActionNone, Pixel: px}
		}
		return Action{Kind: ActionRequestText, Type: s.kind, End: pt, Pixel: px}

	case isDragKind(s.kind):
		s.state = StateDragging
		s.startPixel, s.currentPixel = px, px
		s.startPoint, s.startOK = proj.PixelToChartPoint(px)
		return Action{Kind: ActionDragStarted, Type: s.kind, Pixel: px}
	}
	return Action{Kind: ActionNone, Pixel: px}
}

// PointerMove tracks the drag in pixel space only; the end point is resolved at release.
func (s *Session) PointerMove(px Pixel) Action {
	if s.state != StateDragging {
		return Action{Kind: ActionNone, Pixel: px}
	}
	s.currentPixel = px
	return Action{Kind: ActionDragMoved, Type: s.kind, Pixel: px}
}

// PointerUp finalizes the drag into chart space, or discards it when the release is
// degenerate or unresolvable. The tool stays selected either way.
func (s *Session) PointerUp(px Pixel, proj Projection) Action {
	if s.state != StateDragging {
		return Action{Kind: ActionNone, Pixel: px}
	}
	kind, start, startOK, startPx := s.kind, s.startPoint, s.startOK, s.startPixel
	s.resetDrag()

	if px == startPx || !startOK {
		return Action{Kind: ActionDiscard, Type: kind, Pixel: px}
	}
	end, ok := proj.PixelToChartPoint(px)
	if !ok {
		return Action{Kind: ActionDiscard, Type: kind, Pixel: px}
	}
	return Action{Kind: ActionFinalize, Type: kind, Start: start, End: end, Pixel: px}
}

// PointerLeave behaves exactly like PointerUp so a drag never outlives the canvas.
func (s *Session) PointerLeave(px Pixel, proj Projection) Action {
	return s.PointerUp(px, proj)
}

// Preview returns the in-progress drag, if any.
func (s *Session) Preview() (Preview, bool) {
	if s.state != StateDragging {
		return Preview{}, false
	}
	return Preview{Type: s.kind, Start: s.startPixel, Current: s.currentPixel}, true
}

func (s *Session) resetDrag() {
	s.state = StateToolSelected
	s.startPixel, s.currentPixel = Pixel{}, Pixel{}
	s.startPoint, s.startOK = domain.Point{}, false
}
