package chart

import (
	"context"
	"strings"
	"time"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
)

// wheelZoomStep is the zoom factor applied per wheel notch.
const wheelZoomStep = 1.1

// TextRequest asks the host for label text before a text drawing can be created.
type TextRequest struct {
	Point domain.Point `json:"point"`
	Pixel Pixel        `json:"pixel"`
}

// Options configures a Chart. Callbacks are invoked synchronously from the mutating call
// and must not call back into the chart.
type Options struct {
	Layout          Layout
	Limits          ViewportLimits
	Defaults        DrawingDefaults
	Scope           domain.Scope
	IntervalSeconds int64
	Capacity        int
	HitThreshold    float64
	Style           Style
	ReadOnly        bool

	NewID   func() string
	Now     func() time.Time
	Measure TextMeasurer
	Logger  ports.Logger

	Repaint          func(Frame)
	OnDrawingsChange func([]domain.Drawing)
	OnPositionChange func(PositionUpdate)
	OnTextRequest    func(TextRequest)
}

// Chart is one mounted chart: candle store, viewport, drawings, position overlay and the
// drawing session, repainted in full after every state change. A Chart is not safe for
// concurrent use; the host serializes all calls.
type Chart struct {
	opts     Options
	layout   Layout
	store    *CandleStore
	viewport *Viewport
	session  Session
	overlay  Overlay
	hits     HitTester
	factory  Factory
	style    Style

	drawings     []domain.Drawing
	selectedID   string
	currentPrice float64
	pendingText  *pendingText

	panning   bool
	panAnchor float64
}

type pendingText struct {
	req   TextRequest
	style Style
}

// New creates a chart with an empty candle store.
func New(opts Options) *Chart {
	if opts.Layout.PricePadRatio <= 0 {
		opts.Layout.PricePadRatio = 0.1
	}
	if opts.Defaults == (DrawingDefaults{}) {
		opts.Defaults = DefaultDrawingDefaults()
	}
	if opts.Measure == nil {
		opts.Measure = ApproxTextWidth
	}
	if !domain.ValidColor(opts.Style.Color) {
		opts.Style.Color = "#3b82f6"
	}
	if opts.Style.LineWidth <= 0 {
		opts.Style.LineWidth = 2
	}
	return &Chart{
		opts:     opts,
		layout:   opts.Layout,
		store:    NewCandleStore(opts.IntervalSeconds, opts.Capacity),
		viewport: NewViewport(opts.Limits),
		hits:     HitTester{Threshold: opts.HitThreshold, Measure: opts.Measure},
		factory:  Factory{Scope: opts.Scope, Defaults: opts.Defaults, NewID: opts.NewID, Now: opts.Now},
		style:    opts.Style,
	}
}

func (c *Chart) debug(msg string, fields map[string]interface{}) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debug(context.Background(), msg, fields)
	}
}

// Scope returns the broadcaster/instrument the chart's drawings belong to.
func (c *Chart) Scope() domain.Scope {
	return c.opts.Scope
}

// SetCandles replaces the candle history.
func (c *Chart) SetCandles(candles []domain.Candle) {
	kept := c.store.Replace(candles)
	if kept != len(candles) {
		c.debug("Dropped out-of-order candles", map[string]interface{}{"received": len(candles), "kept": kept})
	}
	if last, ok := c.store.Last(); ok {
		c.currentPrice = last.Close
	}
	c.viewport.Clamp(c.store.Len())
	c.Repaint()
}

// ApplyCandle merges a snapshot bar from the feed.
func (c *Chart) ApplyCandle(candle domain.Candle) bool {
	if !c.store.ApplyCandle(candle) {
		c.debug("Dropped stale candle", map[string]interface{}{"time": candle.Time})
		return false
	}
	if last, _ := c.store.Last(); last.Time == candle.Time {
		c.currentPrice = candle.Close
	}
	c.viewport.Clamp(c.store.Len())
	c.Repaint()
	return true
}

// ApplyTick folds a trade into the candle store and moves the live price.
func (c *Chart) ApplyTick(tick domain.Tick) bool {
	if !c.store.ApplyTick(tick) {
		c.debug("Dropped out-of-order tick", map[string]interface{}{"time": tick.Time})
		return false
	}
	c.currentPrice = tick.Price
	c.viewport.Clamp(c.store.Len())
	c.Repaint()
	return true
}

// SetCurrentPrice moves the live price line without touching candles.
func (c *Chart) SetCurrentPrice(price float64) {
	c.currentPrice = price
	c.Repaint()
}

// Candles returns a copy of the candle history.
func (c *Chart) Candles() []domain.Candle {
	return c.store.Candles()
}

// SetDrawings hydrates or live-replaces the drawing list. Invalid records are skipped.
// The persistence callback is not invoked.
func (c *Chart) SetDrawings(drawings []domain.Drawing) {
	c.drawings = c.drawings[:0]
	for i := range drawings {
		if err := drawings[i].Validate(); err != nil {
			c.debug("Skipped invalid drawing", map[string]interface{}{"error": err.Error()})
			continue
		}
		c.drawings = append(c.drawings, drawings[i].Clone())
	}
	if _, ok := c.Selected(); !ok {
		c.selectedID = ""
	}
	c.Repaint()
}

// Drawings returns a copy of the finalized drawings in creation order.
func (c *Chart) Drawings() []domain.Drawing {
	return domain.CloneDrawings(c.drawings)
}

// SetPositions replaces the working copies of the owner's open positions.
func (c *Chart) SetPositions(positions []domain.Position) {
	c.overlay.SetPositions(positions)
	c.Repaint()
}

// Positions returns the working copies, including an in-flight dragged level.
func (c *Chart) Positions() []domain.Position {
	return c.overlay.Positions()
}

// SetTool switches the toolbar tool. Read-only charts stay in select mode.
func (c *Chart) SetTool(t Tool) {
	if c.opts.ReadOnly {
		t = ToolSelect
	}
	c.session.SelectTool(t)
	c.pendingText = nil
	c.panning = false
	if c.session.DrawingMode() {
		c.selectedID = ""
	}
	c.Repaint()
}

// Tool returns the active tool.
func (c *Chart) Tool() Tool {
	return c.session.Tool()
}

// State returns the drawing session state.
func (c *Chart) State() SessionState {
	return c.session.State()
}

// SetStyle sets the color and line width of subsequent drawings. Empty fields keep their
// current value. A color that is not hex is refused and the whole style left unchanged.
func (c *Chart) SetStyle(s Style) bool {
	if s.Color != "" && !domain.ValidColor(s.Color) {
		c.debug("Rejected style color", map[string]interface{}{"color": s.Color})
		return false
	}
	if s.Color != "" {
		c.style.Color = s.Color
	}
	if s.LineWidth > 0 {
		c.style.LineWidth = s.LineWidth
	}
	return true
}

// Style returns the current toolbar style.
func (c *Chart) Style() Style {
	return c.style
}

// Resize changes the canvas size. It only repaints when the size actually changed.
func (c *Chart) Resize(width, height float64) bool {
	if width <= 0 || height <= 0 || (width == c.layout.Width && height == c.layout.Height) {
		return false
	}
	c.layout.Width, c.layout.Height = width, height
	c.Repaint()
	return true
}

// Size returns the canvas size.
func (c *Chart) Size() (width, height float64) {
	return c.layout.Width, c.layout.Height
}

// Projection returns the conversions valid for the current state.
func (c *Chart) Projection() Projection {
	params := ComputeParams(c.layout, c.store, c.viewport, c.overlay.positions, c.currentPrice)
	return Projection{Params: params, Timeline: NewTimeline(c.store.Times())}
}

// PointerDown routes a press to the drawing session in drawing mode, otherwise to the
// TP/SL lines, then selection, then panning.
func (c *Chart) PointerDown(px Pixel) {
	proj := c.Projection()

	if c.session.DrawingMode() {
		c.pendingText = nil
		act := c.session.PointerDown(px, proj)
		switch act.Kind {
		case ActionPlaceLevel:
			c.add(c.factory.Level(act.Type, c.style, act.Price))
		case ActionRequestText:
			c.pendingText = &pendingText{req: TextRequest{Point: act.End, Pixel: act.Pixel}, style: c.style}
			if c.opts.OnTextRequest != nil {
				c.opts.OnTextRequest(c.pendingText.req)
			}
		case ActionDragStarted:
			c.Repaint()
		}
		return
	}

	if !c.opts.ReadOnly && c.overlay.Begin(px, proj.Params, c.hits.threshold()) {
		c.Repaint()
		return
	}

	if i, ok := c.hits.Hit(px, proj, c.drawings); ok {
		c.selectedID = c.drawings[i].ID
	} else {
		c.selectedID = ""
		c.panning, c.panAnchor = true, px.X
	}
	c.Repaint()
}

// PointerMove updates whichever drag is active.
func (c *Chart) PointerMove(px Pixel) {
	switch {
	case c.session.State() == StateDragging:
		c.session.PointerMove(px)
		c.Repaint()
	case c.overlay.Dragging():
		if c.overlay.Move(px) {
			c.Repaint()
		}
	case c.panning:
		if c.viewport.Pan(px.X-c.panAnchor, c.store.Len()) {
			c.panAnchor = px.X
			c.Repaint()
		}
	}
}

// PointerUp finalizes whichever drag is active.
func (c *Chart) PointerUp(px Pixel) {
	c.release(px, false)
}

// PointerLeave behaves like PointerUp.
func (c *Chart) PointerLeave(px Pixel) {
	c.release(px, true)
}

func (c *Chart) release(px Pixel, leave bool) {
	c.panning = false

	if c.session.State() == StateDragging {
		proj := c.Projection()
		var act Action
		if leave {
			act = c.session.PointerLeave(px, proj)
		} else {
			act = c.session.PointerUp(px, proj)
		}
		switch act.Kind {
		case ActionFinalize:
			c.add(c.factory.Segment(act.Type, c.style, act.Start, act.End))
		case ActionDiscard:
			c.debug("Discarded drag", map[string]interface{}{"type": string(act.Type), "x": px.X, "y": px.Y})
			c.Repaint()
		}
		return
	}

	if c.overlay.Dragging() {
		c.overlay.Move(px)
		upd, ok := c.overlay.End()
		c.Repaint()
		if ok && c.opts.OnPositionChange != nil {
			c.opts.OnPositionChange(upd)
		}
	}
}

// DoubleClick fills an empty TP or SL slot of the latest position with the clicked price.
// It is ignored in drawing mode.
func (c *Chart) DoubleClick(px Pixel) (PositionUpdate, bool) {
	if c.opts.ReadOnly || c.session.DrawingMode() {
		return PositionUpdate{}, false
	}
	params := c.Projection().Params
	if !params.PriceScaleValid() {
		return PositionUpdate{}, false
	}
	upd, ok := c.overlay.Suggest(params.YToPrice(px.Y))
	if !ok {
		return PositionUpdate{}, false
	}
	c.Repaint()
	if c.opts.OnPositionChange != nil {
		c.opts.OnPositionChange(upd)
	}
	return upd, true
}

// Wheel zooms in for negative deltas and out for positive ones.
func (c *Chart) Wheel(deltaY float64) bool {
	switch {
	case deltaY < 0:
		return c.ZoomBy(wheelZoomStep)
	case deltaY > 0:
		return c.ZoomBy(1 / wheelZoomStep)
	}
	return false
}

// Pan shifts the visible window by deltaPixels.
func (c *Chart) Pan(deltaPixels float64) bool {
	if !c.viewport.Pan(deltaPixels, c.store.Len()) {
		return false
	}
	c.Repaint()
	return true
}

// ZoomBy multiplies the zoom factor.
func (c *Chart) ZoomBy(factor float64) bool {
	if !c.viewport.ZoomBy(factor) {
		return false
	}
	c.Repaint()
	return true
}

// Viewport returns the current pan offset and zoom.
func (c *Chart) Viewport() (offset int, zoom float64) {
	return c.viewport.Offset, c.viewport.Zoom
}

// PendingText returns the outstanding text request, if any.
func (c *Chart) PendingText() (TextRequest, bool) {
	if c.pendingText == nil {
		return TextRequest{}, false
	}
	return c.pendingText.req, true
}

// SubmitText completes the outstanding text request. Blank text aborts it.
func (c *Chart) SubmitText(text string) (domain.Drawing, bool) {
	p := c.pendingText
	c.pendingText = nil
	text = strings.TrimSpace(text)
	if p == nil || text == "" {
		return domain.Drawing{}, false
	}
	d := c.factory.Text(p.style, p.req.Point, text)
	c.add(d)
	return d.Clone(), true
}

// CancelText aborts the outstanding text request.
func (c *Chart) CancelText() {
	c.pendingText = nil
}

// Selected returns the selected drawing.
func (c *Chart) Selected() (domain.Drawing, bool) {
	if c.selectedID == "" {
		return domain.Drawing{}, false
	}
	for i := range c.drawings {
		if c.drawings[i].ID == c.selectedID {
			return c.drawings[i].Clone(), true
		}
	}
	return domain.Drawing{}, false
}

// Select marks the drawing with id as selected. An empty or unknown id clears the selection.
func (c *Chart) Select(id string) {
	c.selectedID = id
	if _, ok := c.Selected(); !ok {
		c.selectedID = ""
	}
	c.Repaint()
}

// DeleteSelected removes the selected drawing.
func (c *Chart) DeleteSelected() bool {
	if c.opts.ReadOnly || c.selectedID == "" {
		return false
	}
	for i := range c.drawings {
		if c.drawings[i].ID == c.selectedID {
			c.drawings = append(c.drawings[:i], c.drawings[i+1:]...)
			c.selectedID = ""
			c.changed()
			return true
		}
	}
	c.selectedID = ""
	return false
}

// Clear removes every drawing.
func (c *Chart) Clear() bool {
	if c.opts.ReadOnly {
		return false
	}
	c.drawings = c.drawings[:0]
	c.selectedID = ""
	c.changed()
	return true
}

func (c *Chart) add(d domain.Drawing) {
	if err := d.Validate(); err != nil {
		c.debug("Rejected drawing", map[string]interface{}{"error": err.Error()})
		c.Repaint()
		return
	}
	c.drawings = append(c.drawings, d)
	c.changed()
}

func (c *Chart) changed() {
	c.Repaint()
	if c.opts.OnDrawingsChange != nil {
		c.opts.OnDrawingsChange(domain.CloneDrawings(c.drawings))
	}
}

// Frame snapshots everything a renderer needs.
func (c *Chart) Frame() Frame {
	proj := c.Projection()
	p := proj.Params
	f := Frame{
		Width:        c.layout.Width,
		Height:       c.layout.Height,
		Projection:   proj,
		Candles:      c.store.Slice(p.StartIndex, p.StartIndex+p.VisibleCandles),
		Positions:    c.overlay.Positions(),
		CurrentPrice: c.currentPrice,
		Drawings:     domain.CloneDrawings(c.drawings),
		SelectedID:   c.selectedID,
		Measure:      c.opts.Measure,
	}
	if pv, ok := c.session.Preview(); ok {
		f.Preview = &DragPreview{Preview: pv, Style: c.style}
	}
	return f
}

// Repaint hands a fresh frame to the repaint callback.
func (c *Chart) Repaint() {
	if c.opts.Repaint != nil {
		c.opts.Repaint(c.Frame())
	}
}

// Tick repaints while a drag is in progress so the preview stays fluid between pointer
// events. Reports whether it repainted.
func (c *Chart) Tick() bool {
	if c.session.State() != StateDragging && !c.overlay.Dragging() {
		return false
	}
	c.Repaint()
	return true
}
