package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartdesk/internal/broadcast"
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
	"chartdesk/internal/render"
)

const (
	defaultFrameInterval  = 33 * time.Millisecond
	defaultPersistTimeout = 5 * time.Second
	defaultHistoryLimit   = 500
	eventQueueSize        = 256
	streamStopTimeout     = 5 * time.Second
)

// Publisher receives everything a session pushes to its viewers.
type Publisher interface {
	PublishFrame(dl *render.DisplayList)
	PublishDrawings(drawings []domain.Drawing)
	PublishPositions(positions []domain.Position)
	PublishTextRequest(req chart.TextRequest)
}

// Config holds the settings of one broadcast session.
type Config struct {
	Scope           domain.Scope
	Interval        string // Exchange interval, e.g. "1m"
	IntervalSeconds int64
	HistoryLimit    int
	Layout          chart.Layout
	Limits          chart.ViewportLimits
	HitThreshold    float64
	FrameInterval   time.Duration
	PersistTimeout  time.Duration
}

// Session owns one chart and the single event loop that mutates it. Feed events, browser
// input, API calls and review results are all posted onto the loop as closures.
type Session struct {
	cfg       Config
	logger    ports.Logger
	feed      ports.MarketDataFeed
	drawings  ports.DrawingRepository
	book      *PositionBook
	publisher Publisher
	pipeline  *render.Pipeline

	chart     *chart.Chart
	events    chan func(*chart.Chart)
	persist   chan []domain.Drawing
	closed    chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	frame chart.Frame
	dirty bool
}

// NewSession wires a chart to its collaborators. Nothing runs until Start.
func NewSession(
	cfg Config,
	logger ports.Logger,
	feed ports.MarketDataFeed,
	drawings ports.DrawingRepository,
	book *PositionBook,
	publisher Publisher,
) (*Session, error) {
	if logger == nil || feed == nil || drawings == nil || book == nil || publisher == nil {
		return nil, fmt.Errorf("missing required dependencies for Session")
	}
	if err := cfg.Scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	if cfg.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("configuration IntervalSeconds must be positive")
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaultFrameInterval
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger,
		feed:      feed,
		drawings:  drawings,
		book:      book,
		publisher: publisher,
		pipeline:  render.NewPipeline(),
		events:    make(chan func(*chart.Chart), eventQueueSize),
		persist:   make(chan []domain.Drawing, 1),
		closed:    make(chan struct{}),
	}
	s.chart = chart.New(chart.Options{
		Layout:          cfg.Layout,
		Limits:          cfg.Limits,
		Scope:           cfg.Scope,
		IntervalSeconds: cfg.IntervalSeconds,
		Capacity:        cfg.HistoryLimit,
		HitThreshold:    cfg.HitThreshold,
		NewID:           uuid.NewString,
		Logger:          logger,
		Repaint: func(f chart.Frame) {
			s.frame, s.dirty = f, true
		},
		OnDrawingsChange: func(list []domain.Drawing) {
			s.publisher.PublishDrawings(list)
			s.queuePersist(list)
		},
		OnPositionChange: func(upd chart.PositionUpdate) {
			go s.reviewExit(upd)
		},
		OnTextRequest: s.publisher.PublishTextRequest,
	})
	return s, nil
}

// Scope returns the broadcaster/instrument the session serves.
func (s *Session) Scope() domain.Scope {
	return s.cfg.Scope
}

// Start hydrates the chart, subscribes to the feed and runs the event loop until ctx is
// canceled or the candle stream gives up.
func (s *Session) Start(ctx context.Context) error {
	defer s.closeOnce.Do(func() { close(s.closed) })
	sc := s.cfg.Scope
	fields := map[string]interface{}{"referralCode": sc.ReferralCode, "symbol": sc.Symbol, "interval": s.cfg.Interval}
	s.logger.Info(ctx, "Starting chart session...", fields)

	// 1. Hydrate drawings and positions
	stored, err := s.drawings.LoadDrawings(ctx, sc)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load drawings", fields)
		return fmt.Errorf("failed to load drawings: %w", err)
	}
	positions, err := s.book.List(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load open positions", fields)
		return fmt.Errorf("failed to load positions: %w", err)
	}

	// 2. Seed candle history
	candles, err := s.feed.GetCandles(ctx, sc.Symbol, s.cfg.Interval, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load candle history", fields)
		return fmt.Errorf("failed to load candle history: %w", err)
	}

	// The loop is not running yet, so the chart can be touched directly.
	s.chart.SetCandles(candles)
	s.chart.SetDrawings(stored)
	s.chart.SetPositions(positions)
	s.publisher.PublishDrawings(s.chart.Drawings())
	s.publisher.PublishPositions(positions)
	s.logger.Info(ctx, "Chart hydrated", map[string]interface{}{
		"candles":   len(candles),
		"drawings":  len(stored),
		"positions": len(positions),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.persistLoop()
	}()
	defer wg.Wait()
	defer close(s.persist)

	// 3. Subscribe to live data
	candleDone, candleStop, err := s.feed.StreamCandles(ctx, sc.Symbol, s.cfg.Interval, s.handleCandle, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start candle stream", fields)
		return fmt.Errorf("failed to start candle stream: %w", err)
	}
	defer s.stopStream(ctx, "candle", candleDone, candleStop)

	tickDone, tickStop, err := s.feed.StreamTicks(ctx, sc.Symbol, s.handleTick, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start tick stream", fields)
		return fmt.Errorf("failed to start tick stream: %w", err)
	}
	defer s.stopStream(ctx, "tick", tickDone, tickStop)
	defer s.closeOnce.Do(func() { close(s.closed) })

	// 4. Event loop
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	s.flush()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Chart session stopping...", fields)
			return nil
		case <-candleDone:
			err := fmt.Errorf("%w: candle stream stopped unexpectedly", ports.ErrFeedUnavailable)
			s.logger.Error(ctx, err, "Candle stream stopped", fields)
			return err
		case <-tickDone:
			// Candle snapshots still move the chart without ticks.
			s.logger.Warn(ctx, "Tick stream stopped, continuing on candle snapshots", fields)
			tickDone = nil
		case fn := <-s.events:
			fn(s.chart)
		case <-ticker.C:
			s.chart.Tick()
			s.flush()
		}
	}
}

func (s *Session) stopStream(ctx context.Context, name string, doneCh, stopCh chan struct{}) {
	select {
	case stopCh <- struct{}{}:
	case <-doneCh:
		return
	case <-time.After(streamStopTimeout):
		s.logger.Warn(ctx, "Failed to send stop signal to stream", map[string]interface{}{"stream": name})
		return
	}
	select {
	case <-doneCh:
	case <-time.After(streamStopTimeout):
		s.logger.Warn(ctx, "Timeout waiting for stream to shut down", map[string]interface{}{"stream": name})
	}
}

// flush publishes the latest frame if the chart repainted since the last one.
func (s *Session) flush() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.publisher.PublishFrame(render.Record(s.pipeline, s.frame))
}

func (s *Session) handleCandle(candle domain.Candle) {
	s.post(func(c *chart.Chart) { c.ApplyCandle(candle) })
}

func (s *Session) handleTick(tick domain.Tick) {
	s.post(func(c *chart.Chart) { c.ApplyTick(tick) })
}

func (s *Session) handleStreamError(err error) {
	s.logger.Warn(context.Background(), "Market data stream error reported", map[string]interface{}{"error": err.Error()})
}

// post queues fn without waiting for it. Events posted after the loop exits are dropped.
func (s *Session) post(fn func(*chart.Chart)) {
	select {
	case s.events <- fn:
	case <-s.closed:
	}
}

// Do runs fn on the event loop and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func(*chart.Chart)) error {
	done := make(chan struct{})
	task := func(c *chart.Chart) {
		fn(c)
		close(done)
	}
	select {
	case s.events <- task:
	case <-s.closed:
		return ports.ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ports.ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
}

// queuePersist hands the latest list to the persister, replacing one not yet written.
// Only the loop goroutine calls it.
func (s *Session) queuePersist(list []domain.Drawing) {
	select {
	case <-s.persist:
	default:
	}
	s.persist <- list
}

func (s *Session) persistLoop() {
	for list := range s.persist {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		if err := s.drawings.SaveDrawings(ctx, s.cfg.Scope, list); err != nil {
			s.logger.Error(ctx, err, "Failed to persist drawings", map[string]interface{}{"count": len(list)})
		}
		cancel()
	}
}

// Snapshot returns the frame the chart would paint now.
func (s *Session) Snapshot(ctx context.Context) (chart.Frame, error) {
	var f chart.Frame
	err := s.Do(ctx, func(c *chart.Chart) { f = c.Frame() })
	return f, err
}

// Drawings returns the finalized drawings.
func (s *Session) Drawings(ctx context.Context) ([]domain.Drawing, error) {
	var out []domain.Drawing
	err := s.Do(ctx, func(c *chart.Chart) { out = c.Drawings() })
	return out, err
}

// ReplaceDrawings live-replaces the drawing list. The whole list is rejected if any
// record is invalid.
func (s *Session) ReplaceDrawings(ctx context.Context, list []domain.Drawing) ([]domain.Drawing, error) {
	for i := range list {
		list[i].Scope = s.cfg.Scope
		if err := list[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: drawing %d: %w", ports.ErrInvalidDrawing, i, err)
		}
	}
	var out []domain.Drawing
	err := s.Do(ctx, func(c *chart.Chart) {
		c.SetDrawings(list)
		out = c.Drawings()
		s.publisher.PublishDrawings(out)
		s.queuePersist(out)
	})
	return out, err
}

// ClearDrawings removes every drawing.
func (s *Session) ClearDrawings(ctx context.Context) error {
	return s.Do(ctx, func(c *chart.Chart) { c.Clear() })
}

// Positions returns the open positions from the book.
func (s *Session) Positions(ctx context.Context) ([]domain.Position, error) {
	return s.book.List(ctx)
}

// OpenPosition records a new position. A non-positive entry uses the live price.
func (s *Session) OpenPosition(ctx context.Context, direction domain.Direction, entryPrice float64) (*domain.Position, error) {
	if entryPrice <= 0 {
		if err := s.Do(ctx, func(c *chart.Chart) { entryPrice = c.Frame().CurrentPrice }); err != nil {
			return nil, err
		}
	}
	pos, err := s.book.Open(ctx, direction, entryPrice)
	if err != nil {
		return nil, err
	}
	s.refreshPositions(ctx)
	return pos, nil
}

// ClosePosition closes a position and removes its lines from the chart.
func (s *Session) ClosePosition(ctx context.Context, id string) error {
	if err := s.book.Close(ctx, id); err != nil {
		return err
	}
	s.refreshPositions(ctx)
	return nil
}

// UpdateExit reviews a TP/SL proposal. Whatever the outcome, the chart is reset to the
// book's state, so a rejected drag snaps back.
func (s *Session) UpdateExit(ctx context.Context, upd chart.PositionUpdate) (*domain.Position, error) {
	pos, err := s.book.Review(ctx, upd)
	s.refreshPositions(ctx)
	return pos, err
}

func (s *Session) reviewExit(upd chart.PositionUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if _, err := s.UpdateExit(ctx, upd); err != nil {
		s.logger.Warn(ctx, "Exit update not applied", map[string]interface{}{"positionID": upd.PositionID, "error": err.Error()})
	}
}

func (s *Session) refreshPositions(ctx context.Context) {
	positions, err := s.book.List(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to refresh positions")
		return
	}
	s.post(func(c *chart.Chart) { c.SetPositions(positions) })
	s.publisher.PublishPositions(positions)
}

// HandleInput applies one broadcaster event.
func (s *Session) HandleInput(ctx context.Context, in broadcast.Input) error {
	if in.Type == broadcast.InputPositionOpen {
		_, err := s.OpenPosition(ctx, domain.Direction(in.Direction), in.Price)
		return err
	}
	return s.Do(ctx, func(c *chart.Chart) { applyInput(c, in) })
}

func applyInput(c *chart.Chart, in broadcast.Input) {
	px := chart.Pixel{X: in.X, Y: in.Y}
	switch in.Type {
	case broadcast.InputPointer:
		switch in.Action {
		case broadcast.PointerDown:
			c.PointerDown(px)
		case broadcast.PointerMove:
			c.PointerMove(px)
		case broadcast.PointerUp:
			c.PointerUp(px)
		case broadcast.PointerLeave:
			c.PointerLeave(px)
		case broadcast.PointerDoubleClick:
			c.DoubleClick(px)
		case broadcast.PointerWheel:
			c.Wheel(in.Delta)
		}
	case broadcast.InputTool:
		c.SetTool(chart.Tool(in.Tool))
	case broadcast.InputStyle:
		c.SetStyle(chart.Style{Color: in.Color, LineWidth: in.LineWidth})
	case broadcast.InputTextSubmit:
		c.SubmitText(in.Text)
	case broadcast.InputTextCancel:
		c.CancelText()
	case broadcast.InputDeleteSelected:
		c.DeleteSelected()
	case broadcast.InputClear:
		c.Clear()
	case broadcast.InputResize:
		c.Resize(in.Width, in.Height)
	case broadcast.InputSelect:
		c.Select(in.ID)
	}
}
