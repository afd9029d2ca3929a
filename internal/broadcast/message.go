package broadcast

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/render"
)

// Role decides whether a connection may drive the chart.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// ParseRole maps the ws query parameter to a role. Anything unknown is a viewer.
func ParseRole(s string) Role {
	if Role(s) == RoleBroadcaster {
		return RoleBroadcaster
	}
	return RoleViewer
}

// Outbound message types.
const (
	TypeConnectionInit = "connection_init"
	TypeFrame          = "frame"
	TypeDrawings       = "drawings"
	TypePositions      = "positions"
	TypeTextRequest    = "text_request"
)

// Inbound message types, accepted from the broadcaster only.
const (
	InputPointer        = "pointer"
	InputTool           = "tool"
	InputStyle          = "style"
	InputTextSubmit     = "text_submit"
	InputTextCancel     = "text_cancel"
	InputDeleteSelected = "delete_selected"
	InputClear          = "clear"
	InputResize         = "resize"
	InputSelect         = "select"
	InputPositionOpen   = "position_open"
)

// Pointer actions carried by an InputPointer message.
const (
	PointerDown        = "down"
	PointerMove        = "move"
	PointerUp          = "up"
	PointerLeave       = "leave"
	PointerDoubleClick = "dblclick"
	PointerWheel       = "wheel"
)

// Input is one event sent by the broadcaster's browser.
type Input struct {
	Type      string  `json:"type" validate:"required,oneof=pointer tool style text_submit text_cancel delete_selected clear resize select position_open"`
	Action    string  `json:"action,omitempty" validate:"omitempty,oneof=down move up leave dblclick wheel"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Delta     float64 `json:"delta,omitempty"`
	Tool      string  `json:"tool,omitempty" validate:"required_if=Type tool"`
	Color     string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	LineWidth float64 `json:"lineWidth,omitempty" validate:"gte=0,lte=20"`
	Text      string  `json:"text,omitempty" validate:"max=500"`
	Width     float64 `json:"width,omitempty" validate:"gte=0"`
	Height    float64 `json:"height,omitempty" validate:"gte=0"`
	ID        string  `json:"id,omitempty"`
	Direction string  `json:"direction,omitempty" validate:"omitempty,oneof=long short"`
	Price     float64 `json:"price,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// Validate checks the message shape. Geometry is left to the chart.
func (in *Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	switch {
	case in.Type == InputPointer && in.Action == "":
		return fmt.Errorf("pointer message without action")
	case in.Type == InputPositionOpen && in.Direction == "":
		return fmt.Errorf("position_open message without direction")
	}
	return nil
}

// InitMessage greets a new connection.
type InitMessage struct {
	Type      string       `json:"type"`
	Status    string       `json:"status"`
	Role      Role         `json:"role"`
	Scope     domain.Scope `json:"scope"`
	Timestamp int64        `json:"timestamp"`
}

// FrameMessage carries one recorded frame.
type FrameMessage struct {
	Type   string      `json:"type"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Ops    []render.Op `json:"ops"`
}

// DrawingsMessage carries the full drawing list after every change.
type DrawingsMessage struct {
	Type     string           `json:"type"`
	Drawings []domain.Drawing `json:"drawings"`
}

// PositionsMessage carries the owner's open positions.
type PositionsMessage struct {
	Type      string            `json:"type"`
	Positions []domain.Position `json:"positions"`
}

// TextRequestMessage asks the broadcaster's browser to prompt for label text.
type TextRequestMessage struct {
	Type  string       `json:"type"`
	X     float64      `json:"x"`
	Y     float64      `json:"y"`
	Point domain.Point `json:"point"`
}

func newInitMessage(role Role, scope domain.Scope) InitMessage {
	return InitMessage{
		Type:      TypeConnectionInit,
		Status:    "connected",
		Role:      role,
		Scope:     scope,
		Timestamp: time.Now().UnixMilli(),
	}
}

func newTextRequestMessage(req chart.TextRequest) TextRequestMessage {
	return TextRequestMessage{Type: TypeTextRequest, X: req.Pixel.X, Y: req.Pixel.Y, Point: req.Point}
}
