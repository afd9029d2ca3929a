package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// DrawingType is the discriminant of the Drawing union.
type DrawingType string

const (
	DrawingTrendline   DrawingType = "trendline"
	DrawingHorizontal  DrawingType = "horizontal"
	DrawingRectangle   DrawingType = "rectangle"
	DrawingArrow       DrawingType = "arrow"
	DrawingText        DrawingType = "text"
	DrawingPriceMarker DrawingType = "pricemarker"
)

// DrawingTypes lists every supported annotation primitive.
var DrawingTypes = []DrawingType{
	DrawingTrendline, DrawingHorizontal, DrawingRectangle,
	DrawingArrow, DrawingText, DrawingPriceMarker,
}

// Point is a chart-space coordinate: X is time in epoch seconds (may lie past the last
// candle), Y is price. Pixels are never stored.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Scope ties a drawing to the broadcaster session and instrument it was drawn on.
type Scope struct {
	ReferralCode string `json:"referralCode" validate:"required"`
	Symbol       string `json:"symbol" validate:"required"`
}

// Validate checks that both scope fields are set.
func (s Scope) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	return nil
}

// Drawing is a finalized annotation. Only the fields of its Type are meaningful; the record
// is never edited after creation, edits are delete and re-add.
type Drawing struct {
	ID   string      `json:"id" validate:"required"`
	Type DrawingType `json:"type" validate:"required,oneof=trendline horizontal rectangle arrow text pricemarker"`

	Scope `validate:"-"`

	Color     string    `json:"color" validate:"required,hexcolor"`
	LineWidth float64   `json:"lineWidth" validate:"gt=0"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// trendline, rectangle, arrow
	StartPoint  *Point `json:"startPoint,omitempty"`
	EndPoint    *Point `json:"endPoint,omitempty"`
	ExtendLeft  bool   `json:"extendLeft,omitempty"`
	ExtendRight bool   `json:"extendRight,omitempty"`

	// horizontal, pricemarker
	Price float64    `json:"price,omitempty"`
	Label string     `json:"label,omitempty"`
	Side  MarkerSide `json:"side,omitempty" validate:"omitempty,oneof=buy sell"`

	// rectangle
	FillColor   string  `json:"fillColor,omitempty" validate:"omitempty,hexcolor"`
	FillOpacity float64 `json:"fillOpacity,omitempty" validate:"gte=0,lte=1"`

	// arrow
	HeadSize float64 `json:"headSize,omitempty" validate:"gte=0"`

	// text
	Position        *Point  `json:"position,omitempty"`
	Text            string  `json:"text,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty" validate:"gte=0"`
	BackgroundColor string  `json:"backgroundColor,omitempty" validate:"omitempty,hexcolor"`
}

var validate = validator.New()

// ValidColor reports whether s is a hex color a drawing can carry.
func ValidColor(s string) bool {
	return validate.Var(s, "required,hexcolor") == nil
}

// Validate checks the common fields and the geometry required by the drawing's type.
func (d *Drawing) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("drawing %q: %w", d.ID, err)
	}

	switch d.Type {
	case DrawingTrendline, DrawingRectangle, DrawingArrow:
		if d.StartPoint == nil || d.EndPoint == nil {
			return fmt.Errorf("drawing %q: %s requires startPoint and endPoint", d.ID, d.Type)
		}
		if !d.StartPoint.finite() || !d.EndPoint.finite() {
			return fmt.Errorf("drawing %q: non-finite point", d.ID)
		}
	case DrawingHorizontal:
		if math.IsNaN(d.Price) || math.IsInf(d.Price, 0) {
			return fmt.Errorf("drawing %q: non-finite price", d.ID)
		}
	case DrawingPriceMarker:
		if math.IsNaN(d.Price) || math.IsInf(d.Price, 0) {
			return fmt.Errorf("drawing %q: non-finite price", d.ID)
		}
		if d.Side == "" {
			return fmt.Errorf("drawing %q: pricemarker requires side", d.ID)
		}
	case DrawingText:
		if d.Position == nil || !d.Position.finite() {
			return fmt.Errorf("drawing %q: text requires a finite position", d.ID)
		}
		if d.Text == "" || d.FontSize <= 0 {
			return fmt.Errorf("drawing %q: text requires text and fontSize", d.ID)
		}
	}
	return nil
}

// Clone returns a copy that shares no pointers with d.
func (d Drawing) Clone() Drawing {
	if d.StartPoint != nil {
		p := *d.StartPoint
		d.StartPoint = &p
	}
	if d.EndPoint != nil {
		p := *d.EndPoint
		d.EndPoint = &p
	}
	if d.Position != nil {
		p := *d.Position
		d.Position = &p
	}
	return d
}

// CloneDrawings deep-copies a drawing list.
func CloneDrawings(in []Drawing) []Drawing {
	out := make([]Drawing, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
