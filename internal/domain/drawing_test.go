package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTrendline() Drawing {
	return Drawing{
		ID:         "d1",
		Type:       DrawingTrendline,
		Color:      "#2962ff",
		LineWidth:  2,
		StartPoint: &Point{X: 60, Y: 100},
		EndPoint:   &Point{X: 120, Y: 110},
	}
}

func TestDrawing_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Drawing)
		wantErr bool
	}{
		{name: "valid trendline", mutate: func(d *Drawing) {}},
		{name: "missing id", mutate: func(d *Drawing) { d.ID = "" }, wantErr: true},
		{name: "unknown type", mutate: func(d *Drawing) { d.Type = "circle" }, wantErr: true},
		{name: "bad color", mutate: func(d *Drawing) { d.Color = "blue" }, wantErr: true},
		{name: "zero width", mutate: func(d *Drawing) { d.LineWidth = 0 }, wantErr: true},
		{name: "missing end point", mutate: func(d *Drawing) { d.EndPoint = nil }, wantErr: true},
		{name: "nan point", mutate: func(d *Drawing) { d.StartPoint = &Point{X: math.NaN(), Y: 1} }, wantErr: true},
		{name: "opacity above one", mutate: func(d *Drawing) { d.FillOpacity = 1.5 }, wantErr: true},
		{
			name: "valid horizontal",
			mutate: func(d *Drawing) {
				d.Type, d.StartPoint, d.EndPoint, d.Price = DrawingHorizontal, nil, nil, 101.5
			},
		},
		{
			name: "pricemarker without side",
			mutate: func(d *Drawing) {
				d.Type, d.StartPoint, d.EndPoint, d.Price = DrawingPriceMarker, nil, nil, 99
			},
			wantErr: true,
		},
		{
			name: "valid text",
			mutate: func(d *Drawing) {
				d.Type, d.StartPoint, d.EndPoint = DrawingText, nil, nil
				d.Position, d.Text, d.FontSize = &Point{X: 60, Y: 100}, "breakout", 14
			},
		},
		{
			name: "empty text",
			mutate: func(d *Drawing) {
				d.Type, d.StartPoint, d.EndPoint = DrawingText, nil, nil
				d.Position, d.FontSize = &Point{X: 60, Y: 100}, 14
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validTrendline()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScope_Validate(t *testing.T) {
	assert.NoError(t, Scope{ReferralCode: "ref", Symbol: "BTCUSDT"}.Validate())
	assert.Error(t, Scope{Symbol: "BTCUSDT"}.Validate())
}

func TestDrawing_CloneSharesNoPointers(t *testing.T) {
	d := validTrendline()
	c := d.Clone()
	c.StartPoint.X = 999

	assert.Equal(t, 60.0, d.StartPoint.X)
}

func TestPosition_Exits(t *testing.T) {
	p := Position{Direction: Long, EntryPrice: 100, Status: StatusOpen}
	_, ok := p.Exit(ExitTakeProfit)
	assert.False(t, ok)

	p.SetExit(ExitTakeProfit, 110)
	c := p.Clone()
	c.SetExit(ExitTakeProfit, 120)
	*c.TakeProfit = 130

	tp, ok := p.Exit(ExitTakeProfit)
	assert.True(t, ok)
	assert.Equal(t, 110.0, tp)
	assert.True(t, p.IsOpen())
}

func TestValidColor(t *testing.T) {
	assert.True(t, ValidColor("#fff"))
	assert.True(t, ValidColor("#22c55e"))
	assert.False(t, ValidColor("red"))
	assert.False(t, ValidColor(""))
}
