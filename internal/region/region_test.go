package region

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func letterBox() []utils.Point {
	return []utils.Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 1.5}, {X: 1, Y: 1.5}}
}

func TestProject_LetterPage(t *testing.T) {
	r, ok := Project(1, letterBox(), 8.5, 11)
	require.True(t, ok)

	assert.Equal(t, 1, r.PageNumber)
	assert.InDelta(t, 11.76, r.XPct, 0.1)
	assert.InDelta(t, 9.09, r.YPct, 0.1)
	assert.InDelta(t, 11.76, r.WidthPct, 0.1)
	assert.InDelta(t, 4.55, r.HeightPct, 0.1)
	assert.True(t, r.InBounds())
	assert.False(t, r.Degenerate())
}

func TestProject_NotLocalizable(t *testing.T) {
	tests := []struct {
		name    string
		polygon []utils.Point
		w, h    float64
	}{
		{"too few points", letterBox()[:3], 8.5, 11},
		{"empty polygon", nil, 8.5, 11},
		{"unknown width", letterBox(), 0, 11},
		{"unknown height", letterBox(), 8.5, 0},
		{"negative size", letterBox(), -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Project(1, tt.polygon, tt.w, tt.h)
			assert.False(t, ok)
		})
	}
}

func TestProject_UnorderedPolygon(t *testing.T) {
	pts := []utils.Point{{X: 2, Y: 1.5}, {X: 1, Y: 1}, {X: 1, Y: 1.5}, {X: 2, Y: 1}, {X: 1.5, Y: 1.2}}
	r, ok := Project(2, pts, 8.5, 11)
	require.True(t, ok)
	assert.Equal(t, 2, r.PageNumber)
	assert.Equal(t, 1, r.PageIndex())
	assert.InDelta(t, 11.76, r.XPct, 0.1)
}

func TestProject_ToleratesOvershoot(t *testing.T) {
	pts := []utils.Point{{X: 8, Y: 10}, {X: 8.52, Y: 10}, {X: 8.52, Y: 11.02}, {X: 8, Y: 11.02}}
	r, ok := Project(1, pts, 8.5, 11)
	require.True(t, ok)
	assert.Greater(t, r.XPct+r.WidthPct, 100.0)
	assert.True(t, r.InBounds())
}

func TestPolygonFromFlat(t *testing.T) {
	pts := PolygonFromFlat([]float64{1, 1, 2, 1, 2, 1.5, 1, 1.5, 9})
	require.Len(t, pts, 4)
	assert.Equal(t, utils.Point{X: 2, Y: 1.5}, pts[2])
	assert.Empty(t, PolygonFromFlat(nil))
}

func TestRegionBoxAndRect(t *testing.T) {
	r := Region{PageNumber: 1, XPct: 10, YPct: 20, WidthPct: 30, HeightPct: 40}

	b := r.Box(200, 100)
	assert.InDelta(t, 20.0, b.MinX, 1e-9)
	assert.InDelta(t, 20.0, b.MinY, 1e-9)
	assert.InDelta(t, 80.0, b.MaxX, 1e-9)
	assert.InDelta(t, 60.0, b.MaxY, 1e-9)

	assert.Equal(t, image.Rect(20, 20, 80, 60), r.Rect(200, 100))

	edge := Region{PageNumber: 1, XPct: 95, YPct: 95, WidthPct: 10, HeightPct: 10}
	assert.Equal(t, image.Rect(190, 95, 200, 100), edge.Rect(200, 100))
}

func TestRegionDegenerate(t *testing.T) {
	assert.True(t, Region{WidthPct: 0, HeightPct: 3}.Degenerate())
	assert.True(t, Region{WidthPct: 3, HeightPct: 0}.Degenerate())
	assert.False(t, Region{WidthPct: 3, HeightPct: 3}.Degenerate())
}

func TestRegionString(t *testing.T) {
	r := Region{PageNumber: 2, XPct: 1, YPct: 2, WidthPct: 3, HeightPct: 4}
	assert.Equal(t, "page 2: x=1.00% y=2.00% w=3.00% h=4.00%", r.String())
}
