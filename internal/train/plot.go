package train

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteLossPlot renders the total and per-head epoch losses to a PNG (or any
// extension gonum/plot supports) at path.
func WriteLossPlot(path, title string, epochs []EpochStats) error {
	if len(epochs) == 0 {
		return fmt.Errorf("no epochs to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"

	series := []struct {
		name string
		get  func(EpochStats) float64
	}{
		{"total", func(e EpochStats) float64 { return e.Loss }},
		{"bbox", func(e EpochStats) float64 { return e.BBox }},
		{"person", func(e EpochStats) float64 { return e.Person }},
		{"trash", func(e EpochStats) float64 { return e.Trash }},
		{"disposal", func(e EpochStats) float64 { return e.Disposal }},
	}
	colors := generateColors(len(series))
	for i, s := range series {
		pts := make(plotter.XYs, len(epochs))
		for j, e := range epochs {
			pts[j] = plotter.XY{X: float64(e.Epoch), Y: s.get(e)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create %s line: %w", s.name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		if i == 0 {
			line.Width = vg.Points(2)
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save loss plot: %w", err)
	}
	return nil
}

// generateColors spreads n hues evenly around the colour wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2
	var rf, gf, bf float64
	switch {
	case h < 1.0/6:
		rf, gf, bf = c, x, 0
	case h < 2.0/6:
		rf, gf, bf = x, c, 0
	case h < 3.0/6:
		rf, gf, bf = 0, c, x
	case h < 4.0/6:
		rf, gf, bf = 0, x, c
	case h < 5.0/6:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return uint8((rf + m) * 255), uint8((gf + m) * 255), uint8((bf + m) * 255)
}
