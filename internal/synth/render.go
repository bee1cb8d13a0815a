// Package synth produces labeled glyph images: it renders a letter with an OpenType font,
// optionally flips pixels at random, and records the result in the directory manifest.
package synth

import (
	"fmt"
	"image"
	"math/rand/v2"
	"os"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// inkThreshold is the coverage (out of 255) at which an antialiased pixel counts as ink.
const inkThreshold = 128

// LoadFace reads an OpenType or TrueType font file and returns a face of the given pixel size.
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	return ParseFace(data, size)
}

// ParseFace parses font data and returns a face of the given pixel size.
func ParseFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// Render draws letter on a white width×height page. The text box is pushed back inside the
// page when (x, y) would let it overflow. Cells use native polarity: 1 is paper, 0 is ink.
func Render(face font.Face, width, height, x, y int, letter string) (*bitmap.Grid, error) {
	grid, err := bitmap.NewGrid(width, height)
	if err != nil {
		return nil, err
	}
	metrics := face.Metrics()
	textW := font.MeasureString(face, letter).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	lx := max(0, min(x, width-textW))
	ly := max(0, min(y, height-textH))

	coverage := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  coverage,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(lx, ly+metrics.Ascent.Ceil()),
	}
	d.DrawString(letter)

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			if coverage.AlphaAt(px, py).A < inkThreshold {
				grid.Set(px, py, 1)
			}
		}
	}
	return grid, nil
}

// AddNoise flips every cell independently with probability level/100.
func AddNoise(g *bitmap.Grid, level int, rng *rand.Rand) {
	if level <= 0 {
		return
	}
	p := float64(level) / 100
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if rng.Float64() < p {
				g.Flip(x, y)
			}
		}
	}
}
