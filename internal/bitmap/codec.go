package bitmap

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/png"
	"io"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrImageNotFound indicates the image file does not exist.
	ErrImageNotFound = errors.New("bitmap: image not found")
	// ErrUnsupportedFormat indicates an unknown encoding or an image that is not two-level.
	ErrUnsupportedFormat = errors.New("bitmap: unsupported format")
)

// Polarity selects which of the two pixel levels becomes a 1 cell.
type Polarity int

const (
	// PolarityNative marks white pixels (the set bit of a one-bit image) as 1.
	PolarityNative Polarity = iota
	// PolarityInverted marks black pixels as 1.
	PolarityInverted
)

func (p Polarity) String() string {
	if p == PolarityInverted {
		return "inverted"
	}
	return "native"
}

// Load decodes the image at path into a grid.
func Load(path string, p Polarity) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	g, err := Decode(bufio.NewReader(f), p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode reads a PNG, GIF, BMP or TIFF image from r. Every pixel must be pure black or pure white.
func Decode(r io.Reader, p Polarity) (*Grid, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	return FromImage(img, p, format)
}

// FromImage converts img into a grid. format is only used in error messages.
func FromImage(img image.Image, p Polarity, format string) (*Grid, error) {
	b := img.Bounds()
	g, err := NewGrid(b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	white, black := uint8(1), uint8(0)
	if p == PolarityInverted {
		white, black = 0, 1
	}
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			gray := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			switch gray.Y {
			case 0xffff:
				g.cells[y*g.width+x] = white
			case 0:
				g.cells[y*g.width+x] = black
			default:
				return nil, fmt.Errorf("%w: %s pixel (%d,%d) has gray level %d, image is not two-level",
					ErrUnsupportedFormat, format, x, y, gray.Y)
			}
		}
	}
	return g, nil
}

var twoLevel = color.Palette{color.Black, color.White}

// ToImage renders the grid as a two-color paletted image using polarity p.
func ToImage(g *Grid, p Polarity) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, g.width, g.height), twoLevel)
	for i, v := range g.cells {
		white := v == 1
		if p == PolarityInverted {
			white = !white
		}
		if white {
			img.Pix[i] = 1
		}
	}
	return img
}

// Encode writes the grid to w as a two-level PNG.
func Encode(w io.Writer, g *Grid, p Polarity) error {
	return png.Encode(w, ToImage(g, p))
}

// Save writes the grid to path as a two-level PNG.
func Save(path string, g *Grid, p Polarity) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if err := Encode(f, g, p); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode image: %w", err)
	}
	return f.Close()
}
