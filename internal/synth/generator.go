package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/manifest"
	"go.uber.org/zap"
	"golang.org/x/image/font"
)

// ErrInvalidParams indicates generation parameters that cannot produce an image.
var ErrInvalidParams = errors.New("synth: invalid parameters")

// Params describes one glyph image to generate.
type Params struct {
	Width      int
	Height     int
	X          int
	Y          int
	FontFile   string
	Letter     string
	NoiseLevel int // percent, 0-100
	OutputDir  string
}

// Validate checks sizes, noise range, and that the letter is usable as a filename.
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidParams, p.Width, p.Height)
	}
	if p.NoiseLevel < 0 || p.NoiseLevel > 100 {
		return fmt.Errorf("%w: noise level %d not in 0-100", ErrInvalidParams, p.NoiseLevel)
	}
	if p.Letter == "" {
		return fmt.Errorf("%w: empty letter", ErrInvalidParams)
	}
	if strings.ContainsAny(p.Letter, `/\:`+"\n\r") || p.Letter == "." || p.Letter == ".." {
		return fmt.Errorf("%w: letter %q cannot be used as a filename", ErrInvalidParams, p.Letter)
	}
	if p.OutputDir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidParams)
	}
	return nil
}

// Filename returns the image name written for p.
func (p Params) Filename() string { return p.Letter + ".png" }

// Label returns the manifest label written for p.
func (p Params) Label() string {
	return fmt.Sprintf("letter %s, noise level %d%%", p.Letter, p.NoiseLevel)
}

// Generator renders glyph images into output directories.
type Generator struct {
	rng          *rand.Rand
	manifestName string
	logger       *zap.Logger // optional
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes noise reproducible.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithManifestName sets the manifest filename appended to.
func WithManifestName(name string) GeneratorOption {
	return func(g *Generator) {
		if name != "" {
			g.manifestName = name
		}
	}
}

// WithLogger sets a logger for generated images.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator. Without WithSeed, noise is seeded from the clock.
func NewGenerator(opts ...GeneratorOption) *Generator {
	seed := uint64(time.Now().UnixNano())
	g := &Generator{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		manifestName: manifest.DefaultName,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate loads p.FontFile at size min(width, height) and writes the glyph. It returns the image path.
func (g *Generator) Generate(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	face, err := LoadFace(p.FontFile, float64(min(p.Width, p.Height)))
	if err != nil {
		return "", err
	}
	defer face.Close()
	return g.GenerateWithFace(face, p)
}

// GenerateWithFace renders p with an already loaded face, writes <letter>.png into p.OutputDir
// and appends its manifest line. p.FontFile is ignored.
func (g *Generator) GenerateWithFace(face font.Face, p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	grid, err := Render(face, p.Width, p.Height, p.X, p.Y, p.Letter)
	if err != nil {
		return "", err
	}
	AddNoise(grid, p.NoiseLevel, g.rng)

	path := filepath.Join(p.OutputDir, p.Filename())
	if err := bitmap.Save(path, grid, bitmap.PolarityNative); err != nil {
		return "", err
	}
	if err := manifest.Append(p.OutputDir, g.manifestName, manifest.Entry{Filename: p.Filename(), Label: p.Label()}); err != nil {
		return "", err
	}
	if g.logger != nil {
		g.logger.Info("glyph generated",
			zap.String("path", path),
			zap.String("letter", p.Letter),
			zap.Int("noise_level", p.NoiseLevel))
	}
	return path, nil
}
