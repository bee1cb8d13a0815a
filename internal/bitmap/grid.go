// Package bitmap decodes two-level glyph images into owned 0/1 grids and encodes them back.
package bitmap

import "fmt"

// Grid is a width×height buffer of 0/1 cells stored row-major:
// cell (x, y) lives at index y*width+x.
type Grid struct {
	width  int
	height int
	cells  []uint8
}

// NewGrid returns an all-zero grid.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bitmap: invalid grid size %dx%d", width, height)
	}
	return &Grid{width: width, height: height, cells: make([]uint8, width*height)}, nil
}

// FromRows builds a grid from rows of 0/1 values; rows[y][x] becomes cell (x, y).
// Every row must have the same length and every value must be 0 or 1.
func FromRows(rows [][]uint8) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("bitmap: grid must have at least one row and one column")
	}
	g, err := NewGrid(len(rows[0]), len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != g.width {
			return nil, fmt.Errorf("bitmap: row %d has %d cells, want %d", y, len(row), g.width)
		}
		for x, v := range row {
			if v > 1 {
				return nil, fmt.Errorf("bitmap: cell (%d,%d) = %d, want 0 or 1", x, y, v)
			}
			g.cells[y*g.width+x] = v
		}
	}
	return g, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Len returns width*height.
func (g *Grid) Len() int { return len(g.cells) }

// At returns cell (x, y).
func (g *Grid) At(x, y int) uint8 {
	return g.cells[y*g.width+x]
}

// Set stores v at cell (x, y). It panics unless v is 0 or 1, like an out-of-range coordinate.
func (g *Grid) Set(x, y int, v uint8) {
	if v > 1 {
		panic(fmt.Sprintf("bitmap: Set(%d, %d) value %d, want 0 or 1", x, y, v))
	}
	g.cells[y*g.width+x] = v
}

// Flip toggles cell (x, y).
func (g *Grid) Flip(x, y int) {
	g.cells[y*g.width+x] ^= 1
}

// Ones returns the number of cells equal to 1.
func (g *Grid) Ones() int {
	n := 0
	for _, v := range g.cells {
		n += int(v)
	}
	return n
}

// RowMajor returns a copy of the cells in row-major order.
func (g *Grid) RowMajor() []uint8 {
	out := make([]uint8, len(g.cells))
	copy(out, g.cells)
	return out
}

// Equal reports whether both grids have the same size and cells.
func (g *Grid) Equal(o *Grid) bool {
	if g.width != o.width || g.height != o.height {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}
