// Package term implements an incremental ANSI/VT100 terminal emulator.
// It consumes raw PTY output and maintains a fixed rows-by-cols screen
// buffer: a grid of styled cells plus cursor state, scroll region, and
// tab stops. Feeding the same bytes in one call or split across many
// calls produces the identical final screen.
package term

// ColorType discriminates how a Color value is interpreted.
type ColorType uint8

const (
	ColorDefault ColorType = iota
	ColorIndexed
	ColorRGB
)

// Color represents a terminal color.
type Color struct {
	Type  ColorType
	Value uint32 // Indexed: 0-255, RGB: 0xRRGGBB
}

// Style holds the attributes applied to newly written cells.
type Style struct {
	FG        Color
	BG        Color
	Bold      bool
	Underline bool
	Reverse   bool
}

// Cell is a single character cell of the screen grid.
type Cell struct {
	Rune  rune
	Style Style
	Width int // 1 normal, 2 wide, 0 continuation of a wide rune
}

// blankCell returns an empty cell with default style.
func blankCell() Cell {
	return Cell{Rune: ' ', Width: 1}
}

// blankLine creates a line of blank cells.
func blankLine(cols int) []Cell {
	line := make([]Cell, cols)
	for i := range line {
		line[i] = blankCell()
	}
	return line
}

// copyLine deep copies a line.
func copyLine(src []Cell) []Cell {
	dst := make([]Cell, len(src))
	copy(dst, src)
	return dst
}
