package term

// Terminal is the emulator: a screen grid plus the parser state needed
// to consume escape sequences incrementally. It is not safe for
// concurrent use; callers serialize access.
type Terminal struct {
	rows int
	cols int

	grid [][]Cell

	cursorX int
	cursorY int

	savedX int
	savedY int

	// scrollTop is inclusive, scrollBottom exclusive.
	scrollTop    int
	scrollBottom int

	style         Style
	cursorVisible bool
	tabStops      map[int]bool

	parser parser
}

// New creates a terminal with the given geometry.
func New(rows, cols int) *Terminal {
	t := &Terminal{
		rows:          rows,
		cols:          cols,
		scrollTop:     0,
		scrollBottom:  rows,
		cursorVisible: true,
		tabStops:      defaultTabStops(cols),
	}
	t.grid = make([][]Cell, rows)
	for i := range t.grid {
		t.grid[i] = blankLine(cols)
	}
	return t
}

func defaultTabStops(cols int) map[int]bool {
	stops := make(map[int]bool)
	for i := 8; i < cols; i += 8 {
		stops[i] = true
	}
	return stops
}

// Size returns the current geometry.
func (t *Terminal) Size() (rows, cols int) {
	return t.rows, t.cols
}

// Cursor returns the cursor position, clamped to the grid.
func (t *Terminal) Cursor() (row, col int) {
	row = clamp(t.cursorY, 0, t.rows-1)
	col = clamp(t.cursorX, 0, t.cols-1)
	return row, col
}

// CursorVisible reports whether the cursor is shown.
func (t *Terminal) CursorVisible() bool {
	return t.cursorVisible
}

// Cell returns a copy of the cell at row, col.
func (t *Terminal) Cell(row, col int) Cell {
	if row < 0 || row >= t.rows || col < 0 || col >= t.cols {
		return blankCell()
	}
	return t.grid[row][col]
}

// Feed consumes a slice of raw output bytes. Parser state is retained
// across calls, so sequences split at arbitrary byte boundaries are
// handled identically to unfragmented input.
func (t *Terminal) Feed(data []byte) {
	for _, b := range data {
		t.parser.feed(t, b)
	}
}

// Resize changes the geometry. Content is preserved where it fits:
// rows and columns beyond the new bounds are truncated, new cells are
// blank. The scroll region resets to the full screen and the cursor is
// clamped into bounds.
func (t *Terminal) Resize(rows, cols int) {
	if rows == t.rows && cols == t.cols {
		return
	}
	grid := make([][]Cell, rows)
	for i := range grid {
		grid[i] = blankLine(cols)
		if i < t.rows {
			n := copy(grid[i], t.grid[i])
			// A wide rune cut in half at the new edge leaves a
			// dangling continuation cell. Blank it.
			if n > 0 && grid[i][n-1].Width == 2 && n == cols {
				grid[i][n-1] = blankCell()
			}
		}
	}
	t.grid = grid
	t.rows = rows
	t.cols = cols
	t.scrollTop = 0
	t.scrollBottom = rows
	t.tabStops = defaultTabStops(cols)
	t.cursorX = clamp(t.cursorX, 0, cols-1)
	t.cursorY = clamp(t.cursorY, 0, rows-1)
	t.savedX = clamp(t.savedX, 0, cols-1)
	t.savedY = clamp(t.savedY, 0, rows-1)
}

// Snapshot returns a deep copy of the screen grid.
func (t *Terminal) Snapshot() [][]Cell {
	out := make([][]Cell, t.rows)
	for i, line := range t.grid {
		out[i] = copyLine(line)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
