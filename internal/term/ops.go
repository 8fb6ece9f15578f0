package term

import "github.com/mattn/go-runewidth"

// putRune writes a printable rune at the cursor, wrapping to the next
// line (scrolling if needed) when it does not fit.
func (t *Terminal) putRune(r rune) {
	w := runewidth.RuneWidth(r)
	if w <= 0 {
		// Zero-width runes (combining marks) are dropped rather than
		// merged; the grid stores one rune per cell.
		return
	}
	if t.cursorX+w > t.cols {
		t.cursorX = 0
		t.lineFeed()
	}
	t.clearWideAt(t.cursorY, t.cursorX)
	t.grid[t.cursorY][t.cursorX] = Cell{Rune: r, Style: t.style, Width: w}
	if w == 2 && t.cursorX+1 < t.cols {
		t.grid[t.cursorY][t.cursorX+1] = Cell{Rune: 0, Style: t.style, Width: 0}
	}
	t.cursorX += w
}

// clearWideAt blanks a wide rune that the write at row, col would
// otherwise cut in half.
func (t *Terminal) clearWideAt(row, col int) {
	line := t.grid[row]
	if line[col].Width == 0 && col > 0 && line[col-1].Width == 2 {
		line[col-1] = blankCell()
	}
	if line[col].Width == 2 && col+1 < t.cols {
		line[col+1] = blankCell()
	}
}

func (t *Terminal) lineFeed() {
	if t.cursorY == t.scrollBottom-1 {
		t.scrollUp(1)
		return
	}
	if t.cursorY < t.rows-1 {
		t.cursorY++
	}
}

func (t *Terminal) reverseLineFeed() {
	if t.cursorY == t.scrollTop {
		t.scrollDown(1)
		return
	}
	if t.cursorY > 0 {
		t.cursorY--
	}
}

func (t *Terminal) carriageReturn() {
	t.cursorX = 0
}

func (t *Terminal) backspace() {
	if t.cursorX > 0 {
		t.cursorX--
	}
}

func (t *Terminal) tab() {
	for col := t.cursorX + 1; col < t.cols; col++ {
		if t.tabStops[col] {
			t.cursorX = col
			return
		}
	}
	t.cursorX = t.cols - 1
}

// scrollUp shifts the scroll region up by n lines, discarding the top
// lines and inserting blanks at the bottom.
func (t *Terminal) scrollUp(n int) {
	if n <= 0 {
		return
	}
	top, bot := t.scrollTop, t.scrollBottom
	if n > bot-top {
		n = bot - top
	}
	for row := top; row < bot-n; row++ {
		t.grid[row] = t.grid[row+n]
	}
	for row := bot - n; row < bot; row++ {
		t.grid[row] = blankLine(t.cols)
	}
}

// scrollDown shifts the scroll region down by n lines, inserting
// blanks at the top.
func (t *Terminal) scrollDown(n int) {
	if n <= 0 {
		return
	}
	top, bot := t.scrollTop, t.scrollBottom
	if n > bot-top {
		n = bot - top
	}
	for row := bot - 1; row >= top+n; row-- {
		t.grid[row] = t.grid[row-n]
	}
	for row := top; row < top+n; row++ {
		t.grid[row] = blankLine(t.cols)
	}
}

// moveCursor moves the cursor to an absolute position, clamped.
func (t *Terminal) moveCursor(row, col int) {
	t.cursorY = clamp(row, 0, t.rows-1)
	t.cursorX = clamp(col, 0, t.cols-1)
}

func (t *Terminal) moveCursorRelative(dy, dx int) {
	t.moveCursor(t.cursorY+dy, t.cursorX+dx)
}

func (t *Terminal) saveCursor() {
	t.savedX = t.cursorX
	t.savedY = t.cursorY
}

func (t *Terminal) restoreCursor() {
	t.cursorX = clamp(t.savedX, 0, t.cols-1)
	t.cursorY = clamp(t.savedY, 0, t.rows-1)
}

// eraseLine clears part of the cursor line. Mode 0 erases from the
// cursor to the end, 1 from the start through the cursor, 2 the whole
// line.
func (t *Terminal) eraseLine(mode int) {
	line := t.grid[t.cursorY]
	x := clamp(t.cursorX, 0, t.cols-1)
	switch mode {
	case 0:
		for col := x; col < t.cols; col++ {
			line[col] = blankCell()
		}
	case 1:
		for col := 0; col <= x; col++ {
			line[col] = blankCell()
		}
	case 2:
		t.grid[t.cursorY] = blankLine(t.cols)
	}
}

// eraseDisplay clears part of the screen. Mode 0 erases from the
// cursor to the end of the screen, 1 from the start through the
// cursor, 2 the entire screen.
func (t *Terminal) eraseDisplay(mode int) {
	switch mode {
	case 0:
		t.eraseLine(0)
		for row := t.cursorY + 1; row < t.rows; row++ {
			t.grid[row] = blankLine(t.cols)
		}
	case 1:
		for row := 0; row < t.cursorY; row++ {
			t.grid[row] = blankLine(t.cols)
		}
		t.eraseLine(1)
	case 2:
		for row := 0; row < t.rows; row++ {
			t.grid[row] = blankLine(t.cols)
		}
	}
}

// setScrollRegion takes 1-indexed inclusive bounds as they appear on
// the wire and stores them 0-indexed with an exclusive bottom. Invalid
// regions reset to the full screen.
func (t *Terminal) setScrollRegion(top, bottom int) {
	if top < 1 {
		top = 1
	}
	if bottom < 1 || bottom > t.rows {
		bottom = t.rows
	}
	if top >= bottom {
		t.scrollTop = 0
		t.scrollBottom = t.rows
	} else {
		t.scrollTop = top - 1
		t.scrollBottom = bottom
	}
	t.moveCursor(t.scrollTop, 0)
}

// insertLines inserts n blank lines at the cursor row, pushing lines
// below it down within the scroll region.
func (t *Terminal) insertLines(n int) {
	if t.cursorY < t.scrollTop || t.cursorY >= t.scrollBottom {
		return
	}
	if n > t.scrollBottom-t.cursorY {
		n = t.scrollBottom - t.cursorY
	}
	for row := t.scrollBottom - 1; row >= t.cursorY+n; row-- {
		t.grid[row] = t.grid[row-n]
	}
	for row := t.cursorY; row < t.cursorY+n; row++ {
		t.grid[row] = blankLine(t.cols)
	}
}

// deleteLines removes n lines at the cursor row, pulling lines below
// it up and inserting blanks at the bottom of the scroll region.
func (t *Terminal) deleteLines(n int) {
	if t.cursorY < t.scrollTop || t.cursorY >= t.scrollBottom {
		return
	}
	if n > t.scrollBottom-t.cursorY {
		n = t.scrollBottom - t.cursorY
	}
	for row := t.cursorY; row < t.scrollBottom-n; row++ {
		t.grid[row] = t.grid[row+n]
	}
	for row := t.scrollBottom - n; row < t.scrollBottom; row++ {
		t.grid[row] = blankLine(t.cols)
	}
}

// insertChars inserts n blank cells at the cursor, shifting the rest
// of the line right.
func (t *Terminal) insertChars(n int) {
	line := t.grid[t.cursorY]
	x := clamp(t.cursorX, 0, t.cols-1)
	if n > t.cols-x {
		n = t.cols - x
	}
	for col := t.cols - 1; col >= x+n; col-- {
		line[col] = line[col-n]
	}
	for col := x; col < x+n; col++ {
		line[col] = blankCell()
	}
}

// deleteChars removes n cells at the cursor, shifting the rest of the
// line left and filling with blanks.
func (t *Terminal) deleteChars(n int) {
	line := t.grid[t.cursorY]
	x := clamp(t.cursorX, 0, t.cols-1)
	if n > t.cols-x {
		n = t.cols - x
	}
	for col := x; col < t.cols-n; col++ {
		line[col] = line[col+n]
	}
	for col := t.cols - n; col < t.cols; col++ {
		line[col] = blankCell()
	}
}

// eraseChars blanks n cells starting at the cursor without shifting.
func (t *Terminal) eraseChars(n int) {
	line := t.grid[t.cursorY]
	x := clamp(t.cursorX, 0, t.cols-1)
	for col := x; col < x+n && col < t.cols; col++ {
		line[col] = blankCell()
	}
}
