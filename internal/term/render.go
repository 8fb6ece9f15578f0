package term

import (
	"fmt"
	"strings"
)

// Display renders the grid as rows of plain text. Every row is exactly
// cols display columns wide, padded with spaces, so consumers can rely
// on a fixed rectangle.
func (t *Terminal) Display() []string {
	rows := make([]string, t.rows)
	var sb strings.Builder
	for i, line := range t.grid {
		sb.Reset()
		for _, cell := range line {
			if cell.Width == 0 {
				continue // covered by the preceding wide rune
			}
			sb.WriteRune(cell.Rune)
		}
		rows[i] = sb.String()
	}
	return rows
}

// Frame renders the whole screen as a single newline-joined string.
// Two frames are equal exactly when the visible text is equal, which
// makes Frame suitable for change detection.
func (t *Terminal) Frame() string {
	return strings.Join(t.Display(), "\n")
}

// RedrawSequence produces a byte sequence that repaints the current
// visible text on a fresh terminal of the same geometry: clear screen,
// home, every row, then the cursor position and visibility. Cell
// attributes are not replayed.
func (t *Terminal) RedrawSequence() []byte {
	var sb strings.Builder
	sb.WriteString("\x1b[2J\x1b[H")
	for i, row := range t.Display() {
		if i > 0 {
			sb.WriteString("\r\n")
		}
		sb.WriteString(strings.TrimRight(row, " "))
	}
	row, col := t.Cursor()
	fmt.Fprintf(&sb, "\x1b[%d;%dH", row+1, col+1)
	if t.cursorVisible {
		sb.WriteString("\x1b[?25h")
	} else {
		sb.WriteString("\x1b[?25l")
	}
	return []byte(sb.String())
}
