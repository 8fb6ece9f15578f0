package term

import (
	"strings"
	"testing"
)

func feedString(t *Terminal, s string) {
	t.Feed([]byte(s))
}

func cellRune(t *Terminal, row, col int) rune {
	return t.Cell(row, col).Rune
}

func TestPlainText(t *testing.T) {
	term := New(24, 80)
	feedString(term, "hello")

	if got := strings.TrimRight(term.Display()[0], " "); got != "hello" {
		t.Errorf("row 0 = %q, want %q", got, "hello")
	}
	row, col := term.Cursor()
	if row != 0 || col != 5 {
		t.Errorf("cursor = (%d, %d), want (0, 5)", row, col)
	}
}

func TestCursorPositioning(t *testing.T) {
	term := New(24, 80)
	feedString(term, "\x1b[3;5HX")

	if got := cellRune(term, 2, 4); got != 'X' {
		t.Errorf("cell (2, 4) = %q, want 'X'", got)
	}
	if got := term.Display()[2]; !strings.HasPrefix(got, "    X") {
		t.Errorf("row 2 = %q, want %q prefix", got, "    X")
	}
}

func TestAutoWrap(t *testing.T) {
	term := New(24, 10)
	feedString(term, strings.Repeat("a", 10)+"b")

	if got := cellRune(term, 1, 0); got != 'b' {
		t.Errorf("cell (1, 0) = %q, want 'b'", got)
	}
	row, _ := term.Cursor()
	if row != 1 {
		t.Errorf("cursor row = %d, want 1", row)
	}
	if got := strings.TrimRight(term.Display()[0], " "); got != strings.Repeat("a", 10) {
		t.Errorf("row 0 = %q", got)
	}
}

func TestWrapAtBottomScrolls(t *testing.T) {
	term := New(3, 4)
	feedString(term, "\x1b[3;1H"+strings.Repeat("x", 4)+"y")

	rows := term.Display()
	if got := strings.TrimRight(rows[1], " "); got != "xxxx" {
		t.Errorf("row 1 = %q, want %q", got, "xxxx")
	}
	if got := strings.TrimRight(rows[2], " "); got != "y" {
		t.Errorf("row 2 = %q, want %q", got, "y")
	}
}

// Feeding the same bytes whole or split at every possible boundary,
// including inside escape sequences and multi-byte runes, must produce
// the same screen.
func TestFragmentationIndependence(t *testing.T) {
	input := "abc\x1b[2;3Hdef\x1b[31mred\x1b[0m\r\n日本語\x1b[K\x1b]0;title\x07ok"

	whole := New(24, 80)
	feedString(whole, input)
	want := whole.Frame()
	wantRow, wantCol := whole.Cursor()

	for cut := 1; cut < len(input); cut++ {
		split := New(24, 80)
		split.Feed([]byte(input[:cut]))
		split.Feed([]byte(input[cut:]))
		if got := split.Frame(); got != want {
			t.Fatalf("split at %d: frame mismatch\ngot:  %q\nwant: %q", cut, got, want)
		}
		row, col := split.Cursor()
		if row != wantRow || col != wantCol {
			t.Fatalf("split at %d: cursor = (%d, %d), want (%d, %d)", cut, row, col, wantRow, wantCol)
		}
	}
}

func TestFragmentationBytewise(t *testing.T) {
	input := "one\r\ntwo\x1b[1;1H\x1b[38;5;42mX\x1b[m"

	whole := New(4, 10)
	feedString(whole, input)

	bytewise := New(4, 10)
	for i := 0; i < len(input); i++ {
		bytewise.Feed([]byte{input[i]})
	}
	if got, want := bytewise.Frame(), whole.Frame(); got != want {
		t.Errorf("bytewise frame = %q, want %q", got, want)
	}
	if got, want := bytewise.Cell(0, 0).Style, whole.Cell(0, 0).Style; got != want {
		t.Errorf("bytewise style = %+v, want %+v", got, want)
	}
}

func TestEraseLine(t *testing.T) {
	term := New(24, 80)
	feedString(term, "abcdef\x1b[1;4H\x1b[K")
	if got := strings.TrimRight(term.Display()[0], " "); got != "abc" {
		t.Errorf("after EL0: row = %q, want %q", got, "abc")
	}

	term = New(24, 80)
	feedString(term, "abcdef\x1b[1;3H\x1b[1K")
	if got := term.Display()[0][:6]; got != "   def" {
		t.Errorf("after EL1: row = %q, want %q", got, "   def")
	}

	term = New(24, 80)
	feedString(term, "abcdef\x1b[2K")
	if got := strings.TrimRight(term.Display()[0], " "); got != "" {
		t.Errorf("after EL2: row = %q, want empty", got)
	}
}

func TestEraseDisplay(t *testing.T) {
	term := New(4, 10)
	feedString(term, "aaa\r\nbbb\r\nccc\r\nddd")
	feedString(term, "\x1b[2;2H\x1b[J")

	rows := term.Display()
	if got := strings.TrimRight(rows[0], " "); got != "aaa" {
		t.Errorf("row 0 = %q, want %q", got, "aaa")
	}
	if got := strings.TrimRight(rows[1], " "); got != "b" {
		t.Errorf("row 1 = %q, want %q", got, "b")
	}
	for i := 2; i < 4; i++ {
		if got := strings.TrimRight(rows[i], " "); got != "" {
			t.Errorf("row %d = %q, want empty", i, got)
		}
	}

	feedString(term, "\x1b[2J")
	if got := strings.TrimRight(term.Frame(), " \n"); got != "" {
		t.Errorf("after ED2: frame not empty: %q", got)
	}
}

func TestScrollRegion(t *testing.T) {
	term := New(5, 10)
	feedString(term, "top\x1b[2;4r")
	// Cursor homes to the region top. Fill the region and force a
	// scroll inside it.
	feedString(term, "1\r\n2\r\n3\r\n4")

	rows := term.Display()
	if got := strings.TrimRight(rows[0], " "); got != "top" {
		t.Errorf("row 0 = %q, want %q (outside region must not move)", got, "top")
	}
	if got := strings.TrimRight(rows[1], " "); got != "2" {
		t.Errorf("row 1 = %q, want %q", got, "2")
	}
	if got := strings.TrimRight(rows[3], " "); got != "4" {
		t.Errorf("row 3 = %q, want %q", got, "4")
	}
	if got := strings.TrimRight(rows[4], " "); got != "" {
		t.Errorf("row 4 = %q, want empty (below region)", got)
	}
}

func TestSGRAttributes(t *testing.T) {
	term := New(24, 80)
	feedString(term, "\x1b[1;4;31mA\x1b[0mB")

	a := term.Cell(0, 0)
	if !a.Style.Bold || !a.Style.Underline {
		t.Errorf("A style = %+v, want bold underline", a.Style)
	}
	if a.Style.FG != (Color{Type: ColorIndexed, Value: 1}) {
		t.Errorf("A fg = %+v, want red", a.Style.FG)
	}
	b := term.Cell(0, 1)
	if b.Style != (Style{}) {
		t.Errorf("B style = %+v, want default", b.Style)
	}
}

func TestCursorVisibilityMode(t *testing.T) {
	term := New(24, 80)
	if !term.CursorVisible() {
		t.Fatal("cursor should start visible")
	}
	feedString(term, "\x1b[?25l")
	if term.CursorVisible() {
		t.Error("cursor still visible after DECTCEM reset")
	}
	feedString(term, "\x1b[?25h")
	if !term.CursorVisible() {
		t.Error("cursor hidden after DECTCEM set")
	}
}

func TestUnknownSequencesConsumed(t *testing.T) {
	term := New(24, 80)
	// Unknown CSI final, OSC title, DCS blob, unknown escape. None of
	// their payload bytes may leak onto the screen.
	feedString(term, "a\x1b[12zb\x1b]0;my title\x07c\x1bPq+payload\x1b\\d\x1b#8"+"e")

	if got := strings.TrimRight(term.Display()[0], " "); got != "abcde" {
		t.Errorf("row 0 = %q, want %q", got, "abcde")
	}
}

func TestTabStops(t *testing.T) {
	term := New(24, 80)
	feedString(term, "\ta")
	if got := cellRune(term, 0, 8); got != 'a' {
		t.Errorf("cell (0, 8) = %q, want 'a'", got)
	}
	feedString(term, "\tb")
	if got := cellRune(term, 0, 16); got != 'b' {
		t.Errorf("cell (0, 16) = %q, want 'b'", got)
	}
}

func TestWideRunes(t *testing.T) {
	term := New(24, 10)
	feedString(term, "日本")

	if got := cellRune(term, 0, 0); got != '日' {
		t.Errorf("cell (0, 0) = %q, want '日'", got)
	}
	if got := term.Cell(0, 1).Width; got != 0 {
		t.Errorf("cell (0, 1) width = %d, want 0 (continuation)", got)
	}
	if got := cellRune(term, 0, 2); got != '本' {
		t.Errorf("cell (0, 2) = %q, want '本'", got)
	}
	_, col := term.Cursor()
	if col != 4 {
		t.Errorf("cursor col = %d, want 4", col)
	}
}

func TestInsertDeleteLines(t *testing.T) {
	term := New(4, 10)
	feedString(term, "a\r\nb\r\nc\r\nd\x1b[2;1H\x1b[L")
	rows := term.Display()
	if got := strings.TrimRight(rows[1], " "); got != "" {
		t.Errorf("after IL: row 1 = %q, want empty", got)
	}
	if got := strings.TrimRight(rows[2], " "); got != "b" {
		t.Errorf("after IL: row 2 = %q, want %q", got, "b")
	}

	feedString(term, "\x1b[2;1H\x1b[M")
	rows = term.Display()
	if got := strings.TrimRight(rows[1], " "); got != "b" {
		t.Errorf("after DL: row 1 = %q, want %q", got, "b")
	}
}

func TestResizePreservesContent(t *testing.T) {
	term := New(4, 10)
	feedString(term, "hello\r\nworld")

	term.Resize(2, 5)
	rows := term.Display()
	if got := rows[0]; got != "hello" {
		t.Errorf("row 0 = %q, want %q", got, "hello")
	}
	if got := rows[1]; got != "world" {
		t.Errorf("row 1 = %q, want %q", got, "world")
	}

	term.Resize(4, 10)
	if got := strings.TrimRight(term.Display()[0], " "); got != "hello" {
		t.Errorf("after grow: row 0 = %q, want %q", got, "hello")
	}
	if got := strings.TrimRight(term.Display()[2], " "); got != "" {
		t.Errorf("after grow: row 2 = %q, want empty", got)
	}
}

func TestFullReset(t *testing.T) {
	term := New(4, 10)
	feedString(term, "\x1b[31mjunk\x1b[2;3r\x1bc")

	if got := strings.TrimRight(term.Frame(), " \n"); got != "" {
		t.Errorf("after RIS: frame = %q, want empty", got)
	}
	row, col := term.Cursor()
	if row != 0 || col != 0 {
		t.Errorf("after RIS: cursor = (%d, %d), want (0, 0)", row, col)
	}
	feedString(term, "x")
	if got := term.Cell(0, 0).Style; got != (Style{}) {
		t.Errorf("after RIS: style = %+v, want default", got)
	}
}

func TestSaveRestoreCursor(t *testing.T) {
	term := New(24, 80)
	feedString(term, "\x1b[5;10H\x1b7\x1b[1;1Hmoved\x1b8X")
	if got := cellRune(term, 4, 9); got != 'X' {
		t.Errorf("cell (4, 9) = %q, want 'X'", got)
	}
}

func TestRedrawSequence(t *testing.T) {
	term := New(4, 10)
	feedString(term, "ab\r\ncd\x1b[?25l")

	replay := New(4, 10)
	replay.Feed(term.RedrawSequence())

	if got, want := replay.Frame(), term.Frame(); got != want {
		t.Errorf("replayed frame = %q, want %q", got, want)
	}
	gr, gc := replay.Cursor()
	wr, wc := term.Cursor()
	if gr != wr || gc != wc {
		t.Errorf("replayed cursor = (%d, %d), want (%d, %d)", gr, gc, wr, wc)
	}
	if replay.CursorVisible() {
		t.Error("replayed cursor should be hidden")
	}
}
