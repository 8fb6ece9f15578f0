package term

import "unicode/utf8"

type parseState uint8

const (
	stateGround parseState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEsc
	stateDCS
	stateDCSEsc
	stateCharset
)

// parser is the escape sequence state machine. All of its state
// persists between Feed calls so that sequences and multi-byte runes
// split across reads resolve the same way as contiguous input.
type parser struct {
	state        parseState
	params       []int
	paramBuf     []byte
	intermediate byte
	private      byte

	utf8Buf  [utf8.UTFMax]byte
	utf8Len  int
	utf8Need int
}

func (p *parser) feed(t *Terminal, b byte) {
	if p.utf8Need > 0 {
		p.feedUTF8(t, b)
		return
	}
	switch p.state {
	case stateGround:
		p.feedGround(t, b)
	case stateEscape:
		p.feedEscape(t, b)
	case stateCSI:
		p.feedCSI(t, b)
	case stateOSC:
		if b == 0x07 { // BEL terminates
			p.state = stateGround
		} else if b == 0x1b {
			p.state = stateOSCEsc
		}
	case stateOSCEsc:
		// ESC \ (ST) terminates; anything else restarts a sequence.
		if b == '\\' {
			p.state = stateGround
		} else {
			p.state = stateEscape
			p.feedEscape(t, b)
		}
	case stateDCS:
		if b == 0x1b {
			p.state = stateDCSEsc
		}
	case stateDCSEsc:
		if b == '\\' {
			p.state = stateGround
		} else {
			p.state = stateDCS
		}
	case stateCharset:
		// Designator byte consumed; charsets are not modeled.
		p.state = stateGround
	}
}

func (p *parser) feedGround(t *Terminal, b byte) {
	switch {
	case b == 0x1b:
		p.state = stateEscape
	case b < 0x20:
		p.execControl(t, b)
	case b == 0x7f:
		// DEL is ignored.
	case b < 0x80:
		t.putRune(rune(b))
	default:
		p.startUTF8(t, b)
	}
}

func (p *parser) execControl(t *Terminal, b byte) {
	switch b {
	case '\n', 0x0b, 0x0c: // LF, VT, FF
		t.lineFeed()
	case '\r':
		t.carriageReturn()
	case '\b':
		t.backspace()
	case '\t':
		t.tab()
	case 0x07: // BEL
	}
}

func (p *parser) startUTF8(t *Terminal, b byte) {
	switch {
	case b&0xe0 == 0xc0:
		p.utf8Need = 2
	case b&0xf0 == 0xe0:
		p.utf8Need = 3
	case b&0xf8 == 0xf0:
		p.utf8Need = 4
	default:
		// Stray continuation or invalid lead byte.
		t.putRune(utf8.RuneError)
		return
	}
	p.utf8Buf[0] = b
	p.utf8Len = 1
}

func (p *parser) feedUTF8(t *Terminal, b byte) {
	if b&0xc0 != 0x80 {
		// Truncated rune; reprocess the byte from scratch.
		p.utf8Len = 0
		p.utf8Need = 0
		t.putRune(utf8.RuneError)
		p.feed(t, b)
		return
	}
	p.utf8Buf[p.utf8Len] = b
	p.utf8Len++
	if p.utf8Len < p.utf8Need {
		return
	}
	r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
	p.utf8Len = 0
	p.utf8Need = 0
	t.putRune(r)
}

func (p *parser) feedEscape(t *Terminal, b byte) {
	p.state = stateGround
	switch b {
	case '[':
		p.params = p.params[:0]
		p.paramBuf = p.paramBuf[:0]
		p.intermediate = 0
		p.private = 0
		p.state = stateCSI
	case ']':
		p.state = stateOSC
	case 'P':
		p.state = stateDCS
	case '(', ')', '*', '+', '#':
		p.state = stateCharset
	case '7':
		t.saveCursor()
	case '8':
		t.restoreCursor()
	case 'D': // IND
		t.lineFeed()
	case 'E': // NEL
		t.carriageReturn()
		t.lineFeed()
	case 'M': // RI
		t.reverseLineFeed()
	case 'H': // HTS
		t.tabStops[t.cursorX] = true
	case 'c': // RIS
		t.reset()
	case 0x1b:
		p.state = stateEscape
	default:
		// Unsupported escapes are consumed without effect.
	}
}

func (p *parser) feedCSI(t *Terminal, b byte) {
	switch {
	case b >= '0' && b <= '9':
		p.paramBuf = append(p.paramBuf, b)
	case b == ';':
		p.pushParam()
	case b == '?' || b == '>' || b == '<' || b == '=':
		p.private = b
	case b >= 0x20 && b <= 0x2f:
		p.intermediate = b
	case b >= 0x40 && b <= 0x7e:
		p.pushParam()
		p.executeCSI(t, b)
		p.state = stateGround
	case b == 0x1b:
		p.state = stateEscape
	case b < 0x20:
		// C0 controls execute inside a sequence without aborting it.
		p.execControl(t, b)
	default:
		// Malformed byte; abandon the sequence.
		p.state = stateGround
	}
}

func (p *parser) pushParam() {
	if len(p.paramBuf) == 0 {
		p.params = append(p.params, -1)
		return
	}
	n := 0
	for _, c := range p.paramBuf {
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			n = 1 << 20
			break
		}
	}
	p.params = append(p.params, n)
	p.paramBuf = p.paramBuf[:0]
}

// getParam returns the idx-th numeric parameter, or def when it is
// absent or empty.
func (p *parser) getParam(idx, def int) int {
	if idx >= len(p.params) || p.params[idx] < 0 {
		return def
	}
	return p.params[idx]
}

func (p *parser) executeCSI(t *Terminal, final byte) {
	switch final {
	case 'A':
		t.moveCursorRelative(-p.getParam(0, 1), 0)
	case 'B':
		t.moveCursorRelative(p.getParam(0, 1), 0)
	case 'C':
		t.moveCursorRelative(0, p.getParam(0, 1))
	case 'D':
		t.moveCursorRelative(0, -p.getParam(0, 1))
	case 'E':
		t.moveCursor(t.cursorY+p.getParam(0, 1), 0)
	case 'F':
		t.moveCursor(t.cursorY-p.getParam(0, 1), 0)
	case 'G', '`':
		t.moveCursor(t.cursorY, p.getParam(0, 1)-1)
	case 'H', 'f':
		t.moveCursor(p.getParam(0, 1)-1, p.getParam(1, 1)-1)
	case 'd':
		t.moveCursor(p.getParam(0, 1)-1, t.cursorX)
	case 'J':
		mode := p.getParam(0, 0)
		if mode == 3 {
			// No scrollback to clear; treat as a full erase.
			mode = 2
		}
		t.eraseDisplay(mode)
	case 'K':
		t.eraseLine(p.getParam(0, 0))
	case 'L':
		t.insertLines(p.getParam(0, 1))
	case 'M':
		t.deleteLines(p.getParam(0, 1))
	case '@':
		t.insertChars(p.getParam(0, 1))
	case 'P':
		t.deleteChars(p.getParam(0, 1))
	case 'X':
		t.eraseChars(p.getParam(0, 1))
	case 'S':
		t.scrollUp(p.getParam(0, 1))
	case 'T':
		t.scrollDown(p.getParam(0, 1))
	case 'g':
		switch p.getParam(0, 0) {
		case 0:
			delete(t.tabStops, t.cursorX)
		case 3:
			t.tabStops = make(map[int]bool)
		}
	case 'h':
		p.setMode(t, true)
	case 'l':
		p.setMode(t, false)
	case 'm':
		p.execSGR(t)
	case 'r':
		t.setScrollRegion(p.getParam(0, 1), p.getParam(1, t.rows))
	case 's':
		t.saveCursor()
	case 'u':
		t.restoreCursor()
	default:
		// Unknown finals are consumed so the stream stays in sync.
	}
}

func (p *parser) setMode(t *Terminal, on bool) {
	if p.private != '?' {
		return
	}
	for i := range p.params {
		switch p.getParam(i, 0) {
		case 25:
			t.cursorVisible = on
		default:
			// Alternate screen, mouse reporting and other private
			// modes are acknowledged but not modeled.
		}
	}
}

func (p *parser) execSGR(t *Terminal) {
	if len(p.params) == 0 {
		t.style = Style{}
		return
	}
	for i := 0; i < len(p.params); i++ {
		switch n := p.getParam(i, 0); {
		case n == 0:
			t.style = Style{}
		case n == 1:
			t.style.Bold = true
		case n == 4:
			t.style.Underline = true
		case n == 7:
			t.style.Reverse = true
		case n == 22:
			t.style.Bold = false
		case n == 24:
			t.style.Underline = false
		case n == 27:
			t.style.Reverse = false
		case n >= 30 && n <= 37:
			t.style.FG = Color{Type: ColorIndexed, Value: uint32(n - 30)}
		case n == 38:
			if c, skip, ok := p.extendedColor(i); ok {
				t.style.FG = c
				i += skip
			} else {
				return
			}
		case n == 39:
			t.style.FG = Color{}
		case n >= 40 && n <= 47:
			t.style.BG = Color{Type: ColorIndexed, Value: uint32(n - 40)}
		case n == 48:
			if c, skip, ok := p.extendedColor(i); ok {
				t.style.BG = c
				i += skip
			} else {
				return
			}
		case n == 49:
			t.style.BG = Color{}
		case n >= 90 && n <= 97:
			t.style.FG = Color{Type: ColorIndexed, Value: uint32(n - 90 + 8)}
		case n >= 100 && n <= 107:
			t.style.BG = Color{Type: ColorIndexed, Value: uint32(n - 100 + 8)}
		}
	}
}

// extendedColor parses the 38;5;n and 38;2;r;g;b forms starting at
// params[i]. It returns the color, the number of extra params
// consumed, and whether the form was valid.
func (p *parser) extendedColor(i int) (Color, int, bool) {
	switch p.getParam(i+1, -1) {
	case 5:
		n := p.getParam(i+2, 0)
		return Color{Type: ColorIndexed, Value: uint32(n & 0xff)}, 2, true
	case 2:
		r := uint32(p.getParam(i+2, 0) & 0xff)
		g := uint32(p.getParam(i+3, 0) & 0xff)
		b := uint32(p.getParam(i+4, 0) & 0xff)
		return Color{Type: ColorRGB, Value: r<<16 | g<<8 | b}, 4, true
	}
	return Color{}, 0, false
}

// reset restores the power-on state.
func (t *Terminal) reset() {
	for i := range t.grid {
		t.grid[i] = blankLine(t.cols)
	}
	t.cursorX = 0
	t.cursorY = 0
	t.savedX = 0
	t.savedY = 0
	t.scrollTop = 0
	t.scrollBottom = t.rows
	t.style = Style{}
	t.cursorVisible = true
	t.tabStops = defaultTabStops(t.cols)
}
