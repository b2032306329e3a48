package game

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"
)

// A terminal cell stands for a block of stage pixels, so motion keeps the
// same pace whatever the terminal size.
const (
	CellWidth  = 10
	CellHeight = 20
)

const lineGlyph = "·"

// cell is one terminal cell. width is 0 for the trailing half of a wide
// glyph.
type cell struct {
	glyph string
	color string
	width int
}

var blank = cell{glyph: " ", width: 1}

// Stage is a character canvas addressed in pixels. Drawing outside it is
// ignored.
type Stage struct {
	cols, rows int
	cells      []cell
}

func NewStage(cols, rows int) *Stage {
	s := &Stage{}
	s.Resize(cols, rows)
	return s
}

// Resize sets the size in cells. Contents are cleared when the size changes.
func (s *Stage) Resize(cols, rows int) {
	cols, rows = max(cols, 0), max(rows, 0)
	if cols == s.cols && rows == s.rows {
		return
	}
	s.cols, s.rows = cols, rows
	s.cells = make([]cell, cols*rows)
	s.Clear()
}

func (s *Stage) Clear() {
	for i := range s.cells {
		s.cells[i] = blank
	}
}

// Width returns the stage width in pixels.
func (s *Stage) Width() float64 {
	return float64(s.cols * CellWidth)
}

// Height returns the stage height in pixels.
func (s *Stage) Height() float64 {
	return float64(s.rows * CellHeight)
}

// FillText draws text centred horizontally on (x, y).
func (s *Stage) FillText(text string, x, y float64, color string) {
	col := int(math.Floor(x/CellWidth)) - lipgloss.Width(text)/2
	row := int(math.Floor(y / CellHeight))

	g := uniseg.NewGraphemes(text)
	for g.Next() {
		glyph := g.Str()
		w := lipgloss.Width(glyph)
		if w == 0 {
			continue
		}
		s.put(col, row, glyph, w, color)
		col += w
	}
}

// Line draws a dotted line between two pixel positions, leaving drawn glyphs
// in place.
func (s *Stage) Line(x0, y0, x1, y1 float64, color string) {
	c0, r0 := int(math.Floor(x0/CellWidth)), int(math.Floor(y0/CellHeight))
	c1, r1 := int(math.Floor(x1/CellWidth)), int(math.Floor(y1/CellHeight))

	dc, dr := abs(c1-c0), -abs(r1-r0)
	sc, sr := sign(c1-c0), sign(r1-r0)
	e := dc + dr

	for {
		if c, ok := s.at(c0, r0); ok && (c.glyph == " " || c.glyph == lineGlyph) {
			s.put(c0, r0, lineGlyph, 1, color)
		}
		if c0 == c1 && r0 == r1 {
			return
		}
		e2 := 2 * e
		if e2 >= dr {
			e += dr
			c0 += sc
		}
		if e2 <= dc {
			e += dc
			r0 += sr
		}
	}
}

func (s *Stage) at(col, row int) (cell, bool) {
	if col < 0 || row < 0 || col >= s.cols || row >= s.rows {
		return cell{}, false
	}
	return s.cells[row*s.cols+col], true
}

func (s *Stage) put(col, row int, glyph string, width int, color string) {
	if row < 0 || row >= s.rows || col < 0 || col+width > s.cols {
		return
	}
	for c := col; c < col+width; c++ {
		s.erase(c, row)
	}

	i := row*s.cols + col
	s.cells[i] = cell{glyph: glyph, color: color, width: width}
	for k := 1; k < width; k++ {
		s.cells[i+k] = cell{color: color}
	}
}

// erase blanks whatever glyph covers the cell, both halves of a wide one.
func (s *Stage) erase(col, row int) {
	base := row * s.cols
	head := col
	for head > 0 && s.cells[base+head].width == 0 {
		head--
	}
	w := max(s.cells[base+head].width, 1)
	for c := head; c < head+w && c < s.cols; c++ {
		s.cells[base+c] = blank
	}
}

// String renders the stage as coloured terminal text.
func (s *Stage) String() string {
	var b strings.Builder
	for row := range s.rows {
		if row > 0 {
			b.WriteByte('\n')
		}

		var run strings.Builder
		color := ""
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if color == "" {
				b.WriteString(run.String())
			} else {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(run.String()))
			}
			run.Reset()
		}

		for _, c := range s.cells[row*s.cols : (row+1)*s.cols] {
			if c.width == 0 {
				continue
			}
			if c.color != color {
				flush()
				color = c.color
			}
			run.WriteString(c.glyph)
		}
		flush()
	}
	return b.String()
}

// Hue returns the fully saturated colour at hue degrees, any value allowed.
func Hue(degrees float64) string {
	h := math.Mod(degrees, 360)
	if h < 0 {
		h += 360
	}
	return colorful.Hsl(h, 1, 0.5).Hex()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
