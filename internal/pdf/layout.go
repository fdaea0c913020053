// Package pdf draws business documents. Surface is the shared drawing layer:
// text, rules, paginated tables and page footers. The document renderers only
// compose Surface calls.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Coordinates are points from the top-left corner of the page. Text y is the
// baseline.
const (
	pageWidth    = 612.0
	pageHeight   = 792.0
	marginLeft   = 50.0
	marginRight  = 50.0
	marginTop    = 50.0
	marginBottom = 60.0

	tableFontSize = 9.0
	rowHeight     = 18.0
	headerHeight  = 20.0
	cellPadding   = 5.0
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type Color struct{ R, G, B int }

var (
	Black     = Color{0, 0, 0}
	Gray      = Color{110, 110, 110}
	LightGray = Color{200, 200, 200}
	White     = Color{255, 255, 255}
	Green     = Color{22, 128, 61}
	Red       = Color{200, 30, 30}

	headerBand = Color{41, 65, 122}
	zebraBand  = Color{242, 244, 248}
)

// Font selects a weight of the built-in Helvetica face.
type Font string

const (
	Regular Font = ""
	Bold    Font = "B"
	Italic  Font = "I"
)

// Column of a table. Width 0 means share the remaining width equally.
type Column struct {
	Header string
	Width  float64
}

// Surface wraps one fpdf document.
type Surface struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

func NewSurface(compress bool) *Surface {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(marginLeft, marginTop, marginRight)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCompression(compress)
	doc.SetCreator("documentpdfflow", false)
	doc.AddPage()
	return &Surface{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}
}

func (s *Surface) Width() float64        { return pageWidth }
func (s *Surface) Height() float64       { return pageHeight }
func (s *Surface) Left() float64         { return marginLeft }
func (s *Surface) Right() float64        { return pageWidth - marginRight }
func (s *Surface) Top() float64          { return marginTop }
func (s *Surface) Bottom() float64       { return pageHeight - marginBottom }
func (s *Surface) ContentWidth() float64 { return s.Right() - s.Left() }
func (s *Surface) PageCount() int        { return s.doc.PageCount() }

func (s *Surface) SetTitle(title string) { s.doc.SetTitle(title, true) }

// NewPage starts a page and returns the first usable y.
func (s *Surface) NewPage() float64 {
	s.doc.AddPage()
	return s.Top()
}

// Ensure starts a new page when h more points would cross the bottom margin.
func (s *Surface) Ensure(y, h float64) float64 {
	if y+h > s.Bottom() {
		return s.NewPage()
	}
	return y
}

func (s *Surface) setFont(font Font, size float64) {
	s.doc.SetFont("Helvetica", string(font), size)
}

// TextWidth measures text in the given font.
func (s *Surface) TextWidth(text string, font Font, size float64) float64 {
	s.setFont(font, size)
	return s.doc.GetStringWidth(s.tr(text))
}

// DrawText places one line of text. For AlignRight x is the right edge, for
// AlignCenter the midpoint.
func (s *Surface) DrawText(text string, x, y, size float64, font Font, align Align, color Color) {
	if text == "" {
		return
	}
	s.setFont(font, size)
	txt := s.tr(text)
	w := s.doc.GetStringWidth(txt)
	switch align {
	case AlignCenter:
		x -= w / 2
	case AlignRight:
		x -= w
	}
	s.doc.SetTextColor(color.R, color.G, color.B)
	s.doc.Text(x, y, txt)
}

func (s *Surface) DrawLine(x1, y1, x2, y2 float64, color Color, thickness float64) {
	s.doc.SetDrawColor(color.R, color.G, color.B)
	s.doc.SetLineWidth(thickness)
	s.doc.Line(x1, y1, x2, y2)
}

func (s *Surface) fillRect(x, y, w, h float64, color Color) {
	s.doc.SetFillColor(color.R, color.G, color.B)
	s.doc.Rect(x, y, w, h, "F")
}

// Wrap splits text into lines no wider than width, breaking between words.
// Existing line breaks are kept; a single word wider than width is cut.
func (s *Surface) Wrap(text string, width, size float64, font Font) []string {
	s.setFont(font, size)
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, w := range words {
			candidate := w
			if line != "" {
				candidate = line + " " + w
			}
			if s.doc.GetStringWidth(s.tr(candidate)) <= width {
				line = candidate
				continue
			}
			if line != "" {
				out = append(out, line)
			}
			line = s.fit(w, width)
		}
		out = append(out, line)
	}
	return out
}

// widths resolves column widths: unspecified columns share what the fixed ones
// leave, then everything is scaled down if the total still overflows.
func widths(cols []Column, available float64) []float64 {
	out := make([]float64, len(cols))
	fixed, auto := 0.0, 0
	for i, c := range cols {
		if c.Width > 0 {
			out[i] = c.Width
			fixed += c.Width
		} else {
			auto++
		}
	}
	if auto > 0 {
		share := (available - fixed) / float64(auto)
		if share < 0 {
			share = 0
		}
		for i, c := range cols {
			if c.Width <= 0 {
				out[i] = share
			}
		}
	}
	total := 0.0
	for _, w := range out {
		total += w
	}
	if total > available && total > 0 {
		scale := available / total
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}

func (s *Surface) fit(text string, width float64) string {
	if width <= 0 {
		return ""
	}
	if s.doc.GetStringWidth(s.tr(text)) <= width {
		return text
	}
	r := []rune(text)
	for len(r) > 0 && s.doc.GetStringWidth(s.tr(string(r)+"...")) > width {
		r = r[:len(r)-1]
	}
	if len(r) == 0 {
		return ""
	}
	return string(r) + "..."
}

func (s *Surface) drawHeaderRow(cols []Column, ws []float64, x, y float64) float64 {
	total := 0.0
	for _, w := range ws {
		total += w
	}
	s.fillRect(x, y, total, headerHeight, headerBand)
	cx := x
	baseline := y + headerHeight - 6
	for i, c := range cols {
		s.setFont(Bold, tableFontSize)
		label := s.fit(c.Header, ws[i]-2*cellPadding)
		if columnAlign(i, c) == AlignRight {
			s.DrawText(label, cx+ws[i]-cellPadding, baseline, tableFontSize, Bold, AlignRight, White)
		} else {
			s.DrawText(label, cx+cellPadding, baseline, tableFontSize, Bold, AlignLeft, White)
		}
		cx += ws[i]
	}
	return y + headerHeight
}

// columnAlign decides alignment for a whole column, header and cells alike.
// The first column is the label column whatever it holds.
func columnAlign(i int, c Column) Align {
	if i > 0 && isNumericColumn(c.Header) {
		return AlignRight
	}
	return AlignLeft
}

func isNumericColumn(header string) bool {
	switch strings.ToLower(header) {
	case "qty", "quantity", "unit price", "line total", "amount", "total":
		return true
	}
	return false
}

// DrawTable draws a header band followed by zebra-striped rows, starting a new
// page (and repeating the header) whenever the next row would cross the bottom
// margin. It returns the y just below the last row.
func (s *Surface) DrawTable(cols []Column, rows [][]string, x, y float64, drawHeader bool) float64 {
	if len(cols) == 0 {
		return y
	}
	ws := widths(cols, s.Right()-x)
	total := 0.0
	for _, w := range ws {
		total += w
	}

	if drawHeader {
		y = s.Ensure(y, headerHeight+rowHeight)
		y = s.drawHeaderRow(cols, ws, x, y)
	}
	for r, row := range rows {
		if y+rowHeight > s.Bottom() {
			y = s.NewPage()
			if drawHeader {
				y = s.drawHeaderRow(cols, ws, x, y)
			}
		}
		if r%2 == 1 {
			s.fillRect(x, y, total, rowHeight, zebraBand)
		}
		cx := x
		baseline := y + rowHeight - 5
		for i, c := range cols {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			s.setFont(Regular, tableFontSize)
			cell = s.fit(cell, ws[i]-2*cellPadding)
			if columnAlign(i, c) == AlignRight {
				s.DrawText(cell, cx+ws[i]-cellPadding, baseline, tableFontSize, Regular, AlignRight, Black)
			} else {
				s.DrawText(cell, cx+cellPadding, baseline, tableFontSize, Regular, AlignLeft, Black)
			}
			cx += ws[i]
		}
		y += rowHeight
	}
	s.DrawLine(x, y, x+total, y, LightGray, 0.5)
	return y
}

// StampPageNumbers writes "Page i of N" bottom-right on every page. Call it
// once all content is drawn.
func (s *Surface) StampPageNumbers() {
	n := s.doc.PageCount()
	for i := 1; i <= n; i++ {
		s.doc.SetPage(i)
		s.DrawText(fmt.Sprintf("Page %d of %d", i, n), s.Right(), pageHeight-30, 8, Regular, AlignRight, Gray)
	}
}

// Watermark overlays large rotated translucent text on every page.
func (s *Surface) Watermark(text string) {
	n := s.doc.PageCount()
	cx, cy := pageWidth/2, pageHeight/2
	for i := 1; i <= n; i++ {
		s.doc.SetPage(i)
		s.doc.SetAlpha(0.12, "Normal")
		s.doc.TransformBegin()
		s.doc.TransformRotate(45, cx, cy)
		s.DrawText(text, cx, cy+30, 110, Bold, AlignCenter, Red)
		s.doc.TransformEnd()
		s.doc.SetAlpha(1, "Normal")
	}
}

// WriteTo writes the finished document to w.
func (s *Surface) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := s.doc.Output(cw); err != nil {
		return cw.n, fmt.Errorf("failed to write pdf: %w", err)
	}
	return cw.n, nil
}

// Bytes returns the finished document.
func (s *Surface) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
