package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Renderer turns aggregates into PDF documents. Compress is off only in tests
// that inspect content streams.
type Renderer struct {
	Compress bool
}

func NewRenderer() *Renderer {
	return &Renderer{Compress: true}
}

// layout is everything that differs between document types.
type layout struct {
	title        string
	uidLabel     string
	role         string
	unknown      string
	historyTitle string
	sample       bool

	agg         models.Aggregate
	doc         *models.Document
	party       *models.Account
	lines       []models.LineItem
	settlements []models.Payment
}

func layoutFor(agg models.Aggregate) (layout, error) {
	var l layout
	switch a := agg.(type) {
	case *models.InvoiceAggregate:
		l = layout{
			title: "INVOICE", uidLabel: "Invoice #", role: "Bill To", unknown: "Unknown Customer",
			historyTitle: "Payment History",
		}
	case *models.EstimateAggregate:
		l = layout{
			title: "ESTIMATE", uidLabel: "Estimate #", role: "Customer", unknown: "Unknown Customer",
			historyTitle: "Credit History", sample: a.IsSample,
		}
	case *models.PurchaseOrderAggregate:
		l = layout{
			title: "PURCHASE ORDER", uidLabel: "PO #", role: "Vendor", unknown: "Unknown Vendor",
			historyTitle: "Payment History",
		}
	case nil:
		return layout{}, fmt.Errorf("nil aggregate")
	default:
		return layout{}, fmt.Errorf("unsupported aggregate %T", agg)
	}
	l.agg = agg
	l.doc = agg.Header()
	l.party = agg.Counterparty()
	l.lines = agg.Items()
	l.settlements = agg.Settlements()
	if l.doc.UID == "" && l.doc.ID == "" {
		return layout{}, fmt.Errorf("%s has neither uid nor id", agg.Kind())
	}
	return l, nil
}

// Render returns the finished PDF.
func (r *Renderer) Render(agg models.Aggregate) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := r.RenderTo(&buf, agg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTo streams the finished PDF to w.
func (r *Renderer) RenderTo(w io.Writer, agg models.Aggregate) (int64, error) {
	l, err := layoutFor(agg)
	if err != nil {
		return 0, err
	}
	s := NewSurface(r.Compress)
	s.SetTitle(fmt.Sprintf("%s %s", l.title, orNA(firstNonEmpty(l.doc.UID, l.doc.ID))))
	compose(s, l)
	return s.WriteTo(w)
}

func compose(s *Surface, l layout) {
	y := s.Top() + 22
	s.DrawText(l.title, s.Width()/2, y, 22, Bold, AlignCenter, Black)
	y += 34

	y = drawParties(s, l, y)
	s.DrawLine(s.Left(), y, s.Right(), y, LightGray, 1)
	y += 16

	y = s.DrawTable(lineColumns, lineRows(l.lines), s.Left(), y, true)
	y = drawTotals(s, l, y+16)

	if l.doc.Notes != "" {
		y = drawNotes(s, l.doc.Notes, y+18)
	}
	if len(l.settlements) > 0 {
		y = s.Ensure(y+18, 40)
		s.DrawText(l.historyTitle, s.Left(), y+10, 11, Bold, AlignLeft, Black)
		s.DrawTable(historyColumns, historyRows(l.settlements), s.Left(), y+18, true)
	}

	if l.sample {
		s.Watermark("SAMPLE")
	}
	s.StampPageNumbers()
}

func drawParties(s *Surface, l layout, y float64) float64 {
	ly := y
	s.DrawText(l.uidLabel+": "+orNA(l.doc.UID), s.Left(), ly, 11, Bold, AlignLeft, Black)
	ly += 15
	s.DrawText("Date: "+Date(l.doc.Date), s.Left(), ly, 10, Regular, AlignLeft, Black)
	ly += 14
	if l.doc.Status != "" {
		s.DrawText("Status: "+l.doc.Status, s.Left(), ly, 10, Regular, AlignLeft, Black)
		ly += 14
	}

	ry := y
	s.DrawText(l.role, s.Right(), ry, 11, Bold, AlignRight, Black)
	ry += 15
	name := l.unknown
	var extra []string
	if l.party != nil {
		if l.party.Name != "" {
			name = l.party.Name
		}
		extra = append(extra, l.party.Address...)
		for _, v := range []string{l.party.Email, l.party.Phone} {
			if v != "" {
				extra = append(extra, v)
			}
		}
	}
	s.DrawText(name, s.Right(), ry, 10, Regular, AlignRight, Black)
	ry += 14
	for _, line := range extra {
		s.DrawText(line, s.Right(), ry, 9, Regular, AlignRight, Gray)
		ry += 12
	}
	return max(ly, ry) + 4
}

var lineColumns = []Column{
	{Header: "Name"},
	{Header: "Qty", Width: 55},
	{Header: "Unit Price", Width: 95},
	{Header: "Line Total", Width: 95},
}

func lineRows(lines []models.LineItem) [][]string {
	if len(lines) == 0 {
		return [][]string{{"No line items", "", "", ""}}
	}
	rows := make([][]string, len(lines))
	for i, li := range lines {
		rows[i] = []string{li.Name(), Quantity(li.Quantity), Currency(li.UnitPrice), Currency(li.LineTotal)}
	}
	return rows
}

var historyColumns = []Column{
	{Header: "Date", Width: 90},
	{Header: "Method", Width: 110},
	{Header: "Amount", Width: 90},
	{Header: "Note"},
}

func historyRows(ps []models.Payment) [][]string {
	rows := make([][]string, len(ps))
	for i, p := range ps {
		rows[i] = []string{Date(p.Date), orNA(p.Method), Currency(p.Amount), p.Note}
	}
	return rows
}

type TotalLine struct {
	Label, Value string
}

// Totals is the totals block of a document, in display order. Balance Due is
// always last.
func Totals(agg models.Aggregate) []TotalLine {
	doc := agg.Header()
	subtotal := decimal.Zero
	for _, li := range agg.Items() {
		subtotal = subtotal.Add(li.LineTotal)
	}
	out := []TotalLine{{"Subtotal", Currency(subtotal)}}

	if doc.TaxRate.IsPositive() {
		tax := doc.TaxAmount
		if tax.IsZero() {
			tax = subtotal.Mul(doc.TaxRate).Div(decimal.NewFromInt(100))
		}
		out = append(out, TotalLine{"Tax (" + Percent(doc.TaxRate) + ")", Currency(tax)})
	}
	if doc.Shipping.IsPositive() {
		out = append(out, TotalLine{"Shipping", Currency(doc.Shipping)})
	}
	if settlements := agg.Settlements(); len(settlements) > 0 {
		paid := decimal.Zero
		for _, p := range settlements {
			paid = paid.Add(p.Amount)
		}
		label := "Payments"
		if agg.Kind() == models.Estimate {
			label = "Credits"
		}
		out = append(out, TotalLine{label, Currency(paid)})
	}
	return append(out, TotalLine{"Balance Due", Currency(doc.Balance)})
}

func balanceColor(b decimal.Decimal) Color {
	switch {
	case b.IsNegative():
		return Green
	case b.IsPositive():
		return Red
	default:
		return Black
	}
}

func drawTotals(s *Surface, l layout, y float64) float64 {
	lines := Totals(l.agg)
	y = s.Ensure(y, float64(len(lines))*16+10)
	labelX := s.Right() - 110
	for i, tl := range lines {
		y += 16
		if i == len(lines)-1 {
			y += 4
			s.DrawLine(labelX-80, y-14, s.Right(), y-14, LightGray, 0.5)
			c := balanceColor(l.doc.Balance)
			s.DrawText(tl.Label, labelX, y, 13, Bold, AlignRight, c)
			s.DrawText(tl.Value, s.Right(), y, 13, Bold, AlignRight, c)
			continue
		}
		s.DrawText(tl.Label, labelX, y, 10, Regular, AlignRight, Black)
		s.DrawText(tl.Value, s.Right(), y, 10, Regular, AlignRight, Black)
	}
	return y + 6
}

func drawNotes(s *Surface, notes string, y float64) float64 {
	y = s.Ensure(y, 30)
	s.DrawText("Notes", s.Left(), y, 11, Bold, AlignLeft, Black)
	y += 4
	for _, line := range s.Wrap(notes, s.ContentWidth(), 10, Regular) {
		y = s.Ensure(y+13, 0)
		s.DrawText(line, s.Left(), y, 10, Regular, AlignLeft, Black)
	}
	return y
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
