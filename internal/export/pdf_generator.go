package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"carbonlock/marketplace-portal/internal/contracts"
)

// PDFGenerator generates PDF reports
type PDFGenerator struct {
	pdf     *gofpdf.Fpdf
	options PDFOptions
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string     `json:"page_size"`   // A4, Letter, Legal
	Orientation    string     `json:"orientation"` // portrait, landscape
	Title          string     `json:"title"`
	Subtitle       string     `json:"subtitle,omitempty"`
	DateFormat     string     `json:"date_format"`
	GeneratedAt    time.Time  `json:"generated_at"`
	IncludePageNum bool       `json:"include_page_num"`
	HeaderColor    PDFColor   `json:"header_color"`
	AlternateRows  bool       `json:"alternate_rows"`
	AlternateColor PDFColor   `json:"alternate_color"`
	FontFamily     string     `json:"font_family"`
	FontSize       float64    `json:"font_size"`
	HeaderFontSize float64    `json:"header_font_size"`
	TitleFontSize  float64    `json:"title_font_size"`
	Margins        PDFMargins `json:"margins"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "landscape",
		Title:          "Carbon Credit Contracts",
		DateFormat:     "2006-01-02 15:04 MST",
		IncludePageNum: true,
		HeaderColor:    PDFColor{R: 68, G: 114, B: 196},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       9,
		HeaderFontSize: 10,
		TitleFontSize:  16,
		Margins: PDFMargins{
			Left:   12,
			Right:  12,
			Top:    15,
			Bottom: 15,
		},
	}
}

// NewPDFGenerator creates a new PDF generator
func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}

	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(options.Margins.Left, options.Margins.Top, options.Margins.Right)
	pdf.SetAutoPageBreak(false, options.Margins.Bottom)
	pdf.SetTitle(options.Title, true)

	g := &PDFGenerator{pdf: pdf, options: options}
	if options.IncludePageNum {
		g.setFooter()
	}
	return g
}

// GenerateReport lays out the title block, the contract table and the totals.
func (g *PDFGenerator) GenerateReport(columns, labels []string, rows []map[string]interface{}, summary Summary) error {
	g.pdf.AddPage()

	g.addTitle()
	if g.options.Subtitle != "" {
		g.addSubtitle()
	}
	if !g.options.GeneratedAt.IsZero() {
		g.addDate()
	}
	g.pdf.Ln(6)

	widths := g.calculateColumnWidths(columns, labels, rows)
	g.addTableHeader(labels, widths)
	g.addTableData(columns, labels, rows, widths)
	g.addSummary(summary)

	return g.pdf.Error()
}

func (g *PDFGenerator) addTitle() {
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 10, g.options.Title, "", 1, "C", false, 0, "")
}

func (g *PDFGenerator) addSubtitle() {
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+2)
	g.pdf.SetTextColor(100, 100, 100)
	g.pdf.CellFormat(0, 8, g.options.Subtitle, "", 1, "C", false, 0, "")
}

func (g *PDFGenerator) addDate() {
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	g.pdf.SetTextColor(128, 128, 128)
	dateStr := fmt.Sprintf("Generated: %s", g.options.GeneratedAt.UTC().Format(g.options.DateFormat))
	g.pdf.CellFormat(0, 6, dateStr, "", 1, "R", false, 0, "")
}

// calculateColumnWidths sizes columns to their content, scaled to the page.
func (g *PDFGenerator) calculateColumnWidths(columns, labels []string, rows []map[string]interface{}) []float64 {
	pageWidth, _ := g.pdf.GetPageSize()
	available := pageWidth - g.options.Margins.Left - g.options.Margins.Right

	widths := make([]float64, len(columns))
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	for i, label := range labels {
		widths[i] = g.pdf.GetStringWidth(label) + 4
	}

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	sample := rows
	if len(sample) > 100 {
		sample = sample[:100]
	}
	for _, row := range sample {
		for i, col := range columns {
			if w := g.pdf.GetStringWidth(g.formatValue(col, row[col])) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > 0 {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

func (g *PDFGenerator) addTableHeader(labels []string, widths []float64) {
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	g.pdf.SetFillColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
	g.pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		g.pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	g.pdf.Ln(-1)
}

func (g *PDFGenerator) addTableData(columns, labels []string, rows []map[string]interface{}, widths []float64) {
	_, pageHeight := g.pdf.GetPageSize()

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	g.pdf.SetTextColor(0, 0, 0)

	for i, row := range rows {
		if g.pdf.GetY()+7 > pageHeight-g.options.Margins.Bottom {
			g.pdf.AddPage()
			g.addTableHeader(labels, widths)
			g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
			g.pdf.SetTextColor(0, 0, 0)
		}

		if g.options.AlternateRows && i%2 == 1 {
			g.pdf.SetFillColor(g.options.AlternateColor.R, g.options.AlternateColor.G, g.options.AlternateColor.B)
		} else {
			g.pdf.SetFillColor(255, 255, 255)
		}

		for j, col := range columns {
			align := "L"
			switch row[col].(type) {
			case float64, int, uint64:
				align = "R"
			}
			g.pdf.CellFormat(widths[j], 7, g.formatValue(col, row[col]), "1", 0, align, true, 0, "")
		}
		g.pdf.Ln(-1)
	}
}

func (g *PDFGenerator) addSummary(s Summary) {
	_, pageHeight := g.pdf.GetPageSize()
	if g.pdf.GetY()+26 > pageHeight-g.options.Margins.Bottom {
		g.pdf.AddPage()
	}
	g.pdf.Ln(6)

	items := [][2]string{
		{"Contracts", fmt.Sprintf("%d", s.Contracts)},
		{"Total amount", contracts.FormatTonnes(s.TotalTonnes)},
		{"Total value", contracts.FormatUSD(s.TotalUSD)},
	}
	for _, item := range items {
		g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		g.pdf.CellFormat(40, 6, item[0]+":", "", 0, "L", false, 0, "")
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		g.pdf.CellFormat(0, 6, item[1], "", 1, "L", false, 0, "")
	}
}

// formatValue renders a cell; participants are abbreviated to fit the page.
func (g *PDFGenerator) formatValue(col string, val interface{}) string {
	switch col {
	case ColBuyer:
		if s, _ := val.(string); s != "" {
			return contracts.Abbreviate(s)
		}
		return "N/A"
	case ColSeller:
		s, _ := val.(string)
		return contracts.Abbreviate(s)
	case ColPrice, ColTotal:
		if v, ok := val.(float64); ok {
			return contracts.FormatUSD(v)
		}
	case ColAmount:
		if v, ok := val.(float64); ok {
			return contracts.FormatTonnes(v)
		}
	}
	if val == nil {
		return ""
	}
	return fmt.Sprintf("%v", val)
}

// WriteTo writes the PDF to a writer
func (g *PDFGenerator) WriteTo(w io.Writer) error {
	return g.pdf.Output(w)
}

// OutputToBytes returns the PDF as bytes
func (g *PDFGenerator) OutputToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := g.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) setFooter() {
	g.pdf.SetFooterFunc(func() {
		g.pdf.SetY(-12)
		g.pdf.SetFont(g.options.FontFamily, "", 8)
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", g.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}
