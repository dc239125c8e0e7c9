// Package export renders contract views as CSV, Excel or PDF documents.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"carbonlock/marketplace-portal/internal/contracts"
)

// Format is an export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// ParseFormat accepts csv, xlsx (or excel) and pdf, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type of the rendered document.
func (f Format) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// FileName returns a timestamped file name for an export taken at t.
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("contracts-%s.%s", t.UTC().Format("20060102-150405"), string(f))
}

// Column keys of the contract table.
const (
	ColID     = "id"
	ColBuyer  = "buyer"
	ColSeller = "seller"
	ColAmount = "amount_tonnes"
	ColPrice  = "price_usd"
	ColTotal  = "total_usd"
	ColYear   = "delivery_year"
	ColStatus = "status"
)

// Columns lists the exported columns in order.
var Columns = []string{ColID, ColBuyer, ColSeller, ColAmount, ColPrice, ColTotal, ColYear, ColStatus}

// ColumnLabels are the header labels matching Columns.
var ColumnLabels = []string{"ID", "Buyer", "Seller", "Amount (t)", "Price (USD/t)", "Total (USD)", "Year", "Status"}

// Options configures a rendering.
type Options struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
}

// Records converts contracts into column-keyed rows.
func Records(list []contracts.Contract) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(list))
	for i, c := range list {
		rows[i] = map[string]interface{}{
			ColID:     c.ID,
			ColBuyer:  c.BuyerOrEmpty(),
			ColSeller: c.Seller,
			ColAmount: c.AmountTonnes,
			ColPrice:  c.PriceUSD,
			ColTotal:  c.Total(),
			ColYear:   c.DeliveryYear,
			ColStatus: string(c.Status),
		}
	}
	return rows
}

// Render writes list to w in the given format.
func Render(w io.Writer, format Format, list []contracts.Contract, opts Options) error {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	if opts.Title == "" {
		opts.Title = "Carbon Credit Contracts"
	}
	rows := Records(list)

	switch format {
	case FormatCSV:
		exporter := NewCSVExporter(w, DefaultCSVOptions())
		if err := exporter.WriteMapRows(rows, Columns, ColumnLabels); err != nil {
			return err
		}
		return exporter.Flush()

	case FormatExcel:
		exporter, err := NewExcelExporter(DefaultExcelOptions())
		if err != nil {
			return err
		}
		defer exporter.Close()
		if err := exporter.WriteHeader(ColumnLabels); err != nil {
			return err
		}
		if err := exporter.WriteRows(rows, Columns); err != nil {
			return err
		}
		return exporter.WriteTo(w)

	case FormatPDF:
		pdfOpts := DefaultPDFOptions()
		pdfOpts.Title = opts.Title
		pdfOpts.Subtitle = opts.Subtitle
		pdfOpts.GeneratedAt = opts.GeneratedAt
		generator := NewPDFGenerator(pdfOpts)
		if err := generator.GenerateReport(Columns, ColumnLabels, rows, Summarize(list)); err != nil {
			return err
		}
		return generator.WriteTo(w)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// RenderBytes renders into memory, for uploads.
func RenderBytes(format Format, list []contracts.Contract, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, format, list, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Summary aggregates an exported contract list.
type Summary struct {
	Contracts   int
	TotalTonnes float64
	TotalUSD    float64
}

// Summarize totals the amount and value of list.
func Summarize(list []contracts.Contract) Summary {
	s := Summary{Contracts: len(list)}
	for _, c := range list {
		s.TotalTonnes += c.AmountTonnes
		s.TotalUSD += c.Total()
	}
	return s
}
