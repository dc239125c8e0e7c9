package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter exports data to Excel format
type ExcelExporter struct {
	file        *excelize.File
	options     ExcelOptions
	numberStyle int
	moneyStyle  int
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName      string            `json:"sheet_name"`
	IncludeHeader  bool              `json:"include_header"`
	FreezeHeader   bool              `json:"freeze_header"`
	AutoFilter     bool              `json:"auto_filter"`
	NumberFormat   string            `json:"number_format"`
	CurrencyFormat string            `json:"currency_format"`
	CurrencyCols   []string          `json:"currency_cols"`
	HeaderStyle    *ExcelStyleConfig `json:"header_style,omitempty"`
	AutoWidth      bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"` // left, center, right
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:      "Contracts",
		IncludeHeader:  true,
		FreezeHeader:   true,
		AutoFilter:     true,
		NumberFormat:   "#,##0.##",
		CurrencyFormat: "$#,##0.00",
		CurrencyCols:   []string{ColPrice, ColTotal},
		AutoWidth:      true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", options.SheetName); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	e := &ExcelExporter{file: file, options: options}

	var err error
	if options.NumberFormat != "" {
		if e.numberStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.NumberFormat}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create number style: %w", err)
		}
	}
	if options.CurrencyFormat != "" {
		if e.moneyStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.CurrencyFormat}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create currency style: %w", err)
		}
	}
	return e, nil
}

// WriteHeader writes the header row with styling
func (e *ExcelExporter) WriteHeader(labels []string) error {
	if !e.options.IncludeHeader {
		return nil
	}
	sheet := e.options.SheetName

	headerStyleID := 0
	if e.options.HeaderStyle != nil {
		style, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		headerStyleID = style
	}

	for i, label := range labels {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := e.file.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if headerStyleID > 0 {
			if err := e.file.SetCellStyle(sheet, cell, cell, headerStyleID); err != nil {
				return err
			}
		}
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	return nil
}

// WriteRows writes data rows
func (e *ExcelExporter) WriteRows(rows []map[string]interface{}, columns []string) error {
	sheet := e.options.SheetName
	startRow := 1
	if e.options.IncludeHeader {
		startRow = 2
	}

	currency := make(map[string]bool, len(e.options.CurrencyCols))
	for _, c := range e.options.CurrencyCols {
		currency[c] = true
	}

	columnWidths := make(map[int]float64)
	for rowIdx, row := range rows {
		rowNum := startRow + rowIdx
		for colIdx, colName := range columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowNum)
			if err != nil {
				return err
			}
			val := row[colName]
			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}

			if _, isFloat := val.(float64); isFloat {
				style := e.numberStyle
				if currency[colName] {
					style = e.moneyStyle
				}
				if style > 0 {
					if err := e.file.SetCellStyle(sheet, cell, cell, style); err != nil {
						return err
					}
				}
			}

			if e.options.AutoWidth {
				if width := estimateCellWidth(val); width > columnWidths[colIdx] {
					columnWidths[colIdx] = width
				}
			}
		}
	}

	if e.options.AutoFilter && e.options.IncludeHeader && len(rows) > 0 {
		lastCol, err := excelize.CoordinatesToCellName(len(columns), 1)
		if err != nil {
			return err
		}
		if err := e.file.AutoFilter(sheet, "A1:"+lastCol, nil); err != nil {
			return fmt.Errorf("failed to add auto filter: %w", err)
		}
	}

	if e.options.AutoWidth {
		for colIdx, width := range columnWidths {
			colName, err := excelize.ColumnNumberToName(colIdx + 1)
			if err != nil {
				return err
			}
			// Min width 10, max width 50
			width = max(10, min(width, 50))
			if err := e.file.SetColWidth(sheet, colName, colName, width); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTo writes the Excel file to a writer
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return e.file.NewStyle(style)
}

// estimateCellWidth estimates the display width of a cell value
func estimateCellWidth(val interface{}) float64 {
	if val == nil {
		return 0
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
