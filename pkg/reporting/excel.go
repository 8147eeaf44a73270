package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/health"
)

// Sheet names of the exported workbook
const (
	SummarySheet    = "Summary"
	ExecutionsSheet = "Executions"
	ClosedSheet     = "Closed Brackets"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteReportXLSX writes the summary, execution and closed bracket sheets to path
func (r *DefaultExcelReporter) WriteReportXLSX(report Report, path string) error {
	if err := EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), SummarySheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(ExecutionsSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(ClosedSheet); err != nil {
		return err
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, report, styles); err != nil {
		return err
	}
	if err := r.writeExecutionsSheet(fx, report.Executions, styles); err != nil {
		return err
	}
	if err := r.writeClosedSheet(fx, report.Closed, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func lightBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - Dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7, // $#,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorders(),
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10, // 0.00%
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorders(),
	})
	if err != nil {
		return styles, err
	}

	styles.RedCurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorders(),
	})
	if err != nil {
		return styles, err
	}

	styles.GreenCurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorders(),
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: lightBorders()})
	if err != nil {
		return styles, err
	}

	// Failed rows get a light red background
	styles.FailedStyle, err = fx.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFE6E6"}, Pattern: 1},
		Border: lightBorders(),
	})
	if err != nil {
		return styles, err
	}

	styles.SummaryStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E6F3FF"}, Pattern: 1},
		Border: lightBorders(),
	})
	return styles, err
}

func writeHeader(fx *excelize.File, sheet string, headers []string, styles ExcelStyles) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle); err != nil {
			return err
		}
	}
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeRow(fx *excelize.File, sheet string, row int, values []interface{}, style int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func styleCell(fx *excelize.File, sheet string, col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, cell, cell, style)
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, report Report, styles ExcelStyles) error {
	const sheet = SummarySheet

	var success int
	for _, e := range report.Executions {
		if e.Success {
			success++
		}
	}
	var wins int
	var realized float64
	for _, o := range report.Closed {
		realized += o.RealizedPnL
		if o.RealizedPnL > 0 {
			wins++
		}
	}

	successRate, winRate := 0.0, 0.0
	if len(report.Executions) > 0 {
		successRate = float64(success) / float64(len(report.Executions))
	}
	if len(report.Closed) > 0 {
		winRate = float64(wins) / float64(len(report.Closed))
	}

	if err := writeHeader(fx, sheet, []string{"Metric", "Value"}, styles); err != nil {
		return err
	}
	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05"), styles.BaseStyle},
		{"Executions", len(report.Executions), styles.BaseStyle},
		{"Execution Success Rate", successRate, styles.PercentStyle},
		{"Closed Brackets", len(report.Closed), styles.BaseStyle},
		{"Bracket Win Rate", winRate, styles.PercentStyle},
		{"Realized P&L", realized, pnlStyle(realized, styles)},
	}
	for i, row := range rows {
		if err := writeRow(fx, sheet, i+2, []interface{}{row.label, row.value}, styles.SummaryStyle); err != nil {
			return err
		}
		if err := styleCell(fx, sheet, 2, i+2, row.style); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "B", 24)
}

func pnlStyle(v float64, styles ExcelStyles) int {
	if v < 0 {
		return styles.RedCurrencyStyle
	}
	return styles.GreenCurrencyStyle
}

func (r *DefaultExcelReporter) writeExecutionsSheet(fx *excelize.File, records []health.ExecutionRecord, styles ExcelStyles) error {
	const sheet = ExecutionsSheet

	fx.SetColWidth(sheet, "A", "A", 20) // Timestamp
	fx.SetColWidth(sheet, "B", "C", 12) // Broker, Symbol
	fx.SetColWidth(sheet, "D", "E", 12) // Result, Time
	fx.SetColWidth(sheet, "F", "F", 40) // Error

	if err := writeHeader(fx, sheet, []string{"Timestamp", "Broker", "Symbol", "Result", "Time (ms)", "Error"}, styles); err != nil {
		return err
	}

	for i, e := range records {
		result, style := "success", styles.BaseStyle
		if !e.Success {
			result, style = "failed", styles.FailedStyle
		}
		values := []interface{}{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Broker,
			e.Symbol,
			result,
			float64(e.ExecutionTime.Microseconds()) / 1000,
			e.Error,
		}
		if err := writeRow(fx, sheet, i+2, values, style); err != nil {
			return err
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeClosedSheet(fx *excelize.File, orders []bracket.Order, styles ExcelStyles) error {
	const sheet = ClosedSheet

	fx.SetColWidth(sheet, "A", "A", 38) // ID
	fx.SetColWidth(sheet, "B", "J", 14)
	fx.SetColWidth(sheet, "K", "K", 20) // Closed
	fx.SetColWidth(sheet, "L", "L", 40) // Exit error

	headers := []string{"ID", "Symbol", "Side", "Quantity", "Entry", "Exit", "Status", "Reason", "P&L", "P&L %", "Closed", "Exit Error"}
	if err := writeHeader(fx, sheet, headers, styles); err != nil {
		return err
	}

	for i, o := range orders {
		row := i + 2
		pnlPct := 0.0
		if o.EntryPrice > 0 && o.Quantity > 0 {
			pnlPct = o.RealizedPnL / (o.EntryPrice * o.Quantity)
		}
		closed := ""
		if !o.ClosedAt.IsZero() {
			closed = o.ClosedAt.Format("2006-01-02 15:04:05")
		}
		style := styles.BaseStyle
		if o.ExitError != "" {
			style = styles.FailedStyle
		}
		values := []interface{}{
			o.ID, o.Symbol, string(o.Side), o.Quantity, o.EntryPrice, o.ExitPrice,
			string(o.Status), string(o.TriggerReason), o.RealizedPnL, pnlPct, closed, o.ExitError,
		}
		if err := writeRow(fx, sheet, row, values, style); err != nil {
			return err
		}
		for _, col := range []int{5, 6} {
			if err := styleCell(fx, sheet, col, row, styles.CurrencyStyle); err != nil {
				return err
			}
		}
		if err := styleCell(fx, sheet, 9, row, pnlStyle(o.RealizedPnL, styles)); err != nil {
			return err
		}
		if err := styleCell(fx, sheet, 10, row, styles.PercentStyle); err != nil {
			return err
		}
	}
	return nil
}

// WriteReportXLSX is a package-level convenience function
func WriteReportXLSX(report Report, path string) error {
	return NewDefaultExcelReporter().WriteReportXLSX(report, path)
}

// EnsureDirectoryExists creates the parent directory of path
func EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
