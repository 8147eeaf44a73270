package reporting

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/ducminhle1904/tradeguard/internal/health"
)

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteExecutionsCSV writes execution records to path
func (r *DefaultCSVReporter) WriteExecutionsCSV(records []health.ExecutionRecord, path string) error {
	if err := EnsureDirectoryExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "Broker", "Symbol", "Success", "Execution_Time_ms", "Error"}); err != nil {
		return err
	}
	for _, e := range records {
		if err := w.Write([]string{
			e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			e.Broker,
			e.Symbol,
			strconv.FormatBool(e.Success),
			strconv.FormatFloat(float64(e.ExecutionTime.Microseconds())/1000, 'f', 3, 64),
			e.Error,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Export writes report to path, as CSV executions when the extension is .csv
// and as an Excel workbook otherwise
func Export(report Report, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return NewDefaultCSVReporter().WriteExecutionsCSV(report.Executions, path)
	}
	return WriteReportXLSX(report, path)
}
