package reporting

import (
	"time"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
)

// Package reporting renders guard state for operators

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	PrintRiskSummary(s risk.Summary)
	PrintBrokerHealth(s health.Summary)
	PrintActiveBrackets(orders []bracket.Order)
	PrintSizing(price float64, results []sizing.Result)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteReportXLSX(report Report, path string) error
	WriteExecutionsCSV(records []health.ExecutionRecord, path string) error
}

// Report is the data behind an exported workbook
type Report struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Executions  []health.ExecutionRecord `json:"executions"`
	Closed      []bracket.Order          `json:"closed"`
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle        int
	CurrencyStyle      int
	PercentStyle       int
	BaseStyle          int
	RedCurrencyStyle   int
	GreenCurrencyStyle int
	FailedStyle        int
	SummaryStyle       int
}
