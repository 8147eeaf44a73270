package reporting

import (
	"fmt"
	"path/filepath"
	"time"
)

// DefaultReportPath returns reports/tradeguard_<timestamp>.xlsx under dir
func DefaultReportPath(dir string, at time.Time) string {
	if dir == "" {
		dir = "reports"
	}
	return filepath.Join(dir, fmt.Sprintf("tradeguard_%s.xlsx", at.Format("20060102_150405")))
}
