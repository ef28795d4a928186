// Package leadfile reads and writes lead spreadsheets (CSV or XLSX). Export
// writes one row per lead; import reads business rows into discovery
// candidates so they go through the same dedup as a provider search.
package leadfile

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a spreadsheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("leadfile: unsupported format %q (want csv or xlsx)", s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}
