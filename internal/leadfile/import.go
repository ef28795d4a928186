package leadfile

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
)

// ProviderName tags candidates read from a file.
const ProviderName = "file"

// header aliases, lowercased.
var aliases = map[string]string{
	"business_name": "name",
	"business":      "name",
	"company":       "name",
	"name":          "name",
	"address":       "address",
	"website":       "website",
	"url":           "website",
	"phone":         "phone",
	"id":            "external_id",
	"external_id":   "external_id",
	"place_id":      "external_id",
}

// ReadCandidates reads business rows from a CSV or XLSX file. The first row
// is the header; columns are matched by name and unknown ones are ignored.
// Rows without a name are skipped.
func ReadCandidates(path string) ([]model.DiscoveredCandidate, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = readCSV(path)
	case FormatXLSX:
		rows, err = readXLSX(path)
	}
	if err != nil {
		return nil, err
	}
	return toCandidates(rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leadfile: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "leadfile: read %s", path)
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leadfile: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("leadfile: %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func toCandidates(rows [][]string) ([]model.DiscoveredCandidate, error) {
	if len(rows) == 0 {
		return nil, eris.New("leadfile: file is empty")
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := aliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, eris.New("leadfile: header has no name column")
	}

	get := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []model.DiscoveredCandidate
	for _, row := range rows[1:] {
		c := model.DiscoveredCandidate{
			Provider:   ProviderName,
			ExternalID: get(row, "external_id"),
			Name:       get(row, "name"),
			Address:    get(row, "address"),
			Website:    get(row, "website"),
			Phone:      get(row, "phone"),
		}
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Provider serves a fixed candidate list as a discovery provider, so an
// imported file is deduplicated exactly like a search result.
type Provider struct {
	candidates []model.DiscoveredCandidate
}

var _ discovery.Provider = (*Provider)(nil)

// NewProvider wraps candidates.
func NewProvider(candidates []model.DiscoveredCandidate) *Provider {
	return &Provider{candidates: candidates}
}

func (p *Provider) Name() string { return ProviderName }

// Search ignores req; every row in the file belongs to the import's target.
func (p *Provider) Search(_ context.Context, _ discovery.Request) ([]model.DiscoveredCandidate, error) {
	return p.candidates, nil
}
