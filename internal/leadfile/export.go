package leadfile

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Columns is the export header.
var Columns = []string{
	"id", "business_name", "name", "email", "phone", "address", "website",
	"niche", "business_type", "location", "status", "email_sent", "reply_count",
	"prototype_url", "source", "created_at",
}

// Row renders lead in Columns order.
func Row(l model.Lead) []string {
	created := ""
	if !l.CreatedAt.IsZero() {
		created = l.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(l.ID, 10),
		model.Deref(l.BusinessName),
		model.Deref(l.Name),
		model.Deref(l.Email),
		model.Deref(l.Phone),
		model.Deref(l.Address),
		model.Deref(l.Website),
		l.Niche,
		l.BusinessType,
		l.Location,
		string(l.Status),
		strconv.FormatBool(l.EmailSent),
		strconv.Itoa(l.ReplyCount),
		model.Deref(l.PrototypeURL),
		l.Source,
		created,
	}
}

// WriteCSV writes the header and one row per lead.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "leadfile: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(Row(l)); err != nil {
			return eris.Wrapf(err, "leadfile: write csv row %d", l.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "leadfile: flush csv")
}

// WriteXLSX saves leads as a single-sheet workbook at path.
func WriteXLSX(path string, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("leads")
	if err != nil {
		return eris.Wrap(err, "leadfile: add sheet")
	}
	addRow(sheet, Columns)
	for _, l := range leads {
		addRow(sheet, Row(l))
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "leadfile: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
