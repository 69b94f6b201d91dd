// Package export writes business records to spreadsheet formats.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bizcrawl/internal/model"
)

// SheetName is the name of the worksheet WriteXLSX creates.
const SheetName = "Businesses"

// listSep joins multi-valued fields into one cell.
const listSep = "; "

// Columns is the header row shared by the XLSX and CSV writers.
var Columns = []string{
	"Name",
	"Phone",
	"Address",
	"Categories",
	"Rating",
	"Review Count",
	"Price Level",
	"Website",
	"Emails",
	"Website Phones",
	"Social Links",
	"Source URL",
	"Scraped At",
}

// WriteXLSX writes records as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, records []model.BusinessRecord) error {
	f, err := buildWorkbook(records)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

// SaveXLSX writes records as a single-sheet workbook to path.
func SaveXLSX(path string, records []model.BusinessRecord) error {
	f, err := buildWorkbook(records)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func buildWorkbook(records []model.BusinessRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		for i, v := range recordStrings(rec) {
			cell := row.AddCell()
			switch {
			case i == ratingCol && rec.Rating != nil:
				cell.SetFloat(*rec.Rating)
			case i == reviewCountCol && rec.ReviewCount != nil:
				cell.SetInt(*rec.ReviewCount)
			default:
				cell.SetString(v)
			}
		}
	}
	return f, nil
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, records []model.BusinessRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, rec := range records {
		if err := cw.Write(recordStrings(rec)); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv: flush")
}

const (
	ratingCol      = 4
	reviewCountCol = 5
)

// recordStrings renders rec in Columns order. Unresolved fields are empty.
func recordStrings(rec model.BusinessRecord) []string {
	rating := ""
	if rec.Rating != nil {
		rating = strconv.FormatFloat(*rec.Rating, 'f', -1, 64)
	}
	reviews := ""
	if rec.ReviewCount != nil {
		reviews = strconv.Itoa(*rec.ReviewCount)
	}
	scraped := ""
	if !rec.ScrapedAt.IsZero() {
		scraped = rec.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		model.Deref(rec.Name),
		model.Deref(rec.Phone),
		model.Deref(rec.Address),
		strings.Join(rec.Categories, listSep),
		rating,
		reviews,
		model.Deref(rec.PriceLevel),
		model.Deref(rec.Website),
		strings.Join(rec.Emails, listSep),
		strings.Join(rec.PhonesFromWebsite, listSep),
		strings.Join(rec.SocialLinks, listSep),
		rec.SourceURL,
		scraped,
	}
}

// ReadXLSX reads the first sheet of an exported workbook and returns all
// rows, header included, as string slices.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
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
