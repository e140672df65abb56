// Package feed downloads the monthly transaction file and turns it
// into typed records.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DateLayout is the fixed timestamp format used by the feed.
const DateLayout = "2006-01-02 15:04"

// Action is the record action carried in the last column of a row.
type Action string

const (
	ActionAdd    Action = "A"
	ActionChange Action = "C"
	ActionDelete Action = "D"
)

// ErrMalformedRecord marks a row that cannot be reconciled. It fails
// that row only, never the run.
var ErrMalformedRecord = errors.New("malformed record")

// Record is one raw transaction row. Fields stay unparsed strings;
// the reconciler owns conversion.
type Record struct {
	TUI          string
	Price        string
	Date         string
	Postcode     string
	PropertyType string
	NewBuild     string
	Tenure       string
	PAON         string
	SAON         string
	Street       string
	Locality     string
	Town         string
	District     string
	County       string
	PPDCategory  string
	Action       Action
}

const fieldCount = 16

func recordFromRow(row []string) (Record, error) {
	if len(row) < fieldCount {
		return Record{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRecord, len(row), fieldCount)
	}
	tui := row[0]
	// The identifier arrives wrapped in one leading and one trailing
	// quote character.
	if len(tui) >= 2 {
		tui = tui[1 : len(tui)-1]
	}
	return Record{
		TUI:          tui,
		Price:        row[1],
		Date:         row[2],
		Postcode:     row[3],
		PropertyType: row[4],
		NewBuild:     row[5],
		Tenure:       row[6],
		PAON:         row[7],
		SAON:         row[8],
		Street:       row[9],
		Locality:     row[10],
		Town:         row[11],
		District:     row[12],
		County:       row[13],
		PPDCategory:  row[14],
		Action:       Action(row[15]),
	}, nil
}

// RowReader streams records out of a raw feed body in file order.
type RowReader struct {
	csv *csv.Reader
}

func NewRowReader(r io.Reader) *RowReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &RowReader{csv: cr}
}

// Next returns the next record. io.EOF signals the end of the feed;
// ErrMalformedRecord signals a bad row that the caller should isolate.
func (r *RowReader) Next() (Record, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return recordFromRow(row)
}
