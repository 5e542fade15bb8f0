// Package datasource gives the core read-only, cell-level access to the
// workbook sheets it searches.
package datasource

import (
	"errors"
	"time"
)

// ErrSheetNotFound is returned when a named sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// Source is a read-only tabular data source. Rows and columns are 1-based, as
// in a spreadsheet. Cell returns "" for coordinates outside the used range.
type Source interface {
	HasSheet(name string) (bool, error)
	RowCount(sheet string) (int, error)
	Cell(sheet string, row, col int) (string, error)
	// ModTime reports the modification time of the underlying data, used as
	// the cache invalidation probe.
	ModTime() (time.Time, error)
}

// Describer is implemented by sources that can report where their data lives.
type Describer interface {
	Describe() Info
}

// Info is a health summary of a source.
type Info struct {
	Location string    `json:"location"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Sheets   []string  `json:"sheets,omitempty"`
}

// ColumnIndex converts a spreadsheet column letter ("A", "P", "AA") into a
// 1-based index. It returns 0 for invalid input.
func ColumnIndex(letters string) int {
	idx := 0
	for _, r := range letters {
		switch {
		case r >= 'A' && r <= 'Z':
			idx = idx*26 + int(r-'A'+1)
		case r >= 'a' && r <= 'z':
			idx = idx*26 + int(r-'a'+1)
		default:
			return 0
		}
	}
	return idx
}
