package datasource

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/security/validation"
	"github.com/xuri/excelize/v2"
)

// WorkbookSource reads an .xlsx file with excelize. The workbook is reopened
// whenever the file modification time changes; sheet rows are read once per
// file version.
type WorkbookSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	sheets  map[string]bool
	rows    map[string][][]string
	loaded  bool
}

// NewWorkbookSource returns a source for the workbook at path. The file is not
// opened until first use.
func NewWorkbookSource(path string) *WorkbookSource {
	return &WorkbookSource{path: path}
}

// Path returns the workbook location.
func (w *WorkbookSource) Path() string { return w.path }

func (w *WorkbookSource) ModTime() (time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat workbook %s: %w", w.path, err)
	}
	return info.ModTime(), nil
}

func (w *WorkbookSource) HasSheet(name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.refreshLocked(); err != nil {
		return false, err
	}
	return w.sheets[name], nil
}

func (w *WorkbookSource) RowCount(sheet string) (int, error) {
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (w *WorkbookSource) Cell(sheet string, row, col int) (string, error) {
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return "", err
	}
	if row < 1 || row > len(rows) || col < 1 {
		return "", nil
	}
	cells := rows[row-1]
	if col > len(cells) {
		return "", nil
	}
	return cells[col-1], nil
}

// Describe reports file metadata for health checks.
func (w *WorkbookSource) Describe() Info {
	info := Info{Location: w.path}
	if st, err := os.Stat(w.path); err == nil {
		info.Size = st.Size()
		info.ModTime = st.ModTime()
	}
	w.mu.Lock()
	for name := range w.sheets {
		info.Sheets = append(info.Sheets, name)
	}
	w.mu.Unlock()
	return info
}

// sheetRows serves rows from the current file version. Staleness is checked
// by HasSheet, which every scan calls first, so cell reads skip the stat.
func (w *WorkbookSource) sheetRows(sheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		if err := w.refreshLocked(); err != nil {
			return nil, err
		}
	}
	if !w.sheets[sheet] {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if rows, ok := w.rows[sheet]; ok {
		return rows, nil
	}

	start := time.Now()
	f, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Raw values keep numbers as stored ("1500.5") instead of the display format.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	w.rows[sheet] = rows
	logger.Get().Debug("Workbook sheet loaded", "sheet", sheet, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

// refreshLocked drops every cached sheet when the file changed on disk.
func (w *WorkbookSource) refreshLocked() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("stat workbook %s: %w", w.path, err)
	}
	if w.loaded && info.ModTime().Equal(w.modTime) {
		return nil
	}

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	w.sheets = make(map[string]bool)
	for _, name := range f.GetSheetList() {
		w.sheets[name] = true
	}
	w.rows = make(map[string][][]string)
	w.modTime = info.ModTime()
	w.loaded = true
	logger.Get().Info("Workbook opened", "path", w.path, "sheets", len(w.sheets), "modTime", w.modTime)
	return nil
}

func (w *WorkbookSource) open() (*excelize.File, error) {
	file, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", w.path, err)
	}
	defer file.Close()

	if _, err := validation.ValidateWorkbookContentByMagicBytes(file); err != nil {
		return nil, fmt.Errorf("workbook %s: %w", w.path, err)
	}
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("parsing workbook %s: %w", w.path, err)
	}
	return f, nil
}
