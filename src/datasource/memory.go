package datasource

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemorySource is an in-memory Source. It counts cell reads so callers can
// verify how often a sheet was scanned.
type MemorySource struct {
	mu      sync.RWMutex
	sheets  map[string][][]string
	modTime time.Time
	modErr  error

	reads atomic.Int64
}

// NewMemorySource builds a source from sheet name to rows of cells.
func NewMemorySource(sheets map[string][][]string) *MemorySource {
	if sheets == nil {
		sheets = make(map[string][][]string)
	}
	return &MemorySource{sheets: sheets, modTime: time.Unix(1700000000, 0)}
}

// SetSheet replaces a sheet's rows and bumps the modification time.
func (m *MemorySource) SetSheet(name string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[name] = rows
	m.modTime = m.modTime.Add(time.Second)
}

// Touch sets the reported modification time.
func (m *MemorySource) Touch(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modTime = t
}

// FailModTime makes ModTime return err until cleared with nil.
func (m *MemorySource) FailModTime(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modErr = err
}

// Reads returns the number of Cell calls served.
func (m *MemorySource) Reads() int64 { return m.reads.Load() }

func (m *MemorySource) HasSheet(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sheets[name]
	return ok, nil
}

func (m *MemorySource) RowCount(sheet string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.sheets[sheet]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	return len(rows), nil
}

func (m *MemorySource) Cell(sheet string, row, col int) (string, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.sheets[sheet]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if row < 1 || row > len(rows) || col < 1 || col > len(rows[row-1]) {
		return "", nil
	}
	return rows[row-1][col-1], nil
}

func (m *MemorySource) ModTime() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.modErr != nil {
		return time.Time{}, m.modErr
	}
	return m.modTime, nil
}

func (m *MemorySource) Describe() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{Location: "memory", ModTime: m.modTime}
	for name := range m.sheets {
		info.Sheets = append(info.Sheets, name)
	}
	return info
}
