package datasource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, sheets map[string]map[string]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, cells := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("renaming sheet: %v", err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("creating sheet %s: %v", name, err)
		}
		for axis, v := range cells {
			if err := f.SetCellValue(name, axis, v); err != nil {
				t.Fatalf("setting %s!%s: %v", name, axis, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
}

func TestWorkbookSourceReadsCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.xlsx")
	writeWorkbook(t, path, map[string]map[string]interface{}{
		"Base de Clientes": {"C3": "Maria Silva", "D3": "529.982.247-25"},
		"UNION - 2024":     {"G2": 1500.5, "P2": "RECEITA BRUTA"},
	})
	w := NewWorkbookSource(path)

	ok, err := w.HasSheet("Base de Clientes")
	if err != nil || !ok {
		t.Fatalf("HasSheet = %v, %v", ok, err)
	}
	if ok, _ := w.HasSheet("Outra"); ok {
		t.Error("HasSheet reported a sheet that does not exist")
	}

	if v, err := w.Cell("Base de Clientes", 3, ColumnIndex("C")); err != nil || v != "Maria Silva" {
		t.Errorf("Cell(C3) = %q, %v", v, err)
	}
	if v, _ := w.Cell("UNION - 2024", 2, ColumnIndex("G")); v != "1500.5" {
		t.Errorf("Cell(G2) = %q, want raw numeric value", v)
	}
	if v, err := w.Cell("Base de Clientes", 50, 50); err != nil || v != "" {
		t.Errorf("out of range Cell = %q, %v", v, err)
	}
	if n, err := w.RowCount("Base de Clientes"); err != nil || n != 3 {
		t.Errorf("RowCount = %d, %v; want 3", n, err)
	}
	if _, err := w.RowCount("Outra"); err == nil {
		t.Error("RowCount on a missing sheet should fail")
	}

	info := w.Describe()
	if info.Location != path || info.Size == 0 || len(info.Sheets) != 2 {
		t.Errorf("Describe = %+v", info)
	}
}

func TestWorkbookSourceReloadsWhenFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.xlsx")
	writeWorkbook(t, path, map[string]map[string]interface{}{"UNION - 2024": {"G2": 100}})
	w := NewWorkbookSource(path)

	if _, err := w.HasSheet("UNION - 2024"); err != nil {
		t.Fatal(err)
	}
	if v, _ := w.Cell("UNION - 2024", 2, 7); v != "100" {
		t.Fatalf("initial Cell = %q", v)
	}

	writeWorkbook(t, path, map[string]map[string]interface{}{"UNION - 2024": {"G2": 250}})
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if mt, err := w.ModTime(); err != nil || mt.Before(later.Add(-time.Second)) {
		t.Errorf("ModTime = %v, %v; want about %v", mt, err, later)
	}
	if _, err := w.HasSheet("UNION - 2024"); err != nil {
		t.Fatal(err)
	}
	if v, _ := w.Cell("UNION - 2024", 2, 7); v != "250" {
		t.Errorf("Cell after rewrite = %q, want 250", v)
	}
}

func TestWorkbookSourceErrors(t *testing.T) {
	dir := t.TempDir()

	missing := NewWorkbookSource(filepath.Join(dir, "missing.xlsx"))
	if _, err := missing.ModTime(); err == nil {
		t.Error("ModTime on a missing file should fail")
	}
	if _, err := missing.HasSheet("x"); err == nil {
		t.Error("HasSheet on a missing file should fail")
	}

	textPath := filepath.Join(dir, "not-a-workbook.xlsx")
	if err := os.WriteFile(textPath, []byte("nome;cpf\nMaria;52998224725\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWorkbookSource(textPath).HasSheet("x"); err == nil {
		t.Error("a CSV file renamed to .xlsx should be rejected")
	}
}

func TestColumnIndex(t *testing.T) {
	tests := map[string]int{"A": 1, "p": 16, "Z": 26, "AA": 27, "AQ": 43, "": 0, "1": 0, "A1": 0}
	for in, want := range tests {
		if got := ColumnIndex(in); got != want {
			t.Errorf("ColumnIndex(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMemorySourceCountsReads(t *testing.T) {
	m := NewMemorySource(map[string][][]string{"S": {{"a", "b"}}})
	before, _ := m.ModTime()
	if v, _ := m.Cell("S", 1, 2); v != "b" {
		t.Errorf("Cell = %q", v)
	}
	if m.Reads() != 1 {
		t.Errorf("Reads = %d, want 1", m.Reads())
	}
	m.SetSheet("S", [][]string{{"c"}})
	after, _ := m.ModTime()
	if !after.After(before) {
		t.Error("SetSheet should advance the modification time")
	}
}
