package dsyscall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func TestFileTableFopenFreadFclose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(path, []byte("contents"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tbl := NewFileTable()
	m := newTestMachine()

	storeCString(t, m, 0x10000, path)
	storeCString(t, m, 0x10100, "r")
	m.Regs.Set(vm.RegA0, 0x10000)
	m.Regs.Set(vm.RegA1, 0x10100)
	if err := tbl.fopen(m); err != nil {
		t.Fatalf("fopen: %v", err)
	}
	id := m.Regs.Get(vm.RegA0)
	if id == 0 {
		t.Fatal("expected a non-zero file id")
	}

	m.Regs.Set(vm.RegA0, 0x10200)
	m.Regs.Set(vm.RegA1, 8)
	m.Regs.Set(vm.RegA2, id)
	if err := tbl.fread(m); err != nil {
		t.Fatalf("fread: %v", err)
	}
	if n := m.Regs.Get(vm.RegA0); n != 8 {
		t.Fatalf("fread returned %d bytes, want 8", n)
	}
	got, _ := m.Memory.LoadBytes(0x10200, 8)
	if string(got) != "contents" {
		t.Errorf("got %q, want %q", got, "contents")
	}

	m.Regs.Set(vm.RegA0, id)
	if err := tbl.fclose(m); err != nil {
		t.Fatalf("fclose: %v", err)
	}
	if _, ok := tbl.files[id]; ok {
		t.Error("expected the file to be removed from the table after fclose")
	}
}

func TestFileTableFopenNonexistentReturnsZero(t *testing.T) {
	tbl := NewFileTable()
	m := newTestMachine()

	storeCString(t, m, 0x10000, "/nonexistent/path/for/sure")
	storeCString(t, m, 0x10100, "r")
	m.Regs.Set(vm.RegA0, 0x10000)
	m.Regs.Set(vm.RegA1, 0x10100)
	if err := tbl.fopen(m); err != nil {
		t.Fatalf("fopen: %v", err)
	}
	if id := m.Regs.Get(vm.RegA0); id != 0 {
		t.Errorf("expected id 0 for a failed open, got %d", id)
	}
}

func TestFileTableFreadUnknownIDReturnsNegativeOne(t *testing.T) {
	tbl := NewFileTable()
	m := newTestMachine()
	m.Regs.Set(vm.RegA0, 0x10000)
	m.Regs.Set(vm.RegA1, 4)
	m.Regs.Set(vm.RegA2, 999)

	if err := tbl.fread(m); err != nil {
		t.Fatalf("fread: %v", err)
	}
	if n := int64(m.Regs.Get(vm.RegA0)); n != -1 {
		t.Errorf("got %d, want -1", n)
	}
}

func TestFileTableFtellAndFseek(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seek.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tbl := NewFileTable()
	m := newTestMachine()
	storeCString(t, m, 0x10000, path)
	storeCString(t, m, 0x10100, "r")
	m.Regs.Set(vm.RegA0, 0x10000)
	m.Regs.Set(vm.RegA1, 0x10100)
	if err := tbl.fopen(m); err != nil {
		t.Fatalf("fopen: %v", err)
	}
	id := m.Regs.Get(vm.RegA0)

	m.Regs.Set(vm.RegA0, id)
	m.Regs.Set(vm.RegA1, 5)
	m.Regs.Set(vm.RegA2, 0) // io.SeekStart
	if err := tbl.fseek(m); err != nil {
		t.Fatalf("fseek: %v", err)
	}

	m.Regs.Set(vm.RegA0, id)
	if err := tbl.ftell(m); err != nil {
		t.Fatalf("ftell: %v", err)
	}
	if pos := m.Regs.Get(vm.RegA0); pos != 5 {
		t.Errorf("ftell = %d, want 5", pos)
	}
}

func TestFileTableFerrorStartsFalse(t *testing.T) {
	tbl := NewFileTable()
	m := newTestMachine()
	m.Regs.Set(vm.RegA0, 123)
	if err := tbl.ferror(m); err != nil {
		t.Fatalf("ferror: %v", err)
	}
	if got := m.Regs.Get(vm.RegA0); got != 0 {
		t.Errorf("ferror for an untouched id = %d, want 0", got)
	}
}
