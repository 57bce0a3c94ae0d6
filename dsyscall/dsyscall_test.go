package dsyscall

import (
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func newTestMachine() *vm.Machine {
	m := vm.NewMachine(vm.ISAImc, vm.Version2, 1_000_000)
	m.Memory.InitPages(0x10000, vm.PageSize, 0, nil, 0)
	return m
}

func TestHandlerDeclinesUnknownSyscall(t *testing.T) {
	h := NewHandler(nil, "")
	m := newTestMachine()
	claimed, err := h.Handle(m, 12345)
	if claimed {
		t.Error("expected an unrecognized syscall number to be declined")
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadStreamReturnsChunksThenEOF(t *testing.T) {
	h := NewHandler([]byte("hello"), "")
	m := newTestMachine()
	m.Regs.Set(vm.RegA0, 0x10000)
	m.Regs.Set(vm.RegA1, 3)

	claimed, err := h.Handle(m, numReadStream)
	if !claimed || err != nil {
		t.Fatalf("Handle readStream: claimed=%v err=%v", claimed, err)
	}
	if n := m.Regs.Get(vm.RegA0); n != 3 {
		t.Fatalf("first read returned %d bytes, want 3", n)
	}
	got, err := m.Memory.LoadBytes(0x10000, 3)
	if err != nil || string(got) != "hel" {
		t.Fatalf("got %q, err %v, want \"hel\"", got, err)
	}

	m.Regs.Set(vm.RegA1, 10)
	if _, err := h.Handle(m, numReadStream); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if n := m.Regs.Get(vm.RegA0); n != 2 {
		t.Fatalf("second read returned %d bytes, want 2 (remaining)", n)
	}

	if _, err := h.Handle(m, numReadStream); err != nil {
		t.Fatalf("third Handle: %v", err)
	}
	if n := int64(m.Regs.Get(vm.RegA0)); n != -1 {
		t.Fatalf("exhausted stream should report -1, got %d", n)
	}
}

func TestRandomU64IsDeterministic(t *testing.T) {
	h1 := NewHandler(nil, "")
	h2 := NewHandler(nil, "")
	m1 := newTestMachine()
	m2 := newTestMachine()
	m1.Regs.Set(vm.RegA0, 0x10000)
	m2.Regs.Set(vm.RegA0, 0x10000)

	if _, err := h1.Handle(m1, numRandomU64); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, err := h2.Handle(m2, numRandomU64); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	v1, _ := m1.Memory.Load64(0x10000)
	v2, _ := m2.Memory.Load64(0x10000)
	if v1 != v2 {
		t.Errorf("expected deterministic random feed, got %#x and %#x", v1, v2)
	}
}

func TestElfDumpWithoutPathConfiguredFails(t *testing.T) {
	h := NewHandler(nil, "")
	m := newTestMachine()
	if _, err := h.Handle(m, numElfDump); err == nil {
		t.Error("expected an error when no dump path is configured")
	}
}

func storeCString(t *testing.T, m *vm.Machine, addr uint64, s string) {
	t.Helper()
	if err := m.Memory.StoreBytes(addr, append([]byte(s), 0)); err != nil {
		t.Fatalf("storeCString: %v", err)
	}
}

func TestReadCStringStopsAtNUL(t *testing.T) {
	m := newTestMachine()
	storeCString(t, m, 0x10000, "hello")

	s, err := readCString(m, 0x10000)
	if err != nil {
		t.Fatalf("readCString: %v", err)
	}
	if s != "hello" {
		t.Errorf("got %q, want %q", s, "hello")
	}
}
