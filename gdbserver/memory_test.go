package gdbserver

import (
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func newMemTestSession() *session {
	m := vm.NewMachine(vm.ISAImc, vm.Version2, 1_000_000)
	m.Memory.InitPages(0x1000, vm.PageSize, 0, nil, 0)
	return &session{target: NewTarget(m)}
}

func TestReadMemoryReturnsHex(t *testing.T) {
	sess := newMemTestSession()
	sess.target.m.Memory.StoreBytes(0x1000, []byte{0xde, 0xad})
	reply := sess.readMemory("1000,2")
	if reply != "dead" {
		t.Errorf("readMemory = %q, want %q", reply, "dead")
	}
}

func TestReadMemoryBadSpecErrors(t *testing.T) {
	sess := newMemTestSession()
	if reply := sess.readMemory("not-a-spec"); reply != "E01" {
		t.Errorf("readMemory(bad) = %q, want E01", reply)
	}
}

func TestWriteMemoryStoresBytes(t *testing.T) {
	sess := newMemTestSession()
	reply := sess.writeMemory("1000,2:beef")
	if reply != "OK" {
		t.Fatalf("writeMemory = %q, want OK", reply)
	}
	b, err := sess.target.m.Memory.LoadBytes(0x1000, 2)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if b[0] != 0xbe || b[1] != 0xef {
		t.Errorf("stored bytes = %x, want beef", b)
	}
}

func TestWriteMemoryLengthMismatchErrors(t *testing.T) {
	sess := newMemTestSession()
	if reply := sess.writeMemory("1000,4:beef"); reply != "E01" {
		t.Errorf("writeMemory(mismatched length) = %q, want E01", reply)
	}
}

func TestWriteMemoryMissingColonErrors(t *testing.T) {
	sess := newMemTestSession()
	if reply := sess.writeMemory("1000,2beef"); reply != "E01" {
		t.Errorf("writeMemory(no colon) = %q, want E01", reply)
	}
}

func TestParseAddrLen(t *testing.T) {
	addr, length, ok := parseAddrLen("7fff,10")
	if !ok || addr != 0x7fff || length != 0x10 {
		t.Errorf("parseAddrLen = (%#x, %#x, %v), want (0x7fff, 0x10, true)", addr, length, ok)
	}
	if _, _, ok := parseAddrLen("no-comma-here"); ok {
		t.Error("expected a missing comma to fail parsing")
	}
}
