package gdbserver

import (
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func newTestSession() *session {
	m := vm.NewMachine(vm.ISAImc, vm.Version2, 1_000_000)
	return &session{target: NewTarget(m)}
}

func TestReadAllRegistersLength(t *testing.T) {
	sess := newTestSession()
	out := sess.readAllRegisters()
	if len(out) != 33*16 {
		t.Fatalf("len = %d, want %d (33 registers x 16 hex chars)", len(out), 33*16)
	}
}

func TestWriteThenReadAllRegistersRoundTrip(t *testing.T) {
	sess := newTestSession()
	sess.target.m.Regs.Set(5, 0x1122334455667788)
	sess.target.m.Regs.SetNextPC(0xcafebabe)
	sess.target.m.Regs.CommitPC()

	dump := sess.readAllRegisters()
	if reply := sess.writeAllRegisters(dump); reply != "OK" {
		t.Fatalf("writeAllRegisters = %q, want OK", reply)
	}
	if got := sess.target.m.Regs.Get(5); got != 0x1122334455667788 {
		t.Errorf("x5 = %#x after round trip, want 0x1122334455667788", got)
	}
}

func TestWriteAllRegistersRejectsShortPayload(t *testing.T) {
	sess := newTestSession()
	if reply := sess.writeAllRegisters("aabb"); reply != "E01" {
		t.Errorf("writeAllRegisters(short) = %q, want E01", reply)
	}
}

func TestReadRegisterSingle(t *testing.T) {
	sess := newTestSession()
	sess.target.m.Regs.Set(3, 0x42)
	reply := sess.readRegister("3")
	if reply != "4200000000000000" {
		t.Errorf("readRegister(3) = %q, want little-endian hex of 0x42", reply)
	}
}

func TestReadRegisterPCIndex32(t *testing.T) {
	sess := newTestSession()
	sess.target.m.Regs.SetNextPC(0x10)
	sess.target.m.Regs.CommitPC()
	reply := sess.readRegister("20") // 0x20 == 32 decimal, hex-encoded index
	if reply != "1000000000000000" {
		t.Errorf("readRegister(32) = %q, want little-endian hex of 0x10", reply)
	}
}

func TestReadRegisterOutOfRangeErrors(t *testing.T) {
	sess := newTestSession()
	if reply := sess.readRegister("21"); reply != "E01" { // hex 0x21 == 33
		t.Errorf("readRegister(33) = %q, want E01", reply)
	}
}

func TestWriteRegisterSetsValue(t *testing.T) {
	sess := newTestSession()
	// idx 5 (hex) = VALUE little-endian hex for 0x7
	reply := sess.writeRegister("5=0700000000000000")
	if reply != "OK" {
		t.Fatalf("writeRegister = %q, want OK", reply)
	}
	if got := sess.target.m.Regs.Get(5); got != 7 {
		t.Errorf("x5 = %d, want 7", got)
	}
}

func TestWriteRegisterMissingEqualsErrors(t *testing.T) {
	sess := newTestSession()
	if reply := sess.writeRegister("5_0700000000000000"); reply != "E01" {
		t.Errorf("writeRegister(no =) = %q, want E01", reply)
	}
}
