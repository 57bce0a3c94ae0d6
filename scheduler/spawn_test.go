package scheduler

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// buildMinimalELF writes a single-PT_LOAD ELF64 RV64 image around code,
// loaded and entered at addr.
func buildMinimalELF(addr uint64, code []byte) []byte {
	const ehdrSize = 64
	const phdrSize = 56

	var buf bytes.Buffer
	le := binary.LittleEndian
	w16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf.Write(b[:]) }
	w32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }
	w64 := func(v uint64) { var b [8]byte; le.PutUint64(b[:], v); buf.Write(b[:]) }

	phoff := uint64(ehdrSize)
	dataOff := phoff + phdrSize

	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2
	ident[5] = 1
	ident[6] = 1
	buf.Write(ident[:])

	w16(2)
	w16(243)
	w32(1)
	w64(addr)
	w64(phoff)
	w64(0)
	w32(1)
	w16(ehdrSize)
	w16(phdrSize)
	w16(1)
	w16(0)
	w16(0)
	w16(0)

	w32(1)
	w32(0x4 | 0x1)
	w64(dataOff)
	w64(addr)
	w64(addr)
	w64(uint64(len(code)))
	w64(uint64(len(code)))
	w64(vm.PageSize)

	buf.Write(code)
	return buf.Bytes()
}

// rootProgram spawns a code cell indexed 0, waits on it, then exits with
// whatever code the spawned child exited with.
var rootProgram = []byte{
	0x13, 0x05, 0x00, 0x00, // addi a0, x0, 0    (cell index)
	0x93, 0x05, 0x00, 0x00, // addi a1, x0, 0    (argv ptr, unused: argc=0)
	0x13, 0x06, 0x00, 0x00, // addi a2, x0, 0    (argc)
	0x93, 0x08, 0xf0, 0x7f, // addi a7, x0, 2047
	0x93, 0x88, 0xa8, 0x22, // addi a7, a7, 554  (a7 = 2601, numSpawn)
	0x73, 0x00, 0x00, 0x00, // ecall             (spawn -> a0 = child id)
	0x93, 0x08, 0xf0, 0x7f, // addi a7, x0, 2047
	0x93, 0x88, 0x08, 0x23, // addi a7, a7, 560  (a7 = 2607, numWait)
	0x73, 0x00, 0x00, 0x00, // ecall             (wait on a0 -> yields)
	0x93, 0x08, 0xd0, 0x05, // addi a7, x0, 93   (SyscallExit)
	0x73, 0x00, 0x00, 0x00, // ecall             (exit with a0 = child's code)
}

// childProgram exits immediately with code 7.
var childProgram = []byte{
	0x93, 0x08, 0xd0, 0x05, // addi a7, x0, 93 (SyscallExit)
	0x13, 0x05, 0x70, 0x00, // addi a0, x0, 7
	0x73, 0x00, 0x00, 0x00, // ecall
}

func TestSpawnSyscallDriveRootWaitsForChildExit(t *testing.T) {
	root := vm.NewMachine(vm.ISAImc, vm.Version1, 1_000_000)
	if _, err := root.LoadProgram(buildMinimalELF(0x1000, rootProgram), nil); err != nil {
		t.Fatalf("LoadProgram(root): %v", err)
	}

	sched := New(root, 1_000_000)
	resolve := func(cellIndex uint64) ([]byte, error) {
		return buildMinimalELF(0x2000, childProgram), nil
	}
	root.Syscalls = []vm.SyscallHandler{&SpawnSyscall{Sched: sched, SelfID: RootVMID, Resolve: resolve}}

	outcome, err := sched.DriveRoot(RootVMID, nil)
	if err != nil {
		t.Fatalf("DriveRoot: %v", err)
	}
	if outcome != vm.Exited {
		t.Fatalf("outcome = %v, want Exited", outcome)
	}
	if root.ExitCode != 7 {
		t.Errorf("root exit code = %d, want 7 (propagated from the spawned child)", root.ExitCode)
	}
}

func TestCompleteWaitErrorsWhenTargetUnfinished(t *testing.T) {
	root := vm.NewMachine(vm.ISAImc, vm.Version1, 1_000_000)
	sched := New(root, 1_000_000)
	child := vm.NewMachine(vm.ISAImc, vm.Version1, 1_000_000)
	childID := sched.Spawn(RootVMID, child)

	sched.setPendingWait(RootVMID, childID)
	if err := sched.CompleteWait(RootVMID); err == nil {
		t.Error("expected an error completing a wait whose target hasn't finished")
	}
}
