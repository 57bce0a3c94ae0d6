package scheduler

import (
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// Guest-visible syscall numbers for machine composition. Not present in
// the kept original source files (ckb-vm's spawn/wait group lives outside
// the debugger repo this was distilled from); chosen in the 2600s per the
// public ckb-vm spawn-syscall convention and documented here rather than
// traced to a specific file.
const (
	numSpawn = 2601
	numWait  = 2607
)

const maxArgvWords = 256

// CodeResolver fetches the executable bytes a guest spawn names by
// index (an index into the script group's cell deps, per script group
// code extraction).
type CodeResolver func(cellIndex uint64) ([]byte, error)

// SpawnSyscall implements vm.SyscallHandler for the two syscalls that
// drive machine composition: spawn registers a new child VM with this
// handler's Scheduler and returns immediately with its id; wait suspends
// the caller with errs.ErrYield so the owning driver loop can multiplex
// every other runnable VM before resuming it with the target's result.
type SpawnSyscall struct {
	Sched   *Scheduler
	SelfID  int
	Resolve CodeResolver
}

// Handle claims numSpawn and numWait, declining everything else.
func (h *SpawnSyscall) Handle(m *vm.Machine, number uint64) (bool, error) {
	switch number {
	case numSpawn:
		return true, h.spawn(m)
	case numWait:
		return true, h.wait(m)
	}
	return false, nil
}

// spawn reads (cell_index, argv_ptr, argc) from a0/a1/a2, resolves the
// named cell's code, loads a child machine sharing this machine's ISA,
// version, and syscall chain, and registers it with the scheduler under
// a fresh id, written back into a0.
func (h *SpawnSyscall) spawn(m *vm.Machine) error {
	cellIndex := m.Regs.Get(vm.RegA0)
	argvPtr := m.Regs.Get(vm.RegA1)
	argc := m.Regs.Get(vm.RegA2)

	code, err := h.Resolve(cellIndex)
	if err != nil {
		return err
	}
	argv, err := readArgv(m.Memory, argvPtr, argc)
	if err != nil {
		return err
	}

	remaining := m.Regs.MaxCycle - m.Regs.Cycles
	child := vm.NewMachine(m.ISA, m.Version, remaining)
	if _, err := child.LoadProgram(code, argv); err != nil {
		return err
	}

	childID := h.Sched.Spawn(h.SelfID, child)
	childHandler := &SpawnSyscall{Sched: h.Sched, SelfID: childID, Resolve: h.Resolve}
	child.Syscalls = append([]vm.SyscallHandler{childHandler}, withoutSpawnSyscalls(m.Syscalls)...)

	m.Regs.Set(vm.RegA0, uint64(childID))
	return nil
}

// wait reads a target VM id from a0, records it as this VM's pending wait,
// and yields; the driving loop (Scheduler.DriveRoot) is responsible for
// draining every other runnable VM and calling CompleteWait before
// resuming this one.
func (h *SpawnSyscall) wait(m *vm.Machine) error {
	target := int(m.Regs.Get(vm.RegA0))
	h.Sched.setPendingWait(h.SelfID, target)
	return errs.ErrYield
}

// withoutSpawnSyscalls drops any inherited SpawnSyscall handlers (they're
// bound to the wrong SelfID for a child) so a child's chain carries
// exactly one, its own, ahead of whatever else the parent wired in.
func withoutSpawnSyscalls(chain []vm.SyscallHandler) []vm.SyscallHandler {
	out := make([]vm.SyscallHandler, 0, len(chain))
	for _, h := range chain {
		if _, ok := h.(*SpawnSyscall); ok {
			continue
		}
		out = append(out, h)
	}
	return out
}

// readArgv fetches a NUL-terminated argv array: argc pointers at argvPtr,
// each pointing at a NUL-terminated string, fetched 8 bytes at a time and
// capped at maxArgvWords per string against a hostile or malformed guest.
func readArgv(mem *vm.Memory, argvPtr uint64, argc uint64) ([]string, error) {
	argv := make([]string, argc)
	for i := uint64(0); i < argc; i++ {
		ptr, err := mem.Load64(argvPtr + i*8)
		if err != nil {
			return nil, err
		}
		s, err := readCString(mem, ptr)
		if err != nil {
			return nil, err
		}
		argv[i] = s
	}
	return argv, nil
}

func readCString(mem *vm.Memory, addr uint64) (string, error) {
	var b []byte
	for i := 0; i < maxArgvWords; i++ {
		word, err := mem.LoadBytes(addr+uint64(i*8), 8)
		if err != nil {
			return "", err
		}
		for _, c := range word {
			if c == 0 {
				return string(b), nil
			}
			b = append(b, c)
		}
	}
	return "", errs.External("guest argv string at 0x%016x exceeds %d words", addr, maxArgvWords)
}
