package vm

import (
	"debug/elf"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

// StepOutcome distinguishes a step's control result from an error: Yielded
// and Exited are ordinary ways a step can end, not failures, whereas
// Failed wraps whatever error the step actually hit.
type StepOutcome int

const (
	Continue StepOutcome = iota
	Yielded
	Exited
	Break
	Failed
)

// Stepper is anything that advances a machine one step, whether the bare
// Machine itself or an instrumentation layer (profiler, overlap detector,
// step logger) wrapping another Stepper around it.
type Stepper interface {
	Step() (StepOutcome, error)
}

// SyscallHandler claims or declines a syscall number; the first handler in
// a Machine's chain that claims it runs to completion. An unclaimed
// syscall is an error.
type SyscallHandler interface {
	Handle(m *Machine, number uint64) (claimed bool, err error)
}

// Machine is one VM instance: register file, memory, decoder, ISA/version
// mask, running state, exit code, and its ordered syscall chain.
type Machine struct {
	Regs    *RegisterFile
	Memory  *Memory
	Decoder *Decoder

	ISA        uint32
	Version    uint32
	Running    bool
	ExitCode   int8
	ResetFlag  bool
	EntryPoint uint64

	Syscalls []SyscallHandler
}

// NewMachine builds a machine with the given ISA mask, script version, and
// cycle budget; memory and the decoder start empty.
func NewMachine(isa uint32, version uint32, maxCycles uint64) *Machine {
	return &Machine{
		Regs:    NewRegisterFile(maxCycles),
		Memory:  NewMemory(),
		Decoder: NewDecoder(isa),
		ISA:     isa,
		Version: version,
	}
}

// Step decodes and executes one instruction, charging its cycle cost
// before execution. A cycle-budget overrun leaves the register file's
// cycle counter unchanged and fails the step.
func (m *Machine) Step() (StepOutcome, error) {
	if m.ISA&ISAMop != 0 && m.Version == Version0 {
		return Failed, errs.InvalidVersion("MOP extension requires script version >= 1")
	}

	inst, err := m.Decoder.Decode(m.Memory, m.Regs.PC())
	if err != nil {
		return Failed, err
	}
	if _, ok := m.Regs.ChargeCycles(cycleCost(inst)); !ok {
		return Failed, errs.Cycle(m.Regs.PC(), m.Regs.Cycles, m.Regs.MaxCycle)
	}

	sig, err := execute(m.Regs, m.Memory, inst)
	if err != nil {
		return Failed, err
	}
	m.Regs.CommitPC()

	switch sig {
	case sigECall:
		return m.ecall()
	case sigEBreak:
		return Break, nil
	default:
		return Continue, nil
	}
}

// ecall walks the syscall chain in order; the first handler to claim the
// syscall number (in A7) runs it. SyscallExit is handled directly: it
// stops the machine and records the exit code from A0.
func (m *Machine) ecall() (StepOutcome, error) {
	number := m.Regs.Get(RegA7)
	if number == SyscallExit {
		m.Running = false
		m.ExitCode = int8(m.Regs.Get(RegA0))
		return Exited, nil
	}

	for _, h := range m.Syscalls {
		claimed, err := h.Handle(m, number)
		if err != nil {
			if errs.KindOf(err) == errs.KindYield {
				return Yielded, err
			}
			return Failed, err
		}
		if claimed {
			return Continue, nil
		}
	}
	return Failed, errs.External("unclaimed syscall number %d", number)
}

// Run steps until the machine stops running or a non-Continue outcome is
// reached, invalidating the decoder cache whenever ResetFlag is observed.
func (m *Machine) Run() (StepOutcome, error) {
	m.Running = true
	for m.Running {
		if m.ResetFlag {
			m.Decoder.Reset()
			m.ResetFlag = false
		}
		outcome, err := m.Step()
		if outcome != Continue {
			return outcome, err
		}
	}
	return Exited, nil
}

// stackTop is where argv and the initial stack pointer are laid out,
// leaving headroom below the top of the address space.
const stackTop = 0x7fff_fff0_0000

// LoadProgram parses an ELF64 RV64 binary, installs its LOAD segments as
// executable/writable pages, lays out argv on the stack, and sets PC to
// the entry point. It returns the total number of bytes transferred into
// memory, which the caller charges a per-byte "transferred" cycle cost for.
func (m *Machine) LoadProgram(elfBytes []byte, args []string) (uint64, error) {
	f, err := elf.NewFile(newReaderAt(elfBytes))
	if err != nil {
		return 0, errs.External("parse ELF: %v", err)
	}
	defer f.Close()

	var transferred uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		flags := byte(FlagFreezed)
		if prog.Flags&elf.PF_X != 0 {
			flags = FlagExecutable
		} else if prog.Flags&elf.PF_W != 0 {
			flags = 0
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return 0, errs.External("read ELF segment: %v", err)
		}
		m.Memory.InitPages(prog.Vaddr, prog.Memsz, flags, data, 0)
		transferred += prog.Memsz
	}

	sp := layoutArgv(m.Memory, args)
	m.Regs.Set(RegSP, sp)
	m.Regs.SetNextPC(f.Entry)
	m.Regs.CommitPC()
	m.EntryPoint = f.Entry
	m.Running = true

	return transferred, nil
}

// layoutArgv writes argc, an argv pointer table, and the argument bytes
// themselves just below the stack top, RISC-V calling-convention style,
// and returns the resulting stack pointer.
func layoutArgv(mem *Memory, args []string) uint64 {
	sp := uint64(stackTop)

	ptrs := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		s := args[i]
		sp -= uint64(len(s) + 1)
		sp &^= 0x7
		mem.StoreBytes(sp, append([]byte(s), 0))
		ptrs[i] = sp
	}

	sp -= 8 // NULL argv terminator
	sp &^= 0x7
	mem.Store64(sp, 0)

	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8
		mem.Store64(sp, ptrs[i])
	}

	sp -= 8
	mem.Store64(sp, uint64(len(args)))

	return sp
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, errs.External("ELF read out of bounds at offset %d", off)
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, errs.External("short ELF read at offset %d", off)
	}
	return n, nil
}

func newReaderAt(data []byte) byteReaderAt { return byteReaderAt(data) }
