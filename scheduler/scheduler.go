// Package scheduler implements machine composition: a root VM and its
// spawned children, cooperative cycle accounting across them, and the
// yield/resume protocol a spawn-style syscall suspends on.
package scheduler

import (
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// RootVMID names the scheduler's top-level VM; every spawn creates a
// fresh id with a parent link back toward it.
const RootVMID = 0

// VMState is the lifecycle stage of one scheduled VM.
type VMState int

const (
	StateRunning VMState = iota
	StateSuspended
	StateDone
)

// instance is the scheduler's record for one VM: the machine itself, its
// parent id, its current state, its result once done, and the id it is
// currently blocked on (set by a wait syscall, consumed by CompleteWait).
type instance struct {
	machine  *vm.Machine
	parentID int
	state    VMState
	exitCode int8
	err      error

	pendingWaitTarget int
}

// Scheduler owns every VM instance spawned during one run and multiplexes
// cycles across them, single-threaded and cooperative.
type Scheduler struct {
	instances map[int]*instance
	nextID    int
	maxBudget uint64
	consumed  uint64

	currentIterationCycles uint64
}

// New creates a scheduler around a root machine with the given overall
// cycle budget shared across every VM it ever spawns.
func New(root *vm.Machine, maxBudget uint64) *Scheduler {
	s := &Scheduler{
		instances: make(map[int]*instance),
		nextID:    RootVMID + 1,
		maxBudget: maxBudget,
	}
	s.instances[RootVMID] = &instance{machine: root, parentID: -1, state: StateRunning}
	return s
}

// Spawn registers a new child VM under parentID and returns its id.
func (s *Scheduler) Spawn(parentID int, child *vm.Machine) int {
	id := s.nextID
	s.nextID++
	s.instances[id] = &instance{machine: child, parentID: parentID, state: StateRunning}
	return id
}

// Machine returns the Machine backing a given VM id.
func (s *Scheduler) Machine(id int) (*vm.Machine, bool) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return inst.machine, true
}

// Suspend transitions a VM to suspended, typically because its ecall
// returned errs.ErrYield.
func (s *Scheduler) Suspend(id int) {
	if inst, ok := s.instances[id]; ok {
		inst.state = StateSuspended
	}
}

// Resume transitions a suspended VM back to running.
func (s *Scheduler) Resume(id int) {
	if inst, ok := s.instances[id]; ok {
		inst.state = StateRunning
	}
}

// Done records id's exit code and error (nil on success) and marks it
// finished.
func (s *Scheduler) Done(id int, exitCode int8, err error) {
	if inst, ok := s.instances[id]; ok {
		inst.state = StateDone
		inst.exitCode = exitCode
		inst.err = err
	}
}

// Result returns the recorded outcome for a finished VM.
func (s *Scheduler) Result(id int) (exitCode int8, err error, done bool) {
	inst, ok := s.instances[id]
	if !ok || inst.state != StateDone {
		return 0, nil, false
	}
	return inst.exitCode, inst.err, true
}

// runnable picks the next VM eligible to run other than self, in
// ascending id order for determinism.
func (s *Scheduler) runnable(self int) (int, bool) {
	for id := 0; id < s.nextID; id++ {
		if id == self {
			continue
		}
		if inst, ok := s.instances[id]; ok && inst.state == StateRunning {
			return id, true
		}
	}
	return 0, false
}

// ChargeIteration attributes cost cycles of the current iteration to id,
// atomically: each iteration's cycles are fully attributed to exactly one
// VM before the next iteration runs.
func (s *Scheduler) ChargeIteration(id int, cost uint64) error {
	next := s.consumed + cost
	if next > s.maxBudget {
		return errs.Cycle(0, next, s.maxBudget)
	}
	s.consumed = next
	s.currentIterationCycles = cost
	return nil
}

// Wait runs the scheduler's multiplexing loop on behalf of id: it steps
// the other runnable VMs, lowest id first, and returns once no VM other
// than id remains runnable.
func (s *Scheduler) Wait(id int) error {
	for {
		s.currentIterationCycles = 0

		next, ok := s.runnable(id)
		if !ok {
			return nil
		}
		if next == id {
			return nil
		}

		before := s.instances[next].machine.Regs.Cycles
		outcome, err := s.instances[next].machine.Step()
		after := s.instances[next].machine.Regs.Cycles
		cost := after - before
		if chargeErr := s.ChargeIteration(next, cost); chargeErr != nil {
			return chargeErr
		}

		switch outcome {
		case vm.Exited:
			s.Done(next, s.instances[next].machine.ExitCode, err)
		case vm.Failed:
			s.Done(next, -1, err)
		case vm.Yielded:
			s.Suspend(next)
		}
	}
}

// ConsumedCycles returns the total cycles attributed across every VM this
// scheduler has ever run.
func (s *Scheduler) ConsumedCycles() uint64 { return s.consumed }

// setPendingWait records that id is blocked on target, for CompleteWait to
// consume once target has finished.
func (s *Scheduler) setPendingWait(id, target int) {
	if inst, ok := s.instances[id]; ok {
		inst.pendingWaitTarget = target
	}
}

// CompleteWait fills in id's pending wait (set by a prior wait syscall)
// with its target's exit code, written into the waiting machine's a0
// register, the RISC-V calling convention's first return-value register.
// Must only be called after id's target has actually finished; callers
// typically arrange that by calling Wait(id) first.
func (s *Scheduler) CompleteWait(id int) error {
	inst, ok := s.instances[id]
	if !ok {
		return nil
	}
	exitCode, _, done := s.Result(inst.pendingWaitTarget)
	if !done {
		return errs.External("wait: target vm %d never finished", inst.pendingWaitTarget)
	}
	inst.machine.Regs.Set(vm.RegA0, uint64(uint8(exitCode)))
	return nil
}

// DriveRoot runs id to completion the way Machine.Run does for a single
// machine, except a Yielded step (id's own ecall asked to wait on another
// VM) is handled by draining every other runnable VM via Wait before
// resuming id with its target's result: a VM observes the completion of
// what it waited on before its yielding ecall returns. step, if non-nil,
// steps id itself instead of its bare Machine, letting instrumentation
// layers (profiler, overlap, step logger) wrap the root's own execution
// while spawned children are multiplexed by Wait's direct, uninstrumented
// Machine.Step calls.
func (s *Scheduler) DriveRoot(id int, step vm.Stepper) (vm.StepOutcome, error) {
	inst, ok := s.instances[id]
	if !ok {
		return vm.Failed, errs.External("scheduler: unknown vm id %d", id)
	}
	if step == nil {
		step = inst.machine
	}
	for {
		before := inst.machine.Regs.Cycles
		outcome, err := step.Step()
		after := inst.machine.Regs.Cycles
		if chargeErr := s.ChargeIteration(id, after-before); chargeErr != nil {
			return vm.Failed, chargeErr
		}

		switch outcome {
		case vm.Yielded:
			s.Suspend(id)
			if waitErr := s.Wait(id); waitErr != nil {
				return vm.Failed, waitErr
			}
			if completeErr := s.CompleteWait(id); completeErr != nil {
				return vm.Failed, completeErr
			}
			s.Resume(id)
		case vm.Continue:
			continue
		default:
			return outcome, err
		}
	}
}
