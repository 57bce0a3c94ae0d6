// Package overlap implements the heap/stack overlap detector: it tracks
// the _sbrk heap top and faults if the stack pointer ever drops below it.
package overlap

import (
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// SbrkObserver reports the register snapshots a profiler took around a
// frame's call and return, keyed by that frame's entry address.
type SbrkObserver interface {
	CallerInitialIncrement(addr uint64) (uint64, bool)
	ReturnPointer(addr uint64) (uint64, bool)
}

// Detector wraps a Machine, checking sp against the tracked heap top
// before every step without the wrapped machine knowing it is observed.
type Detector struct {
	m         *vm.Machine
	sbrkHeap  uint64
	sbrkEntry uint64 // address of the _sbrk symbol, 0 if unknown
	next      vm.Stepper
	observer  SbrkObserver
}

// New creates a detector seeded with the _end symbol's address (the
// initial heap top) and the _sbrk symbol's address (where a return
// triggers a heap-top update).
func New(m *vm.Machine, endAddr, sbrkAddr uint64) *Detector {
	return &Detector{m: m, sbrkHeap: endAddr, sbrkEntry: sbrkAddr}
}

// Wrap installs another instrumentation layer (a profiler, typically) to
// actually advance the machine when Step is called, so the overlap check
// composes with it instead of the two being mutually exclusive. Without a
// wrapped Stepper, Step falls back to stepping the Machine directly.
func (d *Detector) Wrap(s vm.Stepper) { d.next = s }

// SbrkEntry reports the _sbrk entry address this detector watches for
// returns from, so a profiler observing the same machine can notify it.
func (d *Detector) SbrkEntry() uint64 { return d.sbrkEntry }

// WatchSbrk installs a profiler (or anything else recording call/return
// register snapshots by frame) to poll before every step for an observed
// _sbrk return, keeping the tracked heap top current across the run
// instead of only once after it ends.
func (d *Detector) WatchSbrk(obs SbrkObserver) { d.observer = obs }

// OnSbrkReturn updates the tracked heap top after a profiler observes a
// return from a frame whose entry was _sbrk: new_heap = initial increment
// (captured at call time, regs[0][A0]) + the returned pointer (regs[1][A0]).
func (d *Detector) OnSbrkReturn(callA0, returnA0 uint64) {
	d.sbrkHeap = callA0 + returnA0
}

// CheckBeforeStep must be called immediately before the wrapped machine's
// Step; it fails if the stack pointer has dropped below the tracked heap
// top.
func (d *Detector) CheckBeforeStep() error {
	if d.observer != nil && d.sbrkEntry != 0 {
		if callA0, ok := d.observer.CallerInitialIncrement(d.sbrkEntry); ok {
			if retA0, ok := d.observer.ReturnPointer(d.sbrkEntry); ok {
				d.OnSbrkReturn(callA0, retA0)
			}
		}
	}

	sp := d.m.Regs.Get(vm.RegSP)
	if sp < d.sbrkHeap {
		return errs.Overlap(sp, d.sbrkHeap)
	}
	return nil
}

// Step runs the overlap check and then steps the wrapped machine,
// composing transparently with Machine.Step's signature.
func (d *Detector) Step() (vm.StepOutcome, error) {
	if err := d.CheckBeforeStep(); err != nil {
		return vm.Failed, err
	}
	if d.next != nil {
		return d.next.Step()
	}
	return d.m.Step()
}
