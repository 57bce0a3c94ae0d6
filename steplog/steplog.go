// Package steplog implements the per-step diagnostic logger: after each
// step it prints the VM's PC, every register, and the cycle count.
package steplog

import (
	"fmt"
	"io"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// Logger wraps a Machine, writing one formatted line of state to Out
// after each step.
type Logger struct {
	m    *vm.Machine
	Out  io.Writer
	next vm.Stepper
}

// New creates a step logger writing to out.
func New(m *vm.Machine, out io.Writer) *Logger {
	return &Logger{m: m, Out: out}
}

// Wrap installs another instrumentation layer to actually advance the
// machine when Step is called, so the logger composes with it instead of
// the two being mutually exclusive. Without a wrapped Stepper, Step falls
// back to stepping the Machine directly.
func (l *Logger) Wrap(s vm.Stepper) { l.next = s }

// Step runs the wrapped machine's Step (or, if Wrap installed one, another
// instrumentation layer's Step) and then logs its resulting state.
func (l *Logger) Step() (vm.StepOutcome, error) {
	var outcome vm.StepOutcome
	var err error
	if l.next != nil {
		outcome, err = l.next.Step()
	} else {
		outcome, err = l.m.Step()
	}
	l.logState()
	return outcome, err
}

func (l *Logger) logState() {
	fmt.Fprintf(l.Out, "pc=0x%016x cycles=%d", l.m.Regs.PC(), l.m.Regs.Cycles)
	for i := 0; i < vm.RegisterCount; i++ {
		fmt.Fprintf(l.Out, " x%d=0x%016x", i, l.m.Regs.Get(i))
	}
	fmt.Fprintln(l.Out)
}
