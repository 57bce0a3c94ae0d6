// Package profiler implements the call-graph profiler: a runtime
// stack-trie built by observing control-transfer instructions, with
// DWARF-backed symbolization and flame-graph/stack-trace emission.
//
// Nodes are held in a flat arena and referenced by integer index rather
// than by pointer, so the trie never needs Rc/RefCell-style shared
// mutable ownership: a child only ever needs its parent's index to walk
// upward, and the arena owns every node's lifetime uniformly.
package profiler

import (
	"fmt"
	"io"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// RegSnapshot is a cheap copy of the 32 general-purpose registers taken
// at a call or a return.
type RegSnapshot [32]uint64

// node is one stack-trie frame: the function entry address, the link
// (return) address this frame would return to, the PC last executing in
// it, parent/children by arena index, accumulated cycles, and register
// snapshots at call and at return.
type node struct {
	entry    uint64
	link     uint64
	pc       uint64
	parent   int // -1 for the root
	children []int
	cycles   uint64
	callRegs RegSnapshot
	retRegs  RegSnapshot
}

// Symbolizer resolves an address to file/line/function via DWARF (or any
// other debug-info backend); Lookup returns empty strings for whatever is
// not known, which the profiler renders as "??".
type Symbolizer interface {
	Lookup(addr uint64) (file, function string, line int)
	IsFunctionEntry(addr uint64) bool
}

// Profiler observes a Machine's executed instructions and maintains the
// stack-trie, without the wrapped machine knowing it is observed.
type Profiler struct {
	m       *vm.Machine
	sym     Symbolizer
	arena   []node
	active  int
	tagCache map[uint64][3]string
	next     vm.Stepper
}

// New creates a profiler rooted at entry (the VM's entry point).
func New(m *vm.Machine, sym Symbolizer, entry uint64) *Profiler {
	p := &Profiler{m: m, sym: sym, tagCache: make(map[uint64][3]string)}
	p.arena = append(p.arena, node{entry: entry, parent: -1})
	p.active = 0
	return p
}

// Wrap installs another instrumentation layer to actually advance the
// machine when Step is called, so the profiler composes with it instead
// of the two being mutually exclusive. Without a wrapped Stepper, Step
// falls back to stepping the Machine directly.
func (p *Profiler) Wrap(s vm.Stepper) { p.next = s }

// Step runs the wrapped machine's Step (or, if Wrap installed one,
// another instrumentation layer's Step), then observes the executed
// instruction for a call/jump/return transition and accumulates its
// cycle cost into the currently active frame.
func (p *Profiler) Step() (vm.StepOutcome, error) {
	pc := p.m.Regs.PC()
	before := p.m.Regs.Cycles
	inst, decodeErr := p.m.Decoder.Decode(p.m.Memory, pc)

	var outcome vm.StepOutcome
	var err error
	if p.next != nil {
		outcome, err = p.next.Step()
	} else {
		outcome, err = p.m.Step()
	}
	after := p.m.Regs.Cycles
	p.arena[p.active].cycles += after - before
	p.arena[p.active].pc = pc

	if decodeErr == nil && isControlTransfer(inst.Mnemonic) {
		target := p.m.Regs.PC()
		link := pc + uint64(inst.Length)
		p.observeTransfer(target, link)
	}
	return outcome, err
}

func isControlTransfer(mnemonic string) bool {
	switch mnemonic {
	case "jal", "jalr", "mopfuse.farjumpabs", "mopfuse.farjumprel":
		return true
	}
	return false
}

// observeTransfer decides between a call (target is a known function
// entry: push a child frame) and a jump/return (walk ancestors for a
// matching link; pop to that ancestor's parent, or stay if this is a
// tail-call to another function whose link no ancestor recognizes).
func (p *Profiler) observeTransfer(target, link uint64) {
	if p.sym.IsFunctionEntry(target) {
		child := node{entry: target, link: link, pc: target, parent: p.active, callRegs: p.snapshotRegs()}
		p.arena = append(p.arena, child)
		childIdx := len(p.arena) - 1
		p.arena[p.active].children = append(p.arena[p.active].children, childIdx)
		p.active = childIdx
		return
	}

	for cur := p.active; cur != -1; cur = p.arena[cur].parent {
		if p.arena[cur].link == target {
			p.arena[cur].retRegs = p.snapshotRegs()
			p.active = p.arena[cur].parent
			if p.active == -1 {
				p.active = 0
			}
			return
		}
	}
	// No ancestor's link matches: a tail call to another function. Stay
	// in the current frame.
}

func (p *Profiler) snapshotRegs() RegSnapshot {
	var snap RegSnapshot
	for i := 0; i < 32; i++ {
		snap[i] = p.m.Regs.Get(i)
	}
	return snap
}

// CallerInitialIncrement returns regs[0][A0] of the frame whose entry
// address is addr, for the overlap detector's _sbrk bookkeeping.
func (p *Profiler) CallerInitialIncrement(addr uint64) (uint64, bool) {
	for i := range p.arena {
		if p.arena[i].entry == addr {
			return p.arena[i].callRegs[vm.RegA0], true
		}
	}
	return 0, false
}

// ReturnPointer returns regs[1][A0] of the frame whose entry address is
// addr, for the same bookkeeping.
func (p *Profiler) ReturnPointer(addr uint64) (uint64, bool) {
	for i := range p.arena {
		if p.arena[i].entry == addr {
			return p.arena[i].retRegs[vm.RegA0], true
		}
	}
	return 0, false
}

func (p *Profiler) getTag(addr uint64) [3]string {
	if tag, ok := p.tagCache[addr]; ok {
		return tag
	}
	file, fn, line := p.sym.Lookup(addr)
	if file == "" {
		file = "??"
	}
	if fn == "" {
		fn = "??"
	}
	tag := [3]string{file, fmt.Sprintf("%d", line), fn}
	p.tagCache[addr] = tag
	return tag
}

// DisplayStacktrace walks from the active frame to the root, printing
// file:line:func per frame with the root last.
func (p *Profiler) DisplayStacktrace(out io.Writer) {
	var frames []string
	for cur := p.active; cur != -1; cur = p.arena[cur].parent {
		tag := p.getTag(p.arena[cur].pc)
		frames = append(frames, fmt.Sprintf("%s:%s:%s", tag[0], tag[1], tag[2]))
	}
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintln(out, frames[i])
	}
}

// DisplayFlamegraph DFS-walks the trie, printing one collapsed-stack line
// per leaf path: "frame0;frame1;...;frameN count".
func (p *Profiler) DisplayFlamegraph(out io.Writer) {
	p.walkFlamegraph(out, 0, nil)
}

func (p *Profiler) walkFlamegraph(out io.Writer, idx int, stack []string) {
	tag := p.getTag(p.arena[idx].entry)
	frame := fmt.Sprintf("%s:%s", tag[0], tag[2])
	stack = append(stack, frame)

	if len(p.arena[idx].children) == 0 {
		joined := stack[0]
		for _, s := range stack[1:] {
			joined += ";" + s
		}
		fmt.Fprintf(out, "%s %d\n", joined, p.arena[idx].cycles)
		return
	}
	for _, child := range p.arena[idx].children {
		p.walkFlamegraph(out, child, stack)
	}
}
