// Package errs defines the error taxonomy shared by every component of the
// debugger: decode, memory, cycle-budget, version, yield, overlap, and
// external/usage errors. Consumers type-switch or errors.As on these to
// decide how to report a run.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags a failure the way the driver's user-visible output wants to
// report it: Ok, or one of the taxonomy buckets below.
type Kind int

const (
	KindDecode Kind = iota
	KindMemory
	KindCycle
	KindInvalidVersion
	KindYield
	KindOverlap
	KindExternal
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "Decode"
	case KindMemory:
		return "Memory"
	case KindCycle:
		return "CyclesExceeded"
	case KindInvalidVersion:
		return "InvalidVersion"
	case KindYield:
		return "Yield"
	case KindOverlap:
		return "Overlap"
	case KindExternal:
		return "External"
	case KindUsage:
		return "Usage"
	default:
		return "Unknown"
	}
}

// VMError is the common shape for every error the VM layer raises. It
// carries the PC at the point of failure so the driver can render it
// alongside a profiler stack trace.
type VMError struct {
	Kind    Kind
	PC      uint64
	Message string
	Wrapped error
}

func (e *VMError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s at pc=0x%016x: %s: %v", e.Kind, e.PC, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s at pc=0x%016x: %s", e.Kind, e.PC, e.Message)
}

func (e *VMError) Unwrap() error { return e.Wrapped }

func newf(kind Kind, pc uint64, format string, args ...interface{}) *VMError {
	return &VMError{Kind: kind, PC: pc, Message: fmt.Sprintf(format, args...)}
}

// Decode reports an unrecognized encoding or a fetch from non-executable memory.
func Decode(pc uint64, format string, args ...interface{}) error { return newf(KindDecode, pc, format, args...) }

// Memory reports an out-of-bound access, a WXorX violation, or a disallowed
// unaligned access.
func Memory(pc uint64, format string, args ...interface{}) error { return newf(KindMemory, pc, format, args...) }

// Cycle reports that a step would push cycles past max_cycles.
func Cycle(pc uint64, cycles, max uint64) error {
	return newf(KindCycle, pc, "cycles %d would exceed budget %d", cycles, max)
}

// InvalidVersion reports a disallowed ISA/version combination (e.g. MOP with version 0).
func InvalidVersion(format string, args ...interface{}) error {
	return newf(KindInvalidVersion, 0, format, args...)
}

// ErrYield is the sentinel a syscall handler returns to cooperatively suspend
// the current VM. It is not a failure: the scheduler consumes it and never
// lets it propagate to the driver. Comparing with errors.Is is the intended
// usage since no per-call context is attached.
var ErrYield = &VMError{Kind: KindYield, Message: "yield"}

// Overlap reports the heap/stack overlap the overlap detector found.
func Overlap(sp, heap uint64) error {
	return &VMError{Kind: KindOverlap, Message: fmt.Sprintf("Heap and stack overlapping: sp=0x%016x heap=0x%016x", sp, heap)}
}

// External wraps a host I/O, protocol, or symbolization failure.
func External(format string, args ...interface{}) error {
	return newf(KindExternal, 0, format, args...)
}

// Usage reports a malformed CLI invocation, missing resource, or bad JSON —
// caught before the VM is constructed.
func Usage(format string, args ...interface{}) error {
	return newf(KindUsage, 0, format, args...)
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *VMError, defaulting to KindExternal for anything else.
func KindOf(err error) Kind {
	var ve *VMError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindExternal
}
