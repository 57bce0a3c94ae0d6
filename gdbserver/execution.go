package gdbserver

import (
	"strconv"
	"strings"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// insertBreakOrWatch implements 'Ztype,addr,length'.
func (sess *session) insertBreakOrWatch(payload string) string {
	kind, addr, length, ok := parseBreakpointSpec(payload)
	if !ok {
		return "E01"
	}
	switch kind {
	case 0: // software breakpoint
		sess.target.breakpoints.Add(addr, false)
	case 2: // write watchpoint
		sess.target.watchpoints.Add(sess.target.m, Watchpoint{Addr: addr, Kind: WatchWrite, Length: length})
	case 3: // read watchpoint
		sess.target.watchpoints.Add(sess.target.m, Watchpoint{Addr: addr, Kind: WatchRead, Length: length})
	case 4: // access watchpoint
		sess.target.watchpoints.Add(sess.target.m, Watchpoint{Addr: addr, Kind: WatchAccess, Length: length})
	default:
		return ""
	}
	return "OK"
}

// removeBreakOrWatch implements 'ztype,addr,length'.
func (sess *session) removeBreakOrWatch(payload string) string {
	kind, addr, _, ok := parseBreakpointSpec(payload)
	if !ok {
		return "E01"
	}
	switch kind {
	case 0:
		sess.target.breakpoints.Remove(addr)
	case 2, 3, 4:
		sess.target.watchpoints.Remove(addr)
	default:
		return ""
	}
	return "OK"
}

func parseBreakpointSpec(payload string) (kind int, addr uint64, length int, ok bool) {
	parts := strings.SplitN(payload, ",", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	k, err1 := strconv.ParseInt(parts[0], 16, 32)
	a, err2 := strconv.ParseUint(parts[1], 16, 64)
	l, err3 := strconv.ParseInt(parts[2], 16, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return int(k), a, int(l), true
}

// step implements 's': execute exactly one instruction and report the
// resulting stop reason.
func (sess *session) step() string {
	outcome, err := sess.target.m.Step()
	return sess.stopReply(outcome, err)
}

// cont implements 'c': run until a breakpoint, watchpoint, caught
// syscall, or program exit. Stop conditions are checked after every
// single step since any of them can occur on any instruction.
func (sess *session) cont() string {
	m := sess.target.m
	for {
		outcome, err := m.Step()
		if stop, reply := sess.checkStop(outcome, err); stop {
			return reply
		}
		if sess.target.breakpoints.Has(m.Regs.PC()) {
			sess.target.breakpoints.ProcessHit(m.Regs.PC())
			return "S05"
		}
	}
}

// checkStop centralizes the stop conditions shared by cont and step:
// program exit, a VM-level failure, a yield to a caught syscall class,
// or a fired watchpoint.
func (sess *session) checkStop(outcome vm.StepOutcome, err error) (bool, string) {
	if outcome == vm.Exited {
		return true, "W" + hexByte(uint8(sess.target.m.ExitCode))
	}
	if err != nil {
		if errs.KindOf(err) == errs.KindYield {
			if sess.syscallCaught() {
				return true, "S05"
			}
			return false, ""
		}
		return true, "S06" // SIGABRT: VM-level failure
	}
	if _, fired := sess.target.watchpoints.CheckHits(sess.target.m); fired {
		return true, "S05"
	}
	return false, ""
}

func (sess *session) stopReply(outcome vm.StepOutcome, err error) string {
	if stop, reply := sess.checkStop(outcome, err); stop {
		return reply
	}
	return "S05"
}

func (sess *session) syscallCaught() bool {
	f := sess.target.catchFilter
	switch f.Mode {
	case FilterAll:
		return true
	case FilterSet:
		return f.Numbers[sess.target.m.Regs.Get(vm.RegA7)]
	default:
		return false
	}
}

func hexByte(v uint8) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[v>>4], hexDigits[v&0xf]})
}
