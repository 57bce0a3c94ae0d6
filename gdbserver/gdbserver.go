// Package gdbserver implements a GDB Remote Serial Protocol stop-mode
// target over a raw TCP connection: register/memory access, software
// breakpoints, hardware watchpoints, single-step, continue, and syscall
// catching. There is no range-step command.
package gdbserver

import (
	"bufio"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// stepBatch is a batch size of 1024 instructions. Nothing reads it:
// continue steps until a stop condition without polling the connection,
// so incoming data does not interrupt it.
const stepBatch = 1024

// WatchKind is the access type a hardware watchpoint fires on.
type WatchKind int

const (
	WatchRead WatchKind = iota
	WatchWrite
	WatchAccess
)

// Watchpoint is one hardware watchpoint entry. Length is accepted on the
// wire but only exact-address matching is implemented.
type Watchpoint struct {
	Addr   uint64
	Kind   WatchKind
	Length int
}

// SyscallFilter selects which ecall numbers continue should stop on.
type SyscallFilter struct {
	Mode    FilterMode
	Numbers map[uint64]bool
}

type FilterMode int

const (
	FilterNone FilterMode = iota
	FilterAll
	FilterSet
)

// Target is one debug session's state around a Machine: breakpoints,
// watchpoints, and the syscall catch filter, all independent of the
// Machine's own execution.
type Target struct {
	SessionID   string
	m           *vm.Machine
	breakpoints *BreakpointManager
	watchpoints *WatchpointManager
	catchFilter SyscallFilter
}

// NewTarget wraps m in a fresh debug session identified by a generated id.
func NewTarget(m *vm.Machine) *Target {
	return &Target{
		SessionID:   uuid.NewString(),
		m:           m,
		breakpoints: NewBreakpointManager(),
		watchpoints: NewWatchpointManager(),
	}
}

// Server accepts GDB RSP connections and serves one Target per
// connection; it takes exclusive ownership of its Machine until
// disconnect.
type Server struct {
	listener net.Listener
	machine  *vm.Machine
}

// Listen opens addr (host:port) for GDB connections against machine.
func Listen(addr string, machine *vm.Machine) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, machine: machine}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve blocks accepting one connection at a time (a stop-mode target
// owns its VM exclusively) and handles its RSP session until disconnect.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		target := NewTarget(s.machine)
		session := newSession(conn, target)
		session.run()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

type session struct {
	conn   net.Conn
	r      *bufio.Reader
	target *Target
}

func newSession(conn net.Conn, target *Target) *session {
	return &session{conn: conn, r: bufio.NewReader(conn), target: target}
}

func (sess *session) run() {
	defer sess.conn.Close()
	for {
		packet, ok := readPacket(sess.r)
		if !ok {
			return
		}
		if packet != "\x03" {
			sess.conn.Write([]byte{'+'})
		}
		reply := sess.dispatch(packet)
		writePacket(sess.conn, reply)
	}
}

// dispatch handles one RSP command packet, returning its reply payload
// (without the surrounding $...#cc framing). Unsupported requests return
// an empty string, RSP's convention for "not supported", rather than
// crashing the session.
func (sess *session) dispatch(packet string) string {
	if len(packet) == 0 {
		return ""
	}
	switch packet[0] {
	case 'g':
		return sess.readAllRegisters()
	case 'G':
		return sess.writeAllRegisters(packet[1:])
	case 'p':
		return sess.readRegister(packet[1:])
	case 'P':
		return sess.writeRegister(packet[1:])
	case 'm':
		return sess.readMemory(packet[1:])
	case 'M':
		return sess.writeMemory(packet[1:])
	case 'c':
		return sess.cont()
	case 's':
		return sess.step()
	case 'Z':
		return sess.insertBreakOrWatch(packet[1:])
	case 'z':
		return sess.removeBreakOrWatch(packet[1:])
	case '?':
		return "S05" // SIGTRAP: halted, ready for commands
	case 'q':
		return sess.query(packet[1:])
	case 'Q':
		return sess.setQuery(packet)
	default:
		return ""
	}
}

func (sess *session) query(rest string) string {
	if strings.HasPrefix(rest, "Supported") {
		return "PacketSize=4000;swbreak+;hwbreak+;QCatchSyscalls+"
	}
	return ""
}

// setQuery handles 'QCatchSyscalls:0' (disable) and
// 'QCatchSyscalls:1[;N]*' (catch all, or only the listed numbers).
func (sess *session) setQuery(packet string) string {
	const prefix = "QCatchSyscalls:"
	if !strings.HasPrefix(packet, prefix) {
		return ""
	}
	rest := packet[len(prefix):]
	if rest == "0" {
		sess.target.catchFilter = SyscallFilter{Mode: FilterNone}
		return "OK"
	}
	parts := strings.Split(rest, ";")
	if len(parts) == 1 {
		sess.target.catchFilter = SyscallFilter{Mode: FilterAll}
		return "OK"
	}
	numbers := make(map[uint64]bool)
	for _, p := range parts[1:] {
		n, err := strconv.ParseUint(p, 16, 64)
		if err != nil {
			return "E01"
		}
		numbers[n] = true
	}
	sess.target.catchFilter = SyscallFilter{Mode: FilterSet, Numbers: numbers}
	return "OK"
}
