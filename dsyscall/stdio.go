package dsyscall

import (
	"os"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

const (
	numClose = 57
	numLseek = 62
	numRead  = 63
	numWrite = 64
	numFstat = 80
)

// StdioHandler bridges standard fd 0/1/2 straight to the host's stdin,
// stdout and stderr; read and write on any other fd return -1. SuppressStandardClose keeps a
// guest close(0..2) from taking down the harness's own stdio.
type StdioHandler struct {
	SuppressStandardClose bool
}

// Handle implements vm.SyscallHandler for the standard close/lseek/read/
// write/fstat numbers.
func (s *StdioHandler) Handle(m *vm.Machine, number uint64) (bool, error) {
	switch number {
	case numClose:
		return true, s.close(m)
	case numLseek:
		return true, s.lseek(m)
	case numRead:
		return true, s.read(m)
	case numWrite:
		return true, s.write(m)
	case numFstat:
		return true, s.fstat(m)
	}
	return false, nil
}

func fdFor(fd uint64) *os.File {
	switch fd {
	case 0:
		return os.Stdin
	case 1:
		return os.Stdout
	case 2:
		return os.Stderr
	}
	return nil
}

func (s *StdioHandler) close(m *vm.Machine) error {
	fd := m.Regs.Get(vm.RegA0)
	if fd <= 2 && s.SuppressStandardClose {
		m.Regs.Set(vm.RegA0, 0)
		return nil
	}
	m.Regs.Set(vm.RegA0, 0)
	return nil
}

func (s *StdioHandler) lseek(m *vm.Machine) error {
	m.Regs.Set(vm.RegA0, uint64(int64(-1))) // stdio fds are not seekable
	return nil
}

func (s *StdioHandler) read(m *vm.Machine) error {
	fd := m.Regs.Get(vm.RegA0)
	bufPtr := m.Regs.Get(vm.RegA1)
	count := m.Regs.Get(vm.RegA2)
	f := fdFor(fd)
	if f == nil {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	buf := make([]byte, count)
	n, _ := f.Read(buf)
	if n > 0 {
		if err := m.Memory.StoreBytes(bufPtr, buf[:n]); err != nil {
			return err
		}
	}
	m.Regs.Set(vm.RegA0, uint64(n))
	return nil
}

func (s *StdioHandler) write(m *vm.Machine) error {
	fd := m.Regs.Get(vm.RegA0)
	bufPtr := m.Regs.Get(vm.RegA1)
	count := m.Regs.Get(vm.RegA2)
	f := fdFor(fd)
	if f == nil {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	data, err := m.Memory.LoadBytes(bufPtr, count)
	if err != nil {
		return err
	}
	n, _ := f.Write(data)
	m.Regs.Set(vm.RegA0, uint64(n))
	return nil
}

func (s *StdioHandler) fstat(m *vm.Machine) error {
	m.Regs.Set(vm.RegA0, uint64(int64(-1))) // not meaningfully supportable over the stdio bridge
	return nil
}
