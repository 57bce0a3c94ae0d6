// Package dsyscall implements the debugger-specific syscalls: host-bridged
// file I/O, a wall clock, a deterministic RNG feed, and the ELF-dump snapshot
// syscall. These are distinct from a host script's own syscalls and are
// installed as one link in a Machine's syscall chain.
package dsyscall

import (
	"math/rand"
	"os"
	"time"

	"github.com/nervosnetwork/ckb-standalone-debugger/elfdump"
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

const (
	numReadStream = 9000
	numNowNS      = 9001
	numRandomU64  = 9002
	numFopen      = 9003
	numFreopen    = 9004
	numFread      = 9005
	numFeof       = 9006
	numFerror     = 9007
	numFgetc      = 9008
	numFclose     = 9009
	numFtell      = 9010
	numFseek      = 9011
	numElfDump    = 4097
)

// maxStringWords bounds how many 8-byte words are fetched from guest memory
// while reading a NUL-terminated string argument, guarding against a
// malformed or hostile guest program looping the copy forever.
const maxStringWords = 1024

// Handler bridges the debugger syscalls to the host. Stream holds the
// contents of the file given to --read-file; Files holds a table of
// host *os.File handles the guest's fopen/fread/... calls index into;
// DumpPath is where the ELF-dump snapshot syscall writes its image.
type Handler struct {
	Stream   []byte
	streamAt int

	Files     *FileTable
	DumpPath  string
	randomSrc *rand.Rand
}

// NewHandler creates a debugger-syscall handler. stream is the full
// contents of an optional --read-file feed (nil if none was given).
func NewHandler(stream []byte, dumpPath string) *Handler {
	return &Handler{
		Stream:    stream,
		Files:     NewFileTable(),
		DumpPath:  dumpPath,
		randomSrc: rand.New(rand.NewSource(1)),
	}
}

// Handle implements vm.SyscallHandler, claiming any syscall number this
// package owns and declining everything else.
func (h *Handler) Handle(m *vm.Machine, number uint64) (bool, error) {
	switch number {
	case numReadStream:
		return true, h.readStream(m)
	case numNowNS:
		return true, h.nowNS(m)
	case numRandomU64:
		return true, h.randomU64(m)
	case numFopen, numFreopen, numFread, numFeof, numFerror, numFgetc, numFclose, numFtell, numFseek:
		return true, h.Files.Dispatch(m, number)
	case numElfDump:
		return true, h.elfDump(m)
	}
	return false, nil
}

func (h *Handler) readStream(m *vm.Machine) error {
	bufPtr := m.Regs.Get(vm.RegA0)
	count := m.Regs.Get(vm.RegA1)

	if h.streamAt >= len(h.Stream) {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	remaining := uint64(len(h.Stream) - h.streamAt)
	if count > remaining {
		count = remaining
	}
	chunk := h.Stream[h.streamAt : h.streamAt+int(count)]
	if err := m.Memory.StoreBytes(bufPtr, chunk); err != nil {
		return err
	}
	h.streamAt += int(count)
	m.Regs.Set(vm.RegA0, count)
	return nil
}

func (h *Handler) nowNS(m *vm.Machine) error {
	bufPtr := m.Regs.Get(vm.RegA0)
	ns := uint64(time.Now().UnixNano())
	lo := ns
	hi := uint64(0) // the debugger clock never needs more than 64 bits of range
	if err := m.Memory.Store64(bufPtr, lo); err != nil {
		return err
	}
	return m.Memory.Store64(bufPtr+8, hi)
}

func (h *Handler) randomU64(m *vm.Machine) error {
	bufPtr := m.Regs.Get(vm.RegA0)
	return m.Memory.Store64(bufPtr, h.randomSrc.Uint64())
}

func (h *Handler) elfDump(m *vm.Machine) error {
	if h.DumpPath == "" {
		return errs.External("elf_dump requested but no dump path configured")
	}
	image, err := elfdump.Snapshot(m, elfdump.DefaultMaxZeroGap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.DumpPath, image, 0o644); err != nil {
		return errs.External("write ELF dump to %s: %v", h.DumpPath, err)
	}
	m.Regs.Set(vm.RegA0, 0)
	return nil
}

// readCString fetches a NUL-terminated string from guest memory 8 bytes at
// a time, failing if no NUL appears within maxStringWords words.
func readCString(m *vm.Machine, addr uint64) (string, error) {
	var out []byte
	for i := 0; i < maxStringWords; i++ {
		word, err := m.Memory.LoadBytes(addr+uint64(i*8), 8)
		if err != nil {
			return "", err
		}
		for _, b := range word {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
	}
	return "", errs.External("guest string at 0x%016x exceeds %d words", addr, maxStringWords)
}
