package dsyscall

import (
	"io"
	"os"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// FileTable is the guest-visible table of host file handles the
// fopen/fread/... syscalls index into. Handles are kept by a small
// integer "stream id" the guest treats like a FILE*.
type FileTable struct {
	files map[uint64]*os.File
	next  uint64
	err   map[uint64]bool
}

// NewFileTable creates an empty file table.
func NewFileTable() *FileTable {
	return &FileTable{files: make(map[uint64]*os.File), next: 1, err: make(map[uint64]bool)}
}

// Dispatch executes one of the fopen/freopen/fread/feof/ferror/fgetc/
// fclose/ftell/fseek syscalls, reading its arguments from A0.. and writing
// its result to A0 exactly like every other debugger syscall.
func (t *FileTable) Dispatch(m *vm.Machine, number uint64) error {
	switch number {
	case numFopen:
		return t.fopen(m)
	case numFreopen:
		return t.freopen(m)
	case numFread:
		return t.fread(m)
	case numFeof:
		return t.feof(m)
	case numFerror:
		return t.ferror(m)
	case numFgetc:
		return t.fgetc(m)
	case numFclose:
		return t.fclose(m)
	case numFtell:
		return t.ftell(m)
	case numFseek:
		return t.fseek(m)
	}
	return errs.External("file table does not handle syscall %d", number)
}

func (t *FileTable) fopen(m *vm.Machine) error {
	pathPtr := m.Regs.Get(vm.RegA0)
	modePtr := m.Regs.Get(vm.RegA1)
	path, err := readCString(m, pathPtr)
	if err != nil {
		return err
	}
	mode, err := readCString(m, modePtr)
	if err != nil {
		return err
	}
	f, openErr := openWithMode(path, mode)
	if openErr != nil {
		m.Regs.Set(vm.RegA0, 0)
		return nil
	}
	id := t.next
	t.next++
	t.files[id] = f
	m.Regs.Set(vm.RegA0, id)
	return nil
}

func (t *FileTable) freopen(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	if f, ok := t.files[id]; ok {
		f.Close()
		delete(t.files, id)
	}
	return t.fopen(m)
}

func (t *FileTable) fread(m *vm.Machine) error {
	bufPtr := m.Regs.Get(vm.RegA0)
	count := m.Regs.Get(vm.RegA1)
	id := m.Regs.Get(vm.RegA2)
	f, ok := t.files[id]
	if !ok {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	buf := make([]byte, count)
	n, readErr := f.Read(buf)
	if readErr != nil && readErr != io.EOF {
		t.err[id] = true
	}
	if n > 0 {
		if err := m.Memory.StoreBytes(bufPtr, buf[:n]); err != nil {
			return err
		}
	}
	m.Regs.Set(vm.RegA0, uint64(n))
	return nil
}

func (t *FileTable) feof(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	f, ok := t.files[id]
	if !ok {
		m.Regs.Set(vm.RegA0, 1)
		return nil
	}
	pos, _ := f.Seek(0, io.SeekCurrent)
	info, statErr := f.Stat()
	eof := statErr == nil && pos >= info.Size()
	m.Regs.Set(vm.RegA0, boolToU64(eof))
	return nil
}

func (t *FileTable) ferror(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	m.Regs.Set(vm.RegA0, boolToU64(t.err[id]))
	return nil
}

func (t *FileTable) fgetc(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	f, ok := t.files[id]
	if !ok {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	var b [1]byte
	n, readErr := f.Read(b[:])
	if n == 0 || readErr != nil {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	m.Regs.Set(vm.RegA0, uint64(b[0]))
	return nil
}

func (t *FileTable) fclose(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	if f, ok := t.files[id]; ok {
		f.Close()
		delete(t.files, id)
		delete(t.err, id)
	}
	m.Regs.Set(vm.RegA0, 0)
	return nil
}

func (t *FileTable) ftell(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	f, ok := t.files[id]
	if !ok {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	m.Regs.Set(vm.RegA0, uint64(pos))
	return nil
}

func (t *FileTable) fseek(m *vm.Machine) error {
	id := m.Regs.Get(vm.RegA0)
	offset := int64(m.Regs.Get(vm.RegA1))
	whence := int(m.Regs.Get(vm.RegA2))
	f, ok := t.files[id]
	if !ok {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	if _, err := f.Seek(offset, whence); err != nil {
		m.Regs.Set(vm.RegA0, uint64(int64(-1)))
		return nil
	}
	m.Regs.Set(vm.RegA0, 0)
	return nil
}

func openWithMode(path, mode string) (*os.File, error) {
	flag := os.O_RDONLY
	switch mode {
	case "w", "wb":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a", "ab":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "r+", "rb+", "r+b":
		flag = os.O_RDWR
	}
	return os.OpenFile(path, flag, 0o644)
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
