package vm

import (
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

// page is a lazily-allocated 4 KiB region of the address space plus its
// flag byte. Uninitialized pages read as zero; Data is allocated on first
// write or init_pages call.
type page struct {
	flag byte
	data []byte
}

// Memory is the RV64 byte-addressable virtual space, organized in fixed
// 4 KiB pages carrying FREEZED/EXECUTABLE/DIRTY flags. The write-xor-execute
// invariant is enforced on every store and every executable fetch: a page
// is never simultaneously writable and executable.
type Memory struct {
	pages map[uint64]*page
}

// NewMemory creates an empty memory space; all pages are implicitly
// unmapped (and therefore non-executable, non-frozen) until init_pages or a
// store allocates them.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*page)}
}

func pageOf(addr uint64) uint64 { return addr &^ (PageSize - 1) }

func (m *Memory) pageFor(addr uint64, alloc bool) *page {
	base := pageOf(addr)
	p, ok := m.pages[base]
	if !ok {
		if !alloc {
			return nil
		}
		p = &page{data: make([]byte, PageSize)}
		m.pages[base] = p
	}
	return p
}

// MappedPages returns the base addresses of every currently-allocated
// page, sorted ascending. Used by the ELF-dump snapshot syscall to scan
// only real memory instead of the full 64-bit address space.
func (m *Memory) MappedPages() []uint64 {
	addrs := make([]uint64, 0, len(m.pages))
	for base := range m.pages {
		addrs = append(addrs, base)
	}
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && addrs[j-1] > addrs[j]; j-- {
			addrs[j-1], addrs[j] = addrs[j], addrs[j-1]
		}
	}
	return addrs
}

// FetchFlag returns the flag byte for the page containing addr (0 if unmapped).
func (m *Memory) FetchFlag(addr uint64) byte {
	if p := m.pageFor(addr, false); p != nil {
		return p.flag
	}
	return 0
}

// SetFlag ORs bits into the flag byte of the page containing addr,
// allocating the page if necessary.
func (m *Memory) SetFlag(addr uint64, bits byte) {
	m.pageFor(addr, true).flag |= bits
}

// ClearFlag clears bits from the flag byte of the page containing addr.
func (m *Memory) ClearFlag(addr uint64, bits byte) {
	if p := m.pageFor(addr, false); p != nil {
		p.flag &^= bits
	}
}

// InitPages marks the pages spanning [addr, addr+size) with flags, copying
// len(source)-offset bytes of source starting at offset into them (or
// zero-filling if source is nil). This is how load_program installs ELF
// segments.
func (m *Memory) InitPages(addr, size uint64, flags byte, source []byte, offset uint64) {
	start := pageOf(addr)
	end := pageOf(addr + size - 1)
	for base := start; ; base += PageSize {
		p := m.pageFor(base, true)
		p.flag |= flags
		baseEnd := base + PageSize
		lo := addr
		if base > lo {
			lo = base
		}
		hi := addr + size
		if baseEnd < hi {
			hi = baseEnd
		}
		for a := lo; a < hi; a++ {
			pOff := a - base
			if source != nil {
				srcIdx := offset + (a - addr)
				if int(srcIdx) < len(source) {
					p.data[pOff] = source[srcIdx]
				}
			}
		}
		if base == end {
			break
		}
	}
}

func (m *Memory) checkWritable(addr uint64) error {
	flag := m.FetchFlag(addr)
	if flag&FlagFreezed != 0 {
		return errs.Memory(0, "store to freezed page at 0x%016x", addr)
	}
	if flag&FlagExecutable != 0 {
		return errs.Memory(0, "store to executable page at 0x%016x violates WXorX", addr)
	}
	return nil
}

func (m *Memory) markDirty(addr uint64) {
	m.pageFor(addr, true).flag |= FlagDirty
}

// Load8/16/32/64 read little-endian values of the given width. Unaligned
// accesses are permitted.
func (m *Memory) Load8(addr uint64) (uint8, error) {
	p := m.pageFor(addr, false)
	if p == nil {
		return 0, nil
	}
	return p.data[addr&(PageSize-1)], nil
}

func (m *Memory) Load16(addr uint64) (uint16, error) {
	b, err := m.LoadBytes(addr, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (m *Memory) Load32(addr uint64) (uint32, error) {
	b, err := m.LoadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *Memory) Load64(addr uint64) (uint64, error) {
	b, err := m.LoadBytes(addr, 8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// Store8/16/32/64 write little-endian values, rejecting FREEZED or
// executable pages per the WXorX invariant.
func (m *Memory) Store8(addr uint64, v uint8) error {
	if err := m.checkWritable(addr); err != nil {
		return err
	}
	p := m.pageFor(addr, true)
	p.data[addr&(PageSize-1)] = v
	m.markDirty(addr)
	return nil
}

func (m *Memory) Store16(addr uint64, v uint16) error {
	return m.StoreBytes(addr, []byte{byte(v), byte(v >> 8)})
}

func (m *Memory) Store32(addr uint64, v uint32) error {
	return m.StoreBytes(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (m *Memory) Store64(addr uint64, v uint64) error {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return m.StoreBytes(addr, b)
}

// StoreBytes writes a bulk byte slice, checking WXorX page-by-page as it
// crosses page boundaries.
func (m *Memory) StoreBytes(addr uint64, data []byte) error {
	for i, b := range data {
		a := addr + uint64(i)
		if err := m.checkWritable(a); err != nil {
			return err
		}
		p := m.pageFor(a, true)
		p.data[a&(PageSize-1)] = b
		m.markDirty(a)
	}
	return nil
}

// LoadBytes reads a bulk byte range; unmapped pages read as zero.
func (m *Memory) LoadBytes(addr uint64, size uint64) ([]byte, error) {
	out := make([]byte, size)
	for i := uint64(0); i < size; i++ {
		a := addr + i
		if p := m.pageFor(a, false); p != nil {
			out[i] = p.data[a&(PageSize-1)]
		}
	}
	return out, nil
}

// ExecuteLoad16/32 fetch instruction bytes, verifying the EXECUTABLE flag
// on every page touched.
func (m *Memory) ExecuteLoad16(addr uint64) (uint16, error) {
	if m.FetchFlag(addr)&FlagExecutable == 0 {
		return 0, errs.Decode(addr, "fetch from non-executable page at 0x%016x", addr)
	}
	return m.Load16(addr)
}

func (m *Memory) ExecuteLoad32(addr uint64) (uint32, error) {
	if m.FetchFlag(addr)&FlagExecutable == 0 || m.FetchFlag(addr+2)&FlagExecutable == 0 {
		return 0, errs.Decode(addr, "fetch from non-executable page at 0x%016x", addr)
	}
	return m.Load32(addr)
}
