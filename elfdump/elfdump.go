// Package elfdump synthesizes a minimal ELF64 snapshot of a running
// machine's memory, suitable for a standalone RISC-V executor to replay
// from the point of a crash or a requested checkpoint.
package elfdump

import (
	"bytes"
	"encoding/binary"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// DefaultMaxZeroGap is the largest run of zero bytes two recovered regions
// may straddle and still be coalesced into one segment.
const DefaultMaxZeroGap = 64

const (
	elfMachineRISCV = 243
	elfFlagsRVC     = 1 // RVC + soft-float ABI, per the snapshot format
	pageSize        = vm.PageSize
)

// segment is one contiguous, non-zero recovered memory region.
type segment struct {
	addr       uint64
	data       []byte
	executable bool
}

// Snapshot scans m's memory pages for non-zero content, coalesces nearby
// regions, prepends a register-restoration stub, and returns a minimal
// ELF64 image an external loader can feed straight to a RISC-V core.
func Snapshot(m *vm.Machine, maxZeroGap uint64) ([]byte, error) {
	if maxZeroGap == 0 {
		maxZeroGap = DefaultMaxZeroGap
	}
	pages := m.Memory.MappedPages()
	if len(pages) == 0 {
		return emitELF(nil, 0)
	}
	lowAddr := pages[0]
	highAddr := pages[len(pages)-1] + pageSize
	segments := scanSegments(m, lowAddr, highAddr, maxZeroGap)
	if len(segments) == 0 {
		return emitELF(nil, 0)
	}

	stubAddr := lowestAddr(segments) - pageSize
	stub := buildRestorationStub(m)
	segments = append([]segment{{addr: stubAddr, data: stub, executable: true}}, segments...)

	return emitELF(segments, stubAddr)
}

func lowestAddr(segments []segment) uint64 {
	lowest := ^uint64(0)
	for _, s := range segments {
		if s.addr < lowest {
			lowest = s.addr
		}
	}
	if lowest == ^uint64(0) {
		return 0
	}
	return lowest
}

// scanSegments walks [lowAddr, highAddr) a page at a time, grouping
// contiguous non-zero bytes into segments and bridging gaps of at most
// maxZeroGap zero bytes when the executable flag agrees across the gap.
func scanSegments(m *vm.Machine, lowAddr, highAddr, maxZeroGap uint64) []segment {
	var out []segment
	var cur *segment
	var zeroRun uint64

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for addr := lowAddr; addr < highAddr; addr++ {
		b, _ := m.Memory.Load8(addr)
		executable := m.Memory.FetchFlag(addr)&vm.FlagExecutable != 0

		if b == 0 {
			zeroRun++
			if cur != nil && zeroRun > maxZeroGap {
				flush()
			}
			continue
		}

		if cur != nil && zeroRun > 0 {
			if zeroRun > maxZeroGap || cur.executable != executable {
				flush()
			} else {
				for i := uint64(0); i < zeroRun; i++ {
					cur.data = append(cur.data, 0)
				}
			}
		}
		zeroRun = 0

		if cur == nil {
			cur = &segment{addr: addr, executable: executable}
		}
		cur.data = append(cur.data, b)
	}
	flush()
	return out
}

// buildRestorationStub emits: 31 little-endian u64 register values
// (x1..x31), one `ld xN, offset(a0)` per register, and a final jump back
// to the captured PC.
func buildRestorationStub(m *vm.Machine) []byte {
	var buf bytes.Buffer

	for reg := 1; reg <= 31; reg++ {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], m.Regs.Get(reg))
		buf.Write(word[:])
	}

	for reg := 1; reg <= 31; reg++ {
		offset := int32((reg - 1) * 8)
		buf.Write(encodeLD(reg, 10 /* a0 */, offset))
	}

	pc := m.Regs.PC()
	buf.Write(encodeJumpAbsolute(pc))

	return buf.Bytes()
}

// encodeLD emits `ld rd, offset(rs1)`.
func encodeLD(rd, rs1 int, offset int32) []byte {
	word := uint32(0b0000011) // opcode LOAD
	word |= uint32(rd&0x1f) << 7
	word |= uint32(0b011) << 12 // funct3 = LD
	word |= uint32(rs1&0x1f) << 15
	word |= uint32(offset&0xfff) << 20
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], word)
	return out[:]
}

// encodeJumpAbsolute builds an auipc+jalr pair that lands exactly on
// target regardless of where the stub itself is placed.
func encodeJumpAbsolute(target uint64) []byte {
	var buf bytes.Buffer
	// Loaded via two loads from a small inline constant instead of
	// pc-relative math, so the jump is correct no matter where segment
	// placement puts the stub.
	var targetBytes [8]byte
	binary.LittleEndian.PutUint64(targetBytes[:], target)
	buf.Write(targetBytes[:])

	ld := encodeLD(6 /* t1 */, 10 /* a0 */, int32(31*8))
	buf.Write(ld)

	jalr := uint32(0b1100111)
	jalr |= uint32(0) << 7 // rd = x0
	jalr |= uint32(0b000) << 12
	jalr |= uint32(6&0x1f) << 15 // rs1 = t1
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], jalr)
	buf.Write(out[:])
	return buf.Bytes()
}
