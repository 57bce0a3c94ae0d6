package elfdump

import (
	"bytes"
	"encoding/binary"
)

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
)

// emitELF writes a minimal little-endian ELF64 image: one PT_LOAD program
// header per segment (PF_R|PF_X or PF_R|PF_W), a section-header table
// listing only the executable sections, and an entry point at entryAddr
// (the register-restoration stub).
func emitELF(segments []segment, entryAddr uint64) ([]byte, error) {
	var buf bytes.Buffer

	phoff := uint64(ehdrSize)
	dataOff := phoff + uint64(len(segments))*phdrSize

	type placed struct {
		segment
		fileOff uint64
	}
	var withOffsets []placed
	off := dataOff
	for _, s := range segments {
		withOffsets = append(withOffsets, placed{segment: s, fileOff: off})
		off += uint64(len(s.data))
	}

	var execCount int
	for _, s := range segments {
		if s.executable {
			execCount++
		}
	}
	shoff := off
	if execCount == 0 {
		shoff = 0 // no section-header table at all
	}

	writeEhdr(&buf, entryAddr, phoff, uint16(len(segments)), shoff, uint16(execCount))
	for _, p := range withOffsets {
		writePhdr(&buf, p.segment, p.fileOff)
	}
	for _, p := range withOffsets {
		buf.Write(p.data)
	}
	for _, p := range withOffsets {
		if p.executable {
			writeShdr(&buf, p.segment, p.fileOff)
		}
	}

	return buf.Bytes(), nil
}

func writeEhdr(buf *bytes.Buffer, entry, phoff uint64, phnum uint16, shoff uint64, shnum uint16) {
	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // little-endian
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident[:])

	le := binary.LittleEndian
	write16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf.Write(b[:]) }
	write32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }
	write64 := func(v uint64) { var b [8]byte; le.PutUint64(b[:], v); buf.Write(b[:]) }

	write16(2)               // e_type = ET_EXEC
	write16(elfMachineRISCV) // e_machine
	write32(1)                // e_version
	write64(entry)            // e_entry
	write64(phoff)            // e_phoff
	write64(shoff)            // e_shoff
	write32(elfFlagsRVC)      // e_flags
	write16(ehdrSize)         // e_ehsize
	write16(phdrSize)         // e_phentsize
	write16(phnum)            // e_phnum
	write16(shdrSize)         // e_shentsize
	write16(shnum)            // e_shnum
	write16(0)                // e_shstrndx (no string table in this minimal snapshot)
}

func writePhdr(buf *bytes.Buffer, s segment, fileOff uint64) {
	le := binary.LittleEndian
	write32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }
	write64 := func(v uint64) { var b [8]byte; le.PutUint64(b[:], v); buf.Write(b[:]) }

	flags := uint32(0x4) // PF_R
	if s.executable {
		flags |= 0x1 // PF_X
	} else {
		flags |= 0x2 // PF_W
	}

	write32(1) // p_type = PT_LOAD
	write32(flags)
	write64(fileOff)
	write64(s.addr)
	write64(s.addr)
	write64(uint64(len(s.data)))
	write64(uint64(len(s.data)))
	write64(pageSize)
}

func writeShdr(buf *bytes.Buffer, s segment, fileOff uint64) {
	le := binary.LittleEndian
	write32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }
	write64 := func(v uint64) { var b [8]byte; le.PutUint64(b[:], v); buf.Write(b[:]) }

	write32(0)          // sh_name (no string table)
	write32(1)          // sh_type = SHT_PROGBITS
	write64(0x6)        // sh_flags = SHF_ALLOC|SHF_EXECINSTR
	write64(s.addr)
	write64(fileOff)
	write64(uint64(len(s.data)))
	write32(0) // sh_link
	write32(0) // sh_info
	write64(1) // sh_addralign
	write64(0) // sh_entsize
}
