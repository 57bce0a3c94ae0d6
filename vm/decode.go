package vm

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

// Form tags the operand encoding shape of a decoded instruction.
type Form int

const (
	FormR Form = iota
	FormI
	FormS
	FormB
	FormU
	FormJ
	FormR4 // fused multiply-add style, 4 register operands
	FormR5 // MOP macro-ops needing 5 operand slots
)

// Instruction is the tagged decoded form every execute/cycle/profiler
// consumer works from: opcode, operand form, operands, and length.
type Instruction struct {
	Mnemonic string
	Form     Form
	ISA      string // "I", "M", "A", "B", "RVC", "MOP"
	Rd       int
	Rs1      int
	Rs2      int
	Rs3      int
	Imm      int64
	Length   int // 2 or 4
	Raw      uint32
	PC       uint64
}

// InstructionLength derives the 2-or-4 byte length from the decoded tag,
// without needing to re-decode.
func InstructionLength(inst Instruction) int { return inst.Length }

// factory is one step of the per-ISA decode chain: a per-ISA factory
// sequence is tried in order, and the first that recognizes the encoding
// wins.
type factory func(word uint32, pc uint64) (Instruction, bool)

// factoriesFor returns the ordered factory chain for a 4-byte word, gated
// by the VM's ISA mask: I -> M -> A -> B -> MOP.
func factoriesFor(isa uint32) []factory {
	chain := []factory{decodeI, decodeM}
	if isa&ISAA != 0 {
		chain = append(chain, decodeA)
	}
	if isa&ISAB != 0 {
		chain = append(chain, decodeB)
	}
	if isa&ISAMop != 0 {
		chain = append(chain, decodeMOP)
	}
	return chain
}

// Decoder decodes instructions at a PC, caching results keyed by PC.
// A reset clears the cache.
type Decoder struct {
	isa   uint32
	cache *lru.Cache
}

// NewDecoder creates a decoder for the given ISA mask with a bounded
// PC-keyed cache.
func NewDecoder(isa uint32) *Decoder {
	c, _ := lru.New(DecodeCacheSize)
	return &Decoder{isa: isa, cache: c}
}

// Reset invalidates the decode cache: when a reset signal is raised, the
// decoder's cached instructions can no longer be trusted.
func (d *Decoder) Reset() { d.cache.Purge() }

// Decode reads 2 or 4 bytes at pc (after checking the executable bit) and
// classifies the encoding by trying each ISA factory in order, RVC first
// when the low bits mark a compressed instruction.
func (d *Decoder) Decode(mem *Memory, pc uint64) (Instruction, error) {
	if cached, ok := d.cache.Get(pc); ok {
		return cached.(Instruction), nil
	}

	half, err := mem.ExecuteLoad16(pc)
	if err != nil {
		return Instruction{}, err
	}

	var inst Instruction
	var found bool
	if half&0x3 != 0x3 {
		inst, found = decodeRVC(half, pc)
	} else {
		word, err := mem.ExecuteLoad32(pc)
		if err != nil {
			return Instruction{}, err
		}
		for _, f := range factoriesFor(d.isa) {
			if inst, found = f(word, pc); found {
				break
			}
		}
	}
	if !found {
		return Instruction{}, errs.Decode(pc, "unrecognized instruction encoding")
	}
	inst.PC = pc
	d.cache.Add(pc, inst)
	return inst, nil
}

// field extracts bits [hi:lo] (inclusive) of word.
func field(word uint32, hi, lo uint) uint32 {
	mask := uint32(1)<<(hi-lo+1) - 1
	return (word >> lo) & mask
}

func signExtend(value uint32, bits uint) int64 {
	shift := 32 - bits
	return int64(int32(value<<shift)) >> shift
}
