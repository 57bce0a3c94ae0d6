package vm

import (
	"math/bits"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

// signal reports a control event execute wants the run loop to act on,
// distinct from an error: ecall/ebreak are ordinary outcomes of a
// perfectly valid instruction stream, not failures.
type signal int

const (
	sigNone signal = iota
	sigECall
	sigEBreak
)

// execute applies one decoded instruction's semantics to regs and mem,
// staging the next PC on regs (the caller commits it). RVC mnemonics are
// normalized to their base-ISA name during decode, so this dispatch does
// not need to special-case compressed forms.
func execute(regs *RegisterFile, mem *Memory, inst Instruction) (signal, error) {
	pc := inst.PC
	next := pc + uint64(inst.Length)
	regs.SetNextPC(next)

	switch inst.Mnemonic {
	case "lui":
		regs.Set(inst.Rd, uint64(inst.Imm))
	case "auipc":
		regs.Set(inst.Rd, pc+uint64(inst.Imm))

	case "jal":
		regs.Set(inst.Rd, next)
		regs.SetNextPC(uint64(int64(pc) + inst.Imm))
	case "jalr":
		target := (regs.Get(inst.Rs1) + uint64(inst.Imm)) &^ 1
		regs.Set(inst.Rd, next)
		regs.SetNextPC(target)

	case "beq":
		if regs.Get(inst.Rs1) == regs.Get(inst.Rs2) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}
	case "bne":
		if regs.Get(inst.Rs1) != regs.Get(inst.Rs2) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}
	case "blt":
		if int64(regs.Get(inst.Rs1)) < int64(regs.Get(inst.Rs2)) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}
	case "bge":
		if int64(regs.Get(inst.Rs1)) >= int64(regs.Get(inst.Rs2)) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}
	case "bltu":
		if regs.Get(inst.Rs1) < regs.Get(inst.Rs2) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}
	case "bgeu":
		if regs.Get(inst.Rs1) >= regs.Get(inst.Rs2) {
			regs.SetNextPC(uint64(int64(pc) + inst.Imm))
		}

	case "lb", "lh", "lw", "ld", "lbu", "lhu", "lwu":
		addr := regs.Get(inst.Rs1) + uint64(inst.Imm)
		val, err := loadValue(mem, inst.Mnemonic, addr)
		if err != nil {
			return sigNone, err
		}
		regs.Set(inst.Rd, val)

	case "sb", "sh", "sw", "sd":
		addr := regs.Get(inst.Rs1) + uint64(inst.Imm)
		if err := storeValue(mem, inst.Mnemonic, addr, regs.Get(inst.Rs2)); err != nil {
			return sigNone, err
		}

	case "addi":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)+uint64(inst.Imm))
	case "addiw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)+uint64(inst.Imm)))
	case "slti":
		regs.Set(inst.Rd, boolToU64(int64(regs.Get(inst.Rs1)) < inst.Imm))
	case "sltiu":
		regs.Set(inst.Rd, boolToU64(regs.Get(inst.Rs1) < uint64(inst.Imm)))
	case "xori":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)^uint64(inst.Imm))
	case "ori":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)|uint64(inst.Imm))
	case "andi":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)&uint64(inst.Imm))
	case "slli":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)<<uint(inst.Imm))
	case "slliw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)<<uint(inst.Imm)))
	case "srli":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)>>uint(inst.Imm))
	case "srliw":
		regs.Set(inst.Rd, signExtendWord(uint64(uint32(regs.Get(inst.Rs1))>>uint(inst.Imm))))
	case "srai":
		regs.Set(inst.Rd, uint64(int64(regs.Get(inst.Rs1))>>uint(inst.Imm)))
	case "sraiw":
		regs.Set(inst.Rd, signExtendWord(uint64(uint32(int32(regs.Get(inst.Rs1))>>uint(inst.Imm)))))

	case "add":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)+regs.Get(inst.Rs2))
	case "addw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)+regs.Get(inst.Rs2)))
	case "sub":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)-regs.Get(inst.Rs2))
	case "subw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)-regs.Get(inst.Rs2)))
	case "sll":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)<<(regs.Get(inst.Rs2)&0x3f))
	case "sllw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)<<(regs.Get(inst.Rs2)&0x1f)))
	case "slt":
		regs.Set(inst.Rd, boolToU64(int64(regs.Get(inst.Rs1)) < int64(regs.Get(inst.Rs2))))
	case "sltu":
		regs.Set(inst.Rd, boolToU64(regs.Get(inst.Rs1) < regs.Get(inst.Rs2)))
	case "xor":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)^regs.Get(inst.Rs2))
	case "srl":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)>>(regs.Get(inst.Rs2)&0x3f))
	case "srlw":
		regs.Set(inst.Rd, signExtendWord(uint64(uint32(regs.Get(inst.Rs1))>>(regs.Get(inst.Rs2)&0x1f))))
	case "sra":
		regs.Set(inst.Rd, uint64(int64(regs.Get(inst.Rs1))>>(regs.Get(inst.Rs2)&0x3f)))
	case "sraw":
		regs.Set(inst.Rd, signExtendWord(uint64(uint32(int32(regs.Get(inst.Rs1))>>(regs.Get(inst.Rs2)&0x1f)))))
	case "or":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)|regs.Get(inst.Rs2))
	case "and":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)&regs.Get(inst.Rs2))

	case "mul":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)*regs.Get(inst.Rs2))
	case "mulw":
		regs.Set(inst.Rd, signExtendWord(regs.Get(inst.Rs1)*regs.Get(inst.Rs2)))
	case "mulh":
		regs.Set(inst.Rd, uint64(mulHighSigned(int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2)))))
	case "mulhu":
		regs.Set(inst.Rd, mulHighUnsigned(regs.Get(inst.Rs1), regs.Get(inst.Rs2)))
	case "mulhsu":
		regs.Set(inst.Rd, uint64(mulHighSignedUnsigned(int64(regs.Get(inst.Rs1)), regs.Get(inst.Rs2))))
	case "div":
		regs.Set(inst.Rd, divSigned(int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2))))
	case "divw":
		regs.Set(inst.Rd, signExtendWord(divSigned(int64(int32(regs.Get(inst.Rs1))), int64(int32(regs.Get(inst.Rs2))))))
	case "divu":
		regs.Set(inst.Rd, divUnsigned(regs.Get(inst.Rs1), regs.Get(inst.Rs2)))
	case "divuw":
		regs.Set(inst.Rd, signExtendWord(divUnsigned(uint64(uint32(regs.Get(inst.Rs1))), uint64(uint32(regs.Get(inst.Rs2))))))
	case "rem":
		regs.Set(inst.Rd, remSigned(int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2))))
	case "remw":
		regs.Set(inst.Rd, signExtendWord(remSigned(int64(int32(regs.Get(inst.Rs1))), int64(int32(regs.Get(inst.Rs2))))))
	case "remu":
		regs.Set(inst.Rd, remUnsigned(regs.Get(inst.Rs1), regs.Get(inst.Rs2)))
	case "remuw":
		regs.Set(inst.Rd, signExtendWord(remUnsigned(uint64(uint32(regs.Get(inst.Rs1))), uint64(uint32(regs.Get(inst.Rs2))))))

	case "andn":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)&^regs.Get(inst.Rs2))
	case "orn":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)|(^regs.Get(inst.Rs2)))
	case "xnor":
		regs.Set(inst.Rd, ^(regs.Get(inst.Rs1) ^ regs.Get(inst.Rs2)))
	case "min":
		a, b := int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2))
		regs.Set(inst.Rd, uint64(minInt64(a, b)))
	case "max":
		a, b := int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2))
		regs.Set(inst.Rd, uint64(maxInt64(a, b)))
	case "minu":
		a, b := regs.Get(inst.Rs1), regs.Get(inst.Rs2)
		if a < b {
			regs.Set(inst.Rd, a)
		} else {
			regs.Set(inst.Rd, b)
		}
	case "maxu":
		a, b := regs.Get(inst.Rs1), regs.Get(inst.Rs2)
		if a > b {
			regs.Set(inst.Rd, a)
		} else {
			regs.Set(inst.Rd, b)
		}
	case "clz":
		regs.Set(inst.Rd, uint64(leadingZeros64(regs.Get(inst.Rs1))))
	case "ctz":
		regs.Set(inst.Rd, uint64(trailingZeros64(regs.Get(inst.Rs1))))
	case "cpop":
		regs.Set(inst.Rd, uint64(popcount64(regs.Get(inst.Rs1))))

	case "lr.w", "lr.d":
		addr := regs.Get(inst.Rs1)
		val, err := loadValue(mem, loadMnemonicFor(inst.Mnemonic), addr)
		if err != nil {
			return sigNone, err
		}
		regs.Set(inst.Rd, val)
	case "sc.w", "sc.d":
		addr := regs.Get(inst.Rs1)
		if err := storeValue(mem, storeMnemonicFor(inst.Mnemonic), addr, regs.Get(inst.Rs2)); err != nil {
			return sigNone, err
		}
		regs.Set(inst.Rd, 0) // single-hart: the reservation is always still valid
	case "amoswap.w", "amoswap.d", "amoadd.w", "amoadd.d", "amoxor.w", "amoxor.d",
		"amoand.w", "amoand.d", "amoor.w", "amoor.d", "amomin.w", "amomin.d",
		"amomax.w", "amomax.d", "amominu.w", "amominu.d", "amomaxu.w", "amomaxu.d":
		if err := executeAMO(regs, mem, inst); err != nil {
			return sigNone, err
		}

	case "mopfuse.absdiff":
		a, b := int64(regs.Get(inst.Rs1)), int64(regs.Get(inst.Rs2))
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		regs.Set(inst.Rd, uint64(diff))
	case "mopfuse.laddw":
		addr := regs.Get(inst.Rs1)
		val, err := loadValue(mem, "ld", addr)
		if err != nil {
			return sigNone, err
		}
		regs.Set(inst.Rd, val+regs.Get(inst.Rs2))
	case "mopfuse.mulacc":
		regs.Set(inst.Rd, regs.Get(inst.Rs1)*regs.Get(inst.Rs2)+regs.Get(inst.Rs3))
	case "mopfuse.farjumpabs":
		regs.Set(inst.Rd, next)
		regs.SetNextPC(regs.Get(inst.Rs1))
	case "mopfuse.farjumprel":
		regs.Set(inst.Rd, next)
		regs.SetNextPC(uint64(int64(pc) + inst.Imm))

	case "fence":
		// no-op: single-hart execution has nothing to order against.
	case "ecall":
		return sigECall, nil
	case "ebreak":
		return sigEBreak, nil

	default:
		return sigNone, errs.Decode(pc, "unimplemented instruction %q", inst.Mnemonic)
	}
	return sigNone, nil
}

func loadMnemonicFor(amo string) string {
	if amo == "lr.w" {
		return "lw"
	}
	return "ld"
}

func storeMnemonicFor(amo string) string {
	if amo == "sc.w" {
		return "sw"
	}
	return "sd"
}

func executeAMO(regs *RegisterFile, mem *Memory, inst Instruction) error {
	is32 := inst.Mnemonic[len(inst.Mnemonic)-1] == 'w'
	loadOp, storeOp := "ld", "sd"
	if is32 {
		loadOp, storeOp = "lw", "sw"
	}
	addr := regs.Get(inst.Rs1)
	old, err := loadValue(mem, loadOp, addr)
	if err != nil {
		return err
	}
	operand := regs.Get(inst.Rs2)
	var result uint64
	switch inst.Mnemonic[:len(inst.Mnemonic)-2] {
	case "amoswap":
		result = operand
	case "amoadd":
		result = old + operand
	case "amoxor":
		result = old ^ operand
	case "amoand":
		result = old & operand
	case "amoor":
		result = old | operand
	case "amomin":
		result = uint64(minInt64(int64(old), int64(operand)))
	case "amomax":
		result = uint64(maxInt64(int64(old), int64(operand)))
	case "amominu":
		result = old
		if operand < old {
			result = operand
		}
	case "amomaxu":
		result = old
		if operand > old {
			result = operand
		}
	}
	if err := storeValue(mem, storeOp, addr, result); err != nil {
		return err
	}
	regs.Set(inst.Rd, old)
	return nil
}

func loadValue(mem *Memory, mnemonic string, addr uint64) (uint64, error) {
	switch mnemonic {
	case "lb":
		v, err := mem.Load8(addr)
		return uint64(int64(int8(v))), err
	case "lbu":
		v, err := mem.Load8(addr)
		return uint64(v), err
	case "lh":
		v, err := mem.Load16(addr)
		return uint64(int64(int16(v))), err
	case "lhu":
		v, err := mem.Load16(addr)
		return uint64(v), err
	case "lw":
		v, err := mem.Load32(addr)
		return uint64(int64(int32(v))), err
	case "lwu":
		v, err := mem.Load32(addr)
		return uint64(v), err
	case "ld":
		return mem.Load64(addr)
	}
	return 0, errs.Decode(addr, "unknown load mnemonic %q", mnemonic)
}

func storeValue(mem *Memory, mnemonic string, addr, value uint64) error {
	switch mnemonic {
	case "sb":
		return mem.Store8(addr, uint8(value))
	case "sh":
		return mem.Store16(addr, uint16(value))
	case "sw":
		return mem.Store32(addr, uint32(value))
	case "sd":
		return mem.Store64(addr, value)
	}
	return errs.Decode(addr, "unknown store mnemonic %q", mnemonic)
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func signExtendWord(v uint64) uint64 { return uint64(int64(int32(v))) }

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func mulHighSigned(a, b int64) int64 {
	hi, _ := bitsMulSigned(a, b)
	return hi
}

func mulHighUnsigned(a, b uint64) uint64 {
	hi, _ := bitsMulUnsigned(a, b)
	return hi
}

func mulHighSignedUnsigned(a int64, b uint64) int64 {
	neg := a < 0
	ua := uint64(a)
	if neg {
		ua = uint64(-a)
	}
	hi, lo := bitsMulUnsigned(ua, b)
	if !neg {
		return int64(hi)
	}
	// two's complement negate the 128-bit product
	lo = ^lo + 1
	hi = ^hi
	if lo == 0 {
		hi++
	}
	return int64(hi)
}

func divSigned(a, b int64) uint64 {
	if b == 0 {
		return uint64(-1)
	}
	if a == minInt64Const && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if a == minInt64Const && b == -1 {
		return 0
	}
	return uint64(a % b)
}

func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

const minInt64Const = -9223372036854775808

func leadingZeros64(v uint64) int {
	if v == 0 {
		return 64
	}
	n := 0
	for bit := uint64(1) << 63; bit&v == 0; bit >>= 1 {
		n++
	}
	return n
}

func trailingZeros64(v uint64) int {
	if v == 0 {
		return 64
	}
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

func popcount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

func bitsMulUnsigned(a, b uint64) (hi, lo uint64) {
	hi, lo = bits.Mul64(a, b)
	return hi, lo
}

// bitsMulSigned computes the signed 128-bit product of a and b by running
// the unsigned multiply on the magnitudes and negating the 128-bit result
// when the operands' signs differ.
func bitsMulSigned(a, b int64) (hi, lo int64) {
	negA, negB := a < 0, b < 0
	ua, ub := uint64(a), uint64(b)
	if negA {
		ua = uint64(-a)
	}
	if negB {
		ub = uint64(-b)
	}
	uhi, ulo := bits.Mul64(ua, ub)
	if negA != negB {
		ulo = ^ulo + 1
		uhi = ^uhi
		if ulo == 0 {
			uhi++
		}
	}
	return int64(uhi), int64(ulo)
}
