// Package decode implements the standalone instruction pretty-printer:
// given a raw 16- or 32-bit word, it tries every ISA extension's decode
// factory and reports the assembly-form mnemonic, operand fields, the
// instruction's length, and which extension recognized it.
package decode

import (
	"fmt"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// Result is one decoded instruction's pretty-printable form.
type Result struct {
	Raw      uint32
	Length   int
	ISA      string
	Mnemonic string
	Assembly string
}

// Word decodes a single instruction word against the full extension set
// (IMABmop plus RVC), returning the first factory that recognizes it.
// raw may be a 16-bit compressed half-word (high bits zero) or a full
// 32-bit word; Word tries the compressed path whenever the low two bits
// don't mark a 32-bit encoding.
func Word(raw uint32) (Result, error) {
	mem := vm.NewMemory()
	mem.InitPages(0, vm.PageSize, 0, nil, 0)

	if raw&0x3 != 0x3 {
		if err := mem.Store16(0, uint16(raw)); err != nil {
			return Result{}, err
		}
	} else if err := mem.Store32(0, raw); err != nil {
		return Result{}, err
	}
	mem.SetFlag(0, vm.FlagExecutable)

	decoder := vm.NewDecoder(vm.ISAImc | vm.ISAA | vm.ISAB | vm.ISAMop)
	inst, err := decoder.Decode(mem, 0)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Raw:      inst.Raw,
		Length:   inst.Length,
		ISA:      inst.ISA,
		Mnemonic: inst.Mnemonic,
		Assembly: assemble(inst),
	}, nil
}

// assemble renders an Instruction's operands in the conventional
// "mnemonic rd, rs1, rs2/imm" assembler shape, varying by Form since each
// encoding shape carries a different operand set.
func assemble(inst vm.Instruction) string {
	switch inst.Form {
	case vm.FormR:
		return fmt.Sprintf("%s x%d, x%d, x%d", inst.Mnemonic, inst.Rd, inst.Rs1, inst.Rs2)
	case vm.FormR4, vm.FormR5:
		return fmt.Sprintf("%s x%d, x%d, x%d, x%d", inst.Mnemonic, inst.Rd, inst.Rs1, inst.Rs2, inst.Rs3)
	case vm.FormI:
		return fmt.Sprintf("%s x%d, x%d, %d", inst.Mnemonic, inst.Rd, inst.Rs1, inst.Imm)
	case vm.FormS:
		return fmt.Sprintf("%s x%d, %d(x%d)", inst.Mnemonic, inst.Rs2, inst.Imm, inst.Rs1)
	case vm.FormB:
		return fmt.Sprintf("%s x%d, x%d, %d", inst.Mnemonic, inst.Rs1, inst.Rs2, inst.Imm)
	case vm.FormU:
		return fmt.Sprintf("%s x%d, %d", inst.Mnemonic, inst.Rd, inst.Imm)
	case vm.FormJ:
		return fmt.Sprintf("%s x%d, %d", inst.Mnemonic, inst.Rd, inst.Imm)
	default:
		return inst.Mnemonic
	}
}

// ParseWord accepts either a "0x"-prefixed hex literal or a plain decimal
// string, the two forms the decode-instruction CLI mode accepts.
func ParseWord(s string) (uint32, error) {
	var value uint64
	var err error
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		_, err = fmt.Sscanf(s[2:], "%x", &value)
	} else {
		_, err = fmt.Sscanf(s, "%d", &value)
	}
	if err != nil {
		return 0, errs.Usage("invalid instruction word %q: %v", s, err)
	}
	return uint32(value), nil
}
