package vm

// decodeMOP recognizes the macro-op fusion encodings: a small set of
// custom-opcode words that stand in for a fused multi-instruction pattern
// (e.g. the load-then-add pair a compiler commonly emits).
// Only reachable when the VM's ISA mask carries ISAMop, and only valid
// under the script versions that enable it; Version0 programs never
// observe a fused opcode (Machine.Step fails every step of a Version0
// machine whose ISA mask carries ISAMop, before anything is decoded).
func decodeMOP(word uint32, pc uint64) (Instruction, bool) {
	opcode := field(word, 6, 0)
	if opcode != 0b0001011 { // custom-0
		return Instruction{}, false
	}
	funct3 := field(word, 14, 12)
	rd := int(field(word, 11, 7))
	rs1 := int(field(word, 19, 15))
	rs2 := int(field(word, 24, 20))
	rs3 := int(field(word, 31, 27))

	var name string
	var form Form
	var imm int64
	switch funct3 {
	case 0b000: // fused absolute difference: rd = |rs1 - rs2|
		name = "mopfuse.absdiff"
		form = FormR
	case 0b001: // fused "ld rd,0(rs1); add rd,rd,rs2" load-then-add idiom
		name = "mopfuse.laddw"
		form = FormR
	case 0b010: // fused triple-operand multiply-accumulate
		name = "mopfuse.mulacc"
		form = FormR4
	case 0b011: // far-jump-abs: rd = link, pc = rs1 (a full 64-bit address a
		// compiler materializes in a register when JAL/JALR's range is too short)
		name = "mopfuse.farjumpabs"
		form = FormR
	case 0b100: // far-jump-rel: rd = link, pc = pc + imm, a 12-bit signed
		// displacement carried the same way JALR's does
		name = "mopfuse.farjumprel"
		form = FormI
		imm = signExtend(word>>20, 12)
	default:
		return Instruction{}, false
	}
	return Instruction{Mnemonic: name, Form: form, ISA: "MOP", Rd: rd, Rs1: rs1, Rs2: rs2, Rs3: rs3, Imm: imm, Length: 4, Raw: word}, true
}
