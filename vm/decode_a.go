package vm

// decodeA recognizes the A-extension atomic-memory-operation encodings
// (opcode AMO). A representative subset is implemented: LR/SC and the
// common AMO read-modify-writes, word and doubleword forms. aq/rl ordering
// bits are accepted but not semantically enforced, matching this harness's
// single-threaded execution model.
func decodeA(word uint32, pc uint64) (Instruction, bool) {
	opcode := field(word, 6, 0)
	if opcode != 0b0101111 {
		return Instruction{}, false
	}
	funct3 := field(word, 14, 12)
	if funct3 != 0b010 && funct3 != 0b011 {
		return Instruction{}, false
	}
	suffix := "w"
	if funct3 == 0b011 {
		suffix = "d"
	}
	funct5 := field(word, 31, 27)
	rd := int(field(word, 11, 7))
	rs1 := int(field(word, 19, 15))
	rs2 := int(field(word, 24, 20))

	var name string
	switch funct5 {
	case 0b00010:
		name = "lr." + suffix
		rs2 = 0
	case 0b00011:
		name = "sc." + suffix
	case 0b00001:
		name = "amoswap." + suffix
	case 0b00000:
		name = "amoadd." + suffix
	case 0b00100:
		name = "amoxor." + suffix
	case 0b01100:
		name = "amoand." + suffix
	case 0b01000:
		name = "amoor." + suffix
	case 0b10000:
		name = "amomin." + suffix
	case 0b10100:
		name = "amomax." + suffix
	case 0b11000:
		name = "amominu." + suffix
	case 0b11100:
		name = "amomaxu." + suffix
	default:
		return Instruction{}, false
	}
	return Instruction{Mnemonic: name, Form: FormR, ISA: "A", Rd: rd, Rs1: rs1, Rs2: rs2, Length: 4, Raw: word}, true
}
