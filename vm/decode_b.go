package vm

// decodeB recognizes a representative subset of the B-extension
// bit-manipulation encodings (Zbb logic-with-negate and min/max, plus the
// OP-IMM count instructions), in the same style as decodeM/decodeA: match
// the fixed-function bit pattern this harness's ISA mask has enabled.
func decodeB(word uint32, pc uint64) (Instruction, bool) {
	opcode := field(word, 6, 0)
	rd := int(field(word, 11, 7))
	rs1 := int(field(word, 19, 15))

	if opcode == 0b0110011 {
		rs2 := int(field(word, 24, 20))
		funct3 := field(word, 14, 12)
		funct7 := field(word, 31, 25)
		var name string
		switch {
		case funct7 == 0b0100000 && funct3 == 0b111:
			name = "andn"
		case funct7 == 0b0100000 && funct3 == 0b110:
			name = "orn"
		case funct7 == 0b0100000 && funct3 == 0b100:
			name = "xnor"
		case funct7 == 0b0000101 && funct3 == 0b100:
			name = "min"
		case funct7 == 0b0000101 && funct3 == 0b101:
			name = "minu"
		case funct7 == 0b0000101 && funct3 == 0b110:
			name = "max"
		case funct7 == 0b0000101 && funct3 == 0b111:
			name = "maxu"
		default:
			return Instruction{}, false
		}
		return Instruction{Mnemonic: name, Form: FormR, ISA: "B", Rd: rd, Rs1: rs1, Rs2: rs2, Length: 4, Raw: word}, true
	}

	if opcode == 0b0010011 {
		funct3 := field(word, 14, 12)
		imm12 := field(word, 31, 20)
		if funct3 != 0b001 {
			return Instruction{}, false
		}
		var name string
		switch imm12 {
		case 0x600:
			name = "clz"
		case 0x601:
			name = "ctz"
		case 0x602:
			name = "cpop"
		default:
			return Instruction{}, false
		}
		return Instruction{Mnemonic: name, Form: FormR, ISA: "B", Rd: rd, Rs1: rs1, Length: 4, Raw: word}, true
	}

	return Instruction{}, false
}
