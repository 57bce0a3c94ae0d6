package vm

// decodeM recognizes the M-extension multiply/divide encodings: OP/OP-32
// with funct7 == 0000001.
func decodeM(word uint32, pc uint64) (Instruction, bool) {
	opcode := field(word, 6, 0)
	if opcode != 0b0110011 && opcode != 0b0111011 {
		return Instruction{}, false
	}
	funct7 := field(word, 31, 25)
	if funct7 != 0b0000001 {
		return Instruction{}, false
	}
	w32 := opcode == 0b0111011
	rd := int(field(word, 11, 7))
	rs1 := int(field(word, 19, 15))
	rs2 := int(field(word, 24, 20))
	funct3 := field(word, 14, 12)

	var name string
	if w32 {
		switch funct3 {
		case 0b000:
			name = "mulw"
		case 0b100:
			name = "divw"
		case 0b101:
			name = "divuw"
		case 0b110:
			name = "remw"
		case 0b111:
			name = "remuw"
		default:
			return Instruction{}, false
		}
	} else {
		switch funct3 {
		case 0b000:
			name = "mul"
		case 0b001:
			name = "mulh"
		case 0b010:
			name = "mulhsu"
		case 0b011:
			name = "mulhu"
		case 0b100:
			name = "div"
		case 0b101:
			name = "divu"
		case 0b110:
			name = "rem"
		case 0b111:
			name = "remu"
		default:
			return Instruction{}, false
		}
	}
	return Instruction{Mnemonic: name, Form: FormR, ISA: "M", Rd: rd, Rs1: rs1, Rs2: rs2, Length: 4, Raw: word}, true
}
