package vm

// decodeI recognizes the RV64I base integer encodings. It is the first
// factory tried; it declines (returns false) on OP/OP-32 encodings whose
// funct7 marks an M-extension multiply/divide, leaving those for decodeM.
func decodeI(word uint32, pc uint64) (Instruction, bool) {
	opcode := field(word, 6, 0)
	rd := int(field(word, 11, 7))
	funct3 := field(word, 14, 12)
	rs1 := int(field(word, 19, 15))
	rs2 := int(field(word, 24, 20))
	funct7 := field(word, 31, 25)

	switch opcode {
	case 0b0110111: // LUI
		imm := int64(int32(word & 0xFFFFF000))
		return Instruction{Mnemonic: "lui", Form: FormU, ISA: "I", Rd: rd, Imm: imm, Length: 4, Raw: word}, true

	case 0b0010111: // AUIPC
		imm := int64(int32(word & 0xFFFFF000))
		return Instruction{Mnemonic: "auipc", Form: FormU, ISA: "I", Rd: rd, Imm: imm, Length: 4, Raw: word}, true

	case 0b1101111: // JAL
		imm20 := field(word, 31, 31)
		imm19_12 := field(word, 19, 12)
		imm11 := field(word, 20, 20)
		imm10_1 := field(word, 30, 21)
		raw := (imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1)
		imm := signExtend(raw, 21)
		return Instruction{Mnemonic: "jal", Form: FormJ, ISA: "I", Rd: rd, Imm: imm, Length: 4, Raw: word}, true

	case 0b1100111: // JALR
		if funct3 != 0 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "jalr", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true

	case 0b1100011: // Branch
		name, ok := branchName(funct3)
		if !ok {
			return Instruction{}, false
		}
		imm12 := field(word, 31, 31)
		imm10_5 := field(word, 30, 25)
		imm4_1 := field(word, 11, 8)
		imm11 := field(word, 7, 7)
		raw := (imm12 << 12) | (imm11 << 11) | (imm10_5 << 5) | (imm4_1 << 1)
		imm := signExtend(raw, 13)
		return Instruction{Mnemonic: name, Form: FormB, ISA: "I", Rs1: rs1, Rs2: rs2, Imm: imm, Length: 4, Raw: word}, true

	case 0b0000011: // Load
		name, ok := loadName(funct3)
		if !ok {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: name, Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true

	case 0b0100011: // Store
		name, ok := storeName(funct3)
		if !ok {
			return Instruction{}, false
		}
		imm11_5 := field(word, 31, 25)
		imm4_0 := field(word, 11, 7)
		raw := (imm11_5 << 5) | imm4_0
		imm := signExtend(raw, 12)
		return Instruction{Mnemonic: name, Form: FormS, ISA: "I", Rs1: rs1, Rs2: rs2, Imm: imm, Length: 4, Raw: word}, true

	case 0b0010011: // OP-IMM
		return decodeOpImm(word, rd, rs1, funct3, false)

	case 0b0011011: // OP-IMM-32
		return decodeOpImm(word, rd, rs1, funct3, true)

	case 0b0110011: // OP
		if funct7 == 0b0000001 { // M-extension, let decodeM handle it
			return Instruction{}, false
		}
		return decodeOp(word, rd, rs1, rs2, funct3, funct7, false)

	case 0b0111011: // OP-32
		if funct7 == 0b0000001 {
			return Instruction{}, false
		}
		return decodeOp(word, rd, rs1, rs2, funct3, funct7, true)

	case 0b0001111: // MISC-MEM (FENCE)
		return Instruction{Mnemonic: "fence", Form: FormI, ISA: "I", Length: 4, Raw: word}, true

	case 0b1110011: // SYSTEM
		if word>>20 == 1 {
			return Instruction{Mnemonic: "ebreak", Form: FormI, ISA: "I", Length: 4, Raw: word}, true
		}
		return Instruction{Mnemonic: "ecall", Form: FormI, ISA: "I", Length: 4, Raw: word}, true
	}
	return Instruction{}, false
}

func branchName(funct3 uint32) (string, bool) {
	switch funct3 {
	case 0b000:
		return "beq", true
	case 0b001:
		return "bne", true
	case 0b100:
		return "blt", true
	case 0b101:
		return "bge", true
	case 0b110:
		return "bltu", true
	case 0b111:
		return "bgeu", true
	}
	return "", false
}

func loadName(funct3 uint32) (string, bool) {
	switch funct3 {
	case 0b000:
		return "lb", true
	case 0b001:
		return "lh", true
	case 0b010:
		return "lw", true
	case 0b011:
		return "ld", true
	case 0b100:
		return "lbu", true
	case 0b101:
		return "lhu", true
	case 0b110:
		return "lwu", true
	}
	return "", false
}

func storeName(funct3 uint32) (string, bool) {
	switch funct3 {
	case 0b000:
		return "sb", true
	case 0b001:
		return "sh", true
	case 0b010:
		return "sw", true
	case 0b011:
		return "sd", true
	}
	return "", false
}

func decodeOpImm(word uint32, rd, rs1 int, funct3 uint32, w32 bool) (Instruction, bool) {
	suffix := ""
	if w32 {
		suffix = "w"
	}
	switch funct3 {
	case 0b000:
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "addi" + suffix, Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b010:
		if w32 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "slti", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b011:
		if w32 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "sltiu", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b100:
		if w32 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "xori", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b110:
		if w32 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "ori", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b111:
		if w32 {
			return Instruction{}, false
		}
		imm := signExtend(word>>20, 12)
		return Instruction{Mnemonic: "andi", Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: imm, Length: 4, Raw: word}, true
	case 0b001: // SLLI / SLLIW
		if field(word, 31, 26) != 0 { // clz/ctz/cpop and other B encodings
			return Instruction{}, false
		}
		shamtBits := uint(6)
		if w32 {
			shamtBits = 5
		}
		shamt := int64(field(word, 25, 20) & uint32(1<<shamtBits-1))
		return Instruction{Mnemonic: "slli" + suffix, Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: shamt, Length: 4, Raw: word}, true
	case 0b101: // SRLI/SRAI or W variants
		arithmetic := field(word, 30, 30) != 0
		shamtBits := uint(6)
		if w32 {
			shamtBits = 5
		}
		shamt := int64(field(word, 25, 20) & uint32(1<<shamtBits-1))
		name := "srli" + suffix
		if arithmetic {
			name = "srai" + suffix
		}
		return Instruction{Mnemonic: name, Form: FormI, ISA: "I", Rd: rd, Rs1: rs1, Imm: shamt, Length: 4, Raw: word}, true
	}
	return Instruction{}, false
}

func decodeOp(word uint32, rd, rs1, rs2 int, funct3, funct7 uint32, w32 bool) (Instruction, bool) {
	suffix := ""
	if w32 {
		suffix = "w"
	}
	var name string
	switch {
	case funct3 == 0b000 && funct7 == 0b0000000:
		name = "add" + suffix
	case funct3 == 0b000 && funct7 == 0b0100000:
		name = "sub" + suffix
	case funct3 == 0b001 && funct7 == 0b0000000:
		name = "sll" + suffix
	case funct3 == 0b010 && funct7 == 0b0000000 && !w32:
		name = "slt"
	case funct3 == 0b011 && funct7 == 0b0000000 && !w32:
		name = "sltu"
	case funct3 == 0b100 && funct7 == 0b0000000 && !w32:
		name = "xor"
	case funct3 == 0b101 && funct7 == 0b0000000:
		name = "srl" + suffix
	case funct3 == 0b101 && funct7 == 0b0100000:
		name = "sra" + suffix
	case funct3 == 0b110 && funct7 == 0b0000000 && !w32:
		name = "or"
	case funct3 == 0b111 && funct7 == 0b0000000 && !w32:
		name = "and"
	default:
		return Instruction{}, false
	}
	return Instruction{Mnemonic: name, Form: FormR, ISA: "I", Rd: rd, Rs1: rs1, Rs2: rs2, Length: 4, Raw: word}, true
}
