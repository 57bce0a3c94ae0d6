package vm

// decodeRVC recognizes the 16-bit compressed (RVC) encodings. It is tried
// whenever the low two bits of the halfword are not both set (the
// 4-byte-instruction marker), i.e. before the 32-bit word is even fetched.
func decodeRVC(half uint16, pc uint64) (Instruction, bool) {
	w := uint32(half)
	quadrant := w & 0x3
	funct3 := field(w, 15, 13)

	switch quadrant {
	case 0b00:
		return decodeRVCQuadrant0(w, funct3)
	case 0b01:
		return decodeRVCQuadrant1(w, funct3)
	case 0b10:
		return decodeRVCQuadrant2(w, funct3)
	}
	return Instruction{}, false
}

func compressedReg(bits uint32) int { return int(bits) + 8 }

func decodeRVCQuadrant0(w, funct3 uint32) (Instruction, bool) {
	rdP := compressedReg(field(w, 4, 2))
	rs1P := compressedReg(field(w, 9, 7))

	switch funct3 {
	case 0b000: // C.ADDI4SPN
		nzuimm := (field(w, 10, 7) << 6) | (field(w, 12, 11) << 4) | (field(w, 5, 5) << 3) | (field(w, 6, 6) << 2)
		if nzuimm == 0 {
			return Instruction{}, false
		}
		return Instruction{Mnemonic: "addi", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: RegSP, Imm: int64(nzuimm), Length: 2}, true
	case 0b010: // C.LW
		imm := (field(w, 5, 5) << 6) | (field(w, 12, 10) << 3) | (field(w, 6, 6) << 2)
		return Instruction{Mnemonic: "lw", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: rs1P, Imm: int64(imm), Length: 2}, true
	case 0b011: // C.LD
		imm := (field(w, 6, 5) << 6) | (field(w, 12, 10) << 3)
		return Instruction{Mnemonic: "ld", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: rs1P, Imm: int64(imm), Length: 2}, true
	case 0b110: // C.SW
		rs2P := rdP
		imm := (field(w, 5, 5) << 6) | (field(w, 12, 10) << 3) | (field(w, 6, 6) << 2)
		return Instruction{Mnemonic: "sw", Form: FormS, ISA: "RVC", Rs1: rs1P, Rs2: rs2P, Imm: int64(imm), Length: 2}, true
	case 0b111: // C.SD
		rs2P := rdP
		imm := (field(w, 6, 5) << 6) | (field(w, 12, 10) << 3)
		return Instruction{Mnemonic: "sd", Form: FormS, ISA: "RVC", Rs1: rs1P, Rs2: rs2P, Imm: int64(imm), Length: 2}, true
	}
	return Instruction{}, false
}

func decodeRVCQuadrant1(w, funct3 uint32) (Instruction, bool) {
	rd := int(field(w, 11, 7))
	imm6 := signExtend((field(w, 12, 12)<<5)|field(w, 6, 2), 6)

	switch funct3 {
	case 0b000: // C.NOP / C.ADDI
		return Instruction{Mnemonic: "addi", Form: FormI, ISA: "RVC", Rd: rd, Rs1: rd, Imm: imm6, Length: 2}, true
	case 0b001: // C.ADDIW (RV64)
		if rd == 0 {
			return Instruction{}, false
		}
		return Instruction{Mnemonic: "addiw", Form: FormI, ISA: "RVC", Rd: rd, Rs1: rd, Imm: imm6, Length: 2}, true
	case 0b010: // C.LI
		return Instruction{Mnemonic: "addi", Form: FormI, ISA: "RVC", Rd: rd, Rs1: RegZero, Imm: imm6, Length: 2}, true
	case 0b011:
		if rd == RegSP { // C.ADDI16SP
			raw := (field(w, 12, 12) << 9) | (field(w, 4, 3) << 7) | (field(w, 5, 5) << 6) | (field(w, 2, 2) << 5) | (field(w, 6, 6) << 4)
			imm := signExtend(raw, 10)
			return Instruction{Mnemonic: "addi", Form: FormI, ISA: "RVC", Rd: RegSP, Rs1: RegSP, Imm: imm, Length: 2}, true
		}
		if rd == 0 {
			return Instruction{}, false
		}
		imm := signExtend((field(w, 12, 12)<<5)|field(w, 6, 2), 6) << 12
		return Instruction{Mnemonic: "lui", Form: FormU, ISA: "RVC", Rd: rd, Imm: imm, Length: 2}, true
	case 0b100:
		rdP := compressedReg(field(w, 9, 7))
		funct2 := field(w, 11, 10)
		switch funct2 {
		case 0b00: // C.SRLI
			shamt := (field(w, 12, 12) << 5) | field(w, 6, 2)
			return Instruction{Mnemonic: "srli", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: rdP, Imm: int64(shamt), Length: 2}, true
		case 0b01: // C.SRAI
			shamt := (field(w, 12, 12) << 5) | field(w, 6, 2)
			return Instruction{Mnemonic: "srai", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: rdP, Imm: int64(shamt), Length: 2}, true
		case 0b10: // C.ANDI
			imm := signExtend((field(w, 12, 12)<<5)|field(w, 6, 2), 6)
			return Instruction{Mnemonic: "andi", Form: FormI, ISA: "RVC", Rd: rdP, Rs1: rdP, Imm: imm, Length: 2}, true
		case 0b11: // C.SUB/C.XOR/C.OR/C.AND
			rs2P := compressedReg(field(w, 4, 2))
			var name string
			switch field(w, 6, 5) {
			case 0b00:
				name = "sub"
			case 0b01:
				name = "xor"
			case 0b10:
				name = "or"
			case 0b11:
				name = "and"
			}
			return Instruction{Mnemonic: name, Form: FormR, ISA: "RVC", Rd: rdP, Rs1: rdP, Rs2: rs2P, Length: 2}, true
		}
	case 0b101: // C.J
		raw := (field(w, 12, 12) << 11) | (field(w, 8, 8) << 10) | (field(w, 10, 9) << 8) | (field(w, 6, 6) << 7) |
			(field(w, 7, 7) << 6) | (field(w, 2, 2) << 5) | (field(w, 11, 11) << 4) | (field(w, 5, 3) << 1)
		imm := signExtend(raw, 12)
		return Instruction{Mnemonic: "jal", Form: FormJ, ISA: "RVC", Rd: RegZero, Imm: imm, Length: 2}, true
	case 0b110, 0b111: // C.BEQZ / C.BNEZ
		rs1P := compressedReg(field(w, 9, 7))
		raw := (field(w, 12, 12) << 8) | (field(w, 6, 5) << 6) | (field(w, 2, 2) << 5) | (field(w, 11, 10) << 3) | (field(w, 4, 3) << 1)
		imm := signExtend(raw, 9)
		name := "beq"
		if funct3 == 0b111 {
			name = "bne"
		}
		return Instruction{Mnemonic: name, Form: FormB, ISA: "RVC", Rs1: rs1P, Rs2: RegZero, Imm: imm, Length: 2}, true
	}
	return Instruction{}, false
}

func decodeRVCQuadrant2(w, funct3 uint32) (Instruction, bool) {
	rd := int(field(w, 11, 7))

	switch funct3 {
	case 0b000: // C.SLLI
		if rd == 0 {
			return Instruction{}, false
		}
		shamt := (field(w, 12, 12) << 5) | field(w, 6, 2)
		return Instruction{Mnemonic: "slli", Form: FormI, ISA: "RVC", Rd: rd, Rs1: rd, Imm: int64(shamt), Length: 2}, true
	case 0b010: // C.LWSP
		if rd == 0 {
			return Instruction{}, false
		}
		imm := (field(w, 12, 12) << 5) | (field(w, 6, 4) << 2) | (field(w, 3, 2) << 6)
		return Instruction{Mnemonic: "lw", Form: FormI, ISA: "RVC", Rd: rd, Rs1: RegSP, Imm: int64(imm), Length: 2}, true
	case 0b011: // C.LDSP
		if rd == 0 {
			return Instruction{}, false
		}
		imm := (field(w, 12, 12) << 5) | (field(w, 6, 5) << 3) | (field(w, 4, 2) << 6)
		return Instruction{Mnemonic: "ld", Form: FormI, ISA: "RVC", Rd: rd, Rs1: RegSP, Imm: int64(imm), Length: 2}, true
	case 0b100:
		rs2 := int(field(w, 6, 2))
		bit12 := field(w, 12, 12)
		switch {
		case bit12 == 0 && rs2 == 0 && rd != 0: // C.JR
			return Instruction{Mnemonic: "jalr", Form: FormI, ISA: "RVC", Rd: RegZero, Rs1: rd, Imm: 0, Length: 2}, true
		case bit12 == 0 && rs2 != 0: // C.MV
			return Instruction{Mnemonic: "add", Form: FormR, ISA: "RVC", Rd: rd, Rs1: RegZero, Rs2: rs2, Length: 2}, true
		case bit12 == 1 && rd == 0 && rs2 == 0: // C.EBREAK
			return Instruction{Mnemonic: "ebreak", Form: FormI, ISA: "RVC", Length: 2}, true
		case bit12 == 1 && rs2 == 0 && rd != 0: // C.JALR
			return Instruction{Mnemonic: "jalr", Form: FormI, ISA: "RVC", Rd: RegRA, Rs1: rd, Imm: 0, Length: 2}, true
		case bit12 == 1 && rs2 != 0: // C.ADD
			return Instruction{Mnemonic: "add", Form: FormR, ISA: "RVC", Rd: rd, Rs1: rd, Rs2: rs2, Length: 2}, true
		}
	case 0b110: // C.SWSP
		rs2 := int(field(w, 6, 2))
		imm := (field(w, 12, 9) << 2) | (field(w, 8, 7) << 6)
		return Instruction{Mnemonic: "sw", Form: FormS, ISA: "RVC", Rs1: RegSP, Rs2: rs2, Imm: int64(imm), Length: 2}, true
	case 0b111: // C.SDSP
		rs2 := int(field(w, 6, 2))
		imm := (field(w, 12, 10) << 3) | (field(w, 9, 7) << 6)
		return Instruction{Mnemonic: "sd", Form: FormS, ISA: "RVC", Rs1: RegSP, Rs2: rs2, Imm: int64(imm), Length: 2}, true
	}
	return Instruction{}, false
}
