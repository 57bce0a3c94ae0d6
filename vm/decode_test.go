package vm

import "testing"

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func storeWord(t *testing.T, m *Memory, pc uint64, word uint32) {
	t.Helper()
	m.InitPages(pc, PageSize, 0, nil, 0)
	if err := m.Store32(pc, word); err != nil {
		t.Fatalf("Store32: %v", err)
	}
	m.SetFlag(pc, FlagExecutable)
}

func TestDecodeAddi(t *testing.T) {
	m := NewMemory()
	storeWord(t, m, 0, encodeI(0b0010011, 5, 0b000, 6, 10))

	d := NewDecoder(ISAImc)
	inst, err := d.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if inst.Mnemonic != "addi" {
		t.Errorf("Mnemonic = %q, want addi", inst.Mnemonic)
	}
	if inst.Rd != 5 || inst.Rs1 != 6 || inst.Imm != 10 {
		t.Errorf("got rd=%d rs1=%d imm=%d, want rd=5 rs1=6 imm=10", inst.Rd, inst.Rs1, inst.Imm)
	}
	if inst.ISA != "I" || inst.Form != FormI || inst.Length != 4 {
		t.Errorf("unexpected tag: isa=%s form=%v length=%d", inst.ISA, inst.Form, inst.Length)
	}
}

func TestDecodeMulRecognizedByM(t *testing.T) {
	m := NewMemory()
	storeWord(t, m, 0, encodeR(0b0110011, 7, 0b000, 8, 9, 0b0000001))

	d := NewDecoder(ISAImc)
	inst, err := d.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if inst.Mnemonic != "mul" || inst.ISA != "M" {
		t.Errorf("got mnemonic=%q isa=%q, want mul/M", inst.Mnemonic, inst.ISA)
	}
}

func TestDecodeAmoswapRequiresISAA(t *testing.T) {
	word := encodeR(0b0101111, 10, 0b010, 11, 12, 0b00001<<2)

	m := NewMemory()
	storeWord(t, m, 0, word)

	without := NewDecoder(ISAImc)
	if _, err := without.Decode(m, 0); err == nil {
		t.Error("expected decode failure without ISAA enabled")
	}

	with := NewDecoder(ISAImc | ISAA)
	inst, err := with.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode with ISAA: %v", err)
	}
	if inst.ISA != "A" {
		t.Errorf("ISA = %q, want A", inst.ISA)
	}
}

func TestDecodeAndnRequiresISAB(t *testing.T) {
	word := encodeR(0b0110011, 13, 0b111, 14, 15, 0b0100000)

	m := NewMemory()
	storeWord(t, m, 0, word)

	without := NewDecoder(ISAImc)
	if _, err := without.Decode(m, 0); err == nil {
		t.Error("expected decode failure without ISAB enabled")
	}

	with := NewDecoder(ISAImc | ISAB)
	inst, err := with.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode with ISAB: %v", err)
	}
	if inst.Mnemonic != "andn" || inst.ISA != "B" {
		t.Errorf("got mnemonic=%q isa=%q, want andn/B", inst.Mnemonic, inst.ISA)
	}
}

func TestDecodeUnrecognizedEncodingErrors(t *testing.T) {
	m := NewMemory()
	storeWord(t, m, 0, 0b1111111)

	d := NewDecoder(ISAImc)
	if _, err := d.Decode(m, 0); err == nil {
		t.Error("expected an error for an unrecognized encoding")
	}
}

func TestDecodeCachesByPC(t *testing.T) {
	m := NewMemory()
	storeWord(t, m, 0, encodeI(0b0010011, 1, 0b000, 0, 5))

	d := NewDecoder(ISAImc)
	first, err := d.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Overwrite the underlying word; a cached decode should still return
	// the original instruction until Reset.
	m.ClearFlag(0, FlagExecutable)
	if err := m.Store32(0, encodeI(0b0010011, 2, 0b000, 0, 9)); err != nil {
		t.Fatalf("Store32: %v", err)
	}
	m.SetFlag(0, FlagExecutable)
	second, err := d.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if second.Rd != first.Rd {
		t.Errorf("expected cached decode to be reused, got rd=%d want rd=%d", second.Rd, first.Rd)
	}

	d.Reset()
	third, err := d.Decode(m, 0)
	if err != nil {
		t.Fatalf("Decode after Reset: %v", err)
	}
	if third.Rd != 2 {
		t.Errorf("expected fresh decode after Reset to see rd=2, got rd=%d", third.Rd)
	}
}
