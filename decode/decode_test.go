package decode

import (
	"strings"
	"testing"
)

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	imm11_5 := (u >> 5) & 0x7f
	imm4_0 := u & 0x1f
	return imm11_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm4_0<<7 | opcode
}

func encodeU(opcode, rd, imm20 uint32) uint32 {
	return imm20<<12 | rd<<7 | opcode
}

func TestWordDecodesAddi(t *testing.T) {
	res, err := Word(encodeI(0b0010011, 5, 0b000, 0, 1)) // addi x5, x0, 1
	if err != nil {
		t.Fatalf("Word: %v", err)
	}
	if res.Mnemonic != "addi" || res.ISA != "I" || res.Length != 4 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Assembly != "addi x5, x0, 1" {
		t.Errorf("Assembly = %q, want %q", res.Assembly, "addi x5, x0, 1")
	}
}

func TestWordDecodesAdd(t *testing.T) {
	res, err := Word(encodeR(0b0110011, 3, 0b000, 1, 2, 0b0000000)) // add x3, x1, x2
	if err != nil {
		t.Fatalf("Word: %v", err)
	}
	if res.Mnemonic != "add" {
		t.Errorf("Mnemonic = %q, want add", res.Mnemonic)
	}
	if res.Assembly != "add x3, x1, x2" {
		t.Errorf("Assembly = %q, want %q", res.Assembly, "add x3, x1, x2")
	}
}

func TestWordDecodesStore(t *testing.T) {
	res, err := Word(encodeS(0b0100011, 0b010, 1, 2, 4)) // sw x2, 4(x1)
	if err != nil {
		t.Fatalf("Word: %v", err)
	}
	if res.Mnemonic != "sw" {
		t.Errorf("Mnemonic = %q, want sw", res.Mnemonic)
	}
	if res.Assembly != "sw x2, 4(x1)" {
		t.Errorf("Assembly = %q, want %q", res.Assembly, "sw x2, 4(x1)")
	}
}

func TestWordDecodesLui(t *testing.T) {
	res, err := Word(encodeU(0b0110111, 1, 0x12345)) // lui x1, 0x12345
	if err != nil {
		t.Fatalf("Word: %v", err)
	}
	if res.Mnemonic != "lui" || res.Length != 4 {
		t.Errorf("unexpected result: %+v", res)
	}
	if !strings.HasPrefix(res.Assembly, "lui x1, ") {
		t.Errorf("Assembly = %q, want a lui x1, ... form", res.Assembly)
	}
}

func TestWordRejectsUnrecognizedEncoding(t *testing.T) {
	if _, err := Word(0x0000007F); err == nil { // opcode 0b1111111, claimed by no factory
		t.Error("expected an unrecognized opcode to error")
	}
}

func TestParseWordHex(t *testing.T) {
	v, err := ParseWord("0x1234")
	if err != nil {
		t.Fatalf("ParseWord: %v", err)
	}
	if v != 0x1234 {
		t.Errorf("ParseWord(0x1234) = %#x, want 0x1234", v)
	}
}

func TestParseWordDecimal(t *testing.T) {
	v, err := ParseWord("4660")
	if err != nil {
		t.Fatalf("ParseWord: %v", err)
	}
	if v != 4660 {
		t.Errorf("ParseWord(4660) = %d, want 4660", v)
	}
}

func TestParseWordInvalidErrors(t *testing.T) {
	if _, err := ParseWord("not-a-number"); err == nil {
		t.Error("expected an invalid literal to error")
	}
}
