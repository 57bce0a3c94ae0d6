package main

import (
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/nervosnetwork/ckb-standalone-debugger/mocktx"
	"github.com/nervosnetwork/ckb-standalone-debugger/resource"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func hexHash(pair byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = pair
	}
	return "0x" + hex.EncodeToString(raw)
}

func TestHashTypeByte(t *testing.T) {
	cases := map[string]byte{"data": 0, "type": 1, "data1": 2, "": 0}
	for in, want := range cases {
		if got := hashTypeByte(in); got != want {
			t.Errorf("hashTypeByte(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestHexBytesEmptyIsNil(t *testing.T) {
	b, err := hexBytes("")
	if err != nil || b != nil {
		t.Errorf("hexBytes(\"\") = %v, %v, want nil, nil", b, err)
	}
}

func TestHexBytesDecodesWithAndWithoutPrefix(t *testing.T) {
	b, err := hexBytes("0xdead")
	if err != nil || len(b) != 2 || b[0] != 0xde || b[1] != 0xad {
		t.Fatalf("hexBytes(0xdead) = %x, %v", b, err)
	}
	b2, err := hexBytes("beef")
	if err != nil || len(b2) != 2 || b2[0] != 0xbe {
		t.Fatalf("hexBytes(beef) = %x, %v", b2, err)
	}
}

func TestHexBytesInvalidErrors(t *testing.T) {
	if _, err := hexBytes("not-hex"); err == nil {
		t.Error("expected invalid hex to error")
	}
}

func TestToResourceScriptRoundTrip(t *testing.T) {
	s := mocktx.JSONScript{CodeHash: hexHash(0xab), HashType: "type", Args: "0x1234"}
	got, err := toResourceScript(s)
	if err != nil {
		t.Fatalf("toResourceScript: %v", err)
	}
	if got.HashType != 1 {
		t.Errorf("HashType = %d, want 1", got.HashType)
	}
	if got.CodeHash[0] != 0xab {
		t.Errorf("CodeHash[0] = %#x, want 0xab", got.CodeHash[0])
	}
	if len(got.Args) != 2 || got.Args[0] != 0x12 {
		t.Errorf("Args = %x, want 1234", got.Args)
	}
}

func TestToResourceScriptInvalidCodeHashErrors(t *testing.T) {
	s := mocktx.JSONScript{CodeHash: "0xabcd", HashType: "data"}
	if _, err := toResourceScript(s); err == nil {
		t.Error("expected a short code_hash to error")
	}
}

func TestToResourceCellOutputWithAndWithoutType(t *testing.T) {
	lock := mocktx.JSONScript{CodeHash: hexHash(0x01), HashType: "data"}
	out, err := toResourceCellOutput(mocktx.JSONCellOutput{Lock: lock})
	if err != nil {
		t.Fatalf("toResourceCellOutput: %v", err)
	}
	if out.Type != nil {
		t.Error("expected a nil Type when the JSON cell has none")
	}

	typ := mocktx.JSONScript{CodeHash: hexHash(0x02), HashType: "type"}
	out2, err := toResourceCellOutput(mocktx.JSONCellOutput{Lock: lock, Type: &typ})
	if err != nil {
		t.Fatalf("toResourceCellOutput: %v", err)
	}
	if out2.Type == nil || out2.Type.HashType != 1 {
		t.Errorf("expected a resolved Type script, got %+v", out2.Type)
	}
}

func TestHashScriptDeterministic(t *testing.T) {
	s := resource.Script{CodeHash: [32]byte{1, 2, 3}, HashType: 1, Args: []byte{0xaa}}
	h1 := hashScript(s)
	h2 := hashScript(s)
	if h1 != h2 {
		t.Error("expected hashScript to be deterministic for identical input")
	}
	want := blake2b.Sum256(append(append(append([]byte{}, s.CodeHash[:]...), s.HashType), s.Args...))
	if h1 != want {
		t.Errorf("hashScript = %x, want %x", h1, want)
	}
}

func TestIsaForVersion(t *testing.T) {
	if isaForVersion(vm.Version0)&vm.ISAMop != 0 {
		t.Error("version 0 must not enable the MOP extension")
	}
	if isaForVersion(vm.Version1)&vm.ISAMop == 0 {
		t.Error("version >= 1 must enable the MOP extension")
	}
}
