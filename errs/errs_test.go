package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestKindOfMatchesConstructor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"decode", Decode(0x1000, "bad encoding"), KindDecode},
		{"memory", Memory(0x2000, "out of bounds"), KindMemory},
		{"cycle", Cycle(0x3000, 100, 50), KindCycle},
		{"invalid version", InvalidVersion("mop needs v1"), KindInvalidVersion},
		{"yield", ErrYield, KindYield},
		{"overlap", Overlap(0x4000, 0x5000), KindOverlap},
		{"external", External("bad thing: %d", 1), KindExternal},
		{"usage", Usage("missing flag"), KindUsage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestKindOfNonVMErrorDefaultsExternal(t *testing.T) {
	if got := KindOf(errors.New("plain error")); got != KindExternal {
		t.Errorf("KindOf(plain error) = %v, want KindExternal", got)
	}
}

func TestVMErrorMessageIncludesPC(t *testing.T) {
	err := Decode(0x1234, "unrecognized instruction")
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error message")
	}
	if !strings.Contains(msg, "0x0000000000001234") {
		t.Errorf("error message %q should include the PC", msg)
	}
}

func TestVMErrorUnwrap(t *testing.T) {
	inner := errors.New("inner cause")
	wrapped := &VMError{Kind: KindExternal, Message: "outer", Wrapped: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestKindStringValues(t *testing.T) {
	cases := map[Kind]string{
		KindDecode:         "Decode",
		KindMemory:         "Memory",
		KindCycle:          "CyclesExceeded",
		KindInvalidVersion: "InvalidVersion",
		KindYield:          "Yield",
		KindOverlap:        "Overlap",
		KindExternal:       "External",
		KindUsage:          "Usage",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
