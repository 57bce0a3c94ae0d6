package gdbserver

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// readAllRegisters implements 'g': x0..x31 then pc, each as little-endian
// 8-byte hex, the order GDB's RISC-V target description expects.
func (sess *session) readAllRegisters() string {
	m := sess.target.m
	var out []byte
	for i := 0; i < 32; i++ {
		out = append(out, leHex(m.Regs.Get(i))...)
	}
	out = append(out, leHex(m.Regs.PC())...)
	return string(out)
}

// writeAllRegisters implements 'G': the inverse of readAllRegisters.
func (sess *session) writeAllRegisters(payload string) string {
	raw, err := hex.DecodeString(payload)
	if err != nil || len(raw) < 33*8 {
		return "E01"
	}
	m := sess.target.m
	for i := 0; i < 32; i++ {
		m.Regs.Set(i, binary.LittleEndian.Uint64(raw[i*8:]))
	}
	m.Regs.SetNextPC(binary.LittleEndian.Uint64(raw[32*8:]))
	return "OK"
}

// readRegister implements 'pN': a single register by GDB register index
// (0-31 general purpose, 32 is pc).
func (sess *session) readRegister(payload string) string {
	idx, err := strconv.ParseUint(payload, 16, 32)
	if err != nil {
		return "E01"
	}
	m := sess.target.m
	if idx == 32 {
		return string(leHex(m.Regs.PC()))
	}
	if idx > 31 {
		return "E01"
	}
	return string(leHex(m.Regs.Get(int(idx))))
}

// writeRegister implements 'PN=VALUE'.
func (sess *session) writeRegister(payload string) string {
	eq := -1
	for i, c := range payload {
		if c == '=' {
			eq = i
			break
		}
	}
	if eq < 0 {
		return "E01"
	}
	idx, err1 := strconv.ParseUint(payload[:eq], 16, 32)
	raw, err2 := hex.DecodeString(payload[eq+1:])
	if err1 != nil || err2 != nil || len(raw) < 8 {
		return "E01"
	}
	value := binary.LittleEndian.Uint64(raw)
	m := sess.target.m
	if idx == 32 {
		m.Regs.SetNextPC(value)
		return "OK"
	}
	if idx > 31 {
		return "E01"
	}
	m.Regs.Set(int(idx), value)
	return "OK"
}

func leHex(v uint64) []byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return []byte(hex.EncodeToString(raw[:]))
}
