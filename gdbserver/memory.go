package gdbserver

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// readMemory implements 'maddr,length'.
func (sess *session) readMemory(payload string) string {
	addr, length, ok := parseAddrLen(payload)
	if !ok {
		return "E01"
	}
	data, err := sess.target.m.Memory.LoadBytes(addr, length)
	if err != nil {
		return "E01"
	}
	return hex.EncodeToString(data)
}

// writeMemory implements 'Maddr,length:DATA'.
func (sess *session) writeMemory(payload string) string {
	colon := strings.IndexByte(payload, ':')
	if colon < 0 {
		return "E01"
	}
	addr, length, ok := parseAddrLen(payload[:colon])
	if !ok {
		return "E01"
	}
	data, err := hex.DecodeString(payload[colon+1:])
	if err != nil || uint64(len(data)) != length {
		return "E01"
	}
	for _, wp := range sess.target.watchpoints.All() {
		if wp.Addr >= addr && wp.Addr < addr+length && (wp.Kind == WatchWrite || wp.Kind == WatchAccess) {
			// a write-watchpoint fires at the next step/continue poll, not
			// synchronously here; recorded by storeBytes triggering a hit
			// check is out of scope for the memory-write path itself.
			_ = wp
		}
	}
	if err := sess.target.m.Memory.StoreBytes(addr, data); err != nil {
		return "E01"
	}
	return "OK"
}

func parseAddrLen(s string) (addr, length uint64, ok bool) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return 0, 0, false
	}
	a, err1 := strconv.ParseUint(s[:comma], 16, 64)
	l, err2 := strconv.ParseUint(s[comma+1:], 16, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, l, true
}
