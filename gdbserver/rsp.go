package gdbserver

import (
	"bufio"
	"fmt"
	"net"
)

// readPacket reads one RSP packet ($...#cc) and returns its payload; the
// session loop acknowledges it with '+'. It returns ok=false on EOF or a framing error
// that leaves the connection unrecoverable.
func readPacket(r *bufio.Reader) (string, bool) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", false
		}
		switch b {
		case '+', '-':
			continue // ack/nack of our previous reply, not a new packet
		case 0x03:
			return "\x03", true // Ctrl-C: out-of-band interrupt request
		case '$':
			var payload []byte
			for {
				c, err := r.ReadByte()
				if err != nil {
					return "", false
				}
				if c == '#' {
					// two checksum hex digits follow; RSP doesn't require
					// we validate them to proceed.
					r.ReadByte()
					r.ReadByte()
					return string(payload), true
				}
				if c == '}' { // escape: next byte XOR 0x20
					esc, err := r.ReadByte()
					if err != nil {
						return "", false
					}
					payload = append(payload, esc^0x20)
					continue
				}
				payload = append(payload, c)
			}
		}
	}
}

// writePacket frames payload as $payload#cc and writes the ack-required
// form to conn.
func writePacket(conn net.Conn, payload string) {
	sum := 0
	for i := 0; i < len(payload); i++ {
		sum += int(payload[i])
	}
	fmt.Fprintf(conn, "$%s#%02x", payload, sum&0xff)
}
