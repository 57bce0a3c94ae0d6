package gdbserver

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func TestReadPacketParsesPayload(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("$g#67"))
	payload, ok := readPacket(r)
	if !ok {
		t.Fatal("expected readPacket to succeed")
	}
	if payload != "g" {
		t.Errorf("payload = %q, want %q", payload, "g")
	}
}

func TestReadPacketSkipsAckNack(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("+-$m1000,4#00"))
	payload, ok := readPacket(r)
	if !ok {
		t.Fatal("expected readPacket to succeed")
	}
	if payload != "m1000,4" {
		t.Errorf("payload = %q, want %q", payload, "m1000,4")
	}
}

func TestReadPacketUnescapesBraceEscapes(t *testing.T) {
	// '}' followed by a byte XOR 0x20 escapes that byte; '#'^0x20 = 0x03
	r := bufio.NewReader(strings.NewReader("$a}\x03b#00"))
	payload, ok := readPacket(r)
	if !ok {
		t.Fatal("expected readPacket to succeed")
	}
	if payload != "a#b" {
		t.Errorf("payload = %q, want %q", payload, "a#b")
	}
}

func TestReadPacketCtrlCIsOutOfBand(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\x03"))
	payload, ok := readPacket(r)
	if !ok {
		t.Fatal("expected readPacket to succeed on Ctrl-C")
	}
	if payload != "\x03" {
		t.Errorf("payload = %q, want Ctrl-C byte", payload)
	}
}

func TestReadPacketEOFReturnsNotOK(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	if _, ok := readPacket(r); ok {
		t.Error("expected readPacket on an empty stream to report not-ok")
	}
}

func TestWritePacketFramesWithChecksum(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- string(buf[:n])
	}()

	writePacket(server, "OK")
	got := <-done
	want := "$OK#9a" // 'O'+'K' = 0x4f+0x4b = 0x9a
	if got != want {
		t.Errorf("writePacket wrote %q, want %q", got, want)
	}
}
