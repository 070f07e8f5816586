package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"snapsync/pkg/protocol"
)

func TestPacketFraming(t *testing.T) {
	var buf bytes.Buffer
	packets := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{7}, 1500)}
	for _, p := range packets {
		if err := WritePacket(&buf, p); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	for i, want := range packets {
		got, err := ReadPacket(&buf)
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("包 %d 不一致: %d 字节，期望 %d 字节", i, len(got), len(want))
		}
	}
	if _, err := ReadPacket(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("读完后应返回 EOF, got %v", err)
	}
}

func TestPacketTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, make([]byte, protocol.MaxMsgLen+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("期望 ErrPacketTooLarge, got %v", err)
	}

	// 伪造超长长度头
	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := ReadPacket(&buf); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("期望 ErrPacketTooLarge, got %v", err)
	}
}

func TestTruncatedPacket(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, []byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	if _, err := ReadPacket(truncated); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("期望 ErrUnexpectedEOF, got %v", err)
	}
}

func TestTCPLoopback(t *testing.T) {
	l, err := Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	done := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- nil
			return
		}
		defer conn.Close()
		data, _ := ReadPacket(conn)
		done <- data
	}()

	conn, err := Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if err := WritePacket(conn, []byte("ping")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if got := <-done; string(got) != "ping" {
		t.Fatalf("服务器收到 %q", got)
	}
}

func TestUnsupportedProto(t *testing.T) {
	if _, err := Listen("udp", ":0"); !errors.Is(err, ErrUnsupportedProto) {
		t.Fatalf("Listen: 期望 ErrUnsupportedProto, got %v", err)
	}
	if _, err := Dial("quic", "127.0.0.1:1"); !errors.Is(err, ErrUnsupportedProto) {
		t.Fatalf("Dial: 期望 ErrUnsupportedProto, got %v", err)
	}
}
