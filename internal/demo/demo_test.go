package demo

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.demo")
	rec, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	packets := [][]byte{[]byte("serverdata"), bytes.Repeat([]byte{1, 2, 3}, 500), []byte("frame")}
	for _, p := range packets {
		if err := rec.WritePacket(p); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if rec.Packets() != len(packets) {
		t.Fatalf("Packets = %d", rec.Packets())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rd.Close()
	for i, want := range packets {
		got, err := rd.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("包 %d 不一致", i)
		}
	}
	if _, err := rd.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Fatalf("结尾应返回 EOF, got %v", err)
	}
}

func TestBadHeader(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	zw.Write([]byte("NOTADEMO\x01\x00\x00\x00"))
	zw.Close()

	if _, err := NewReader(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("期望 ErrBadMagic, got %v", err)
	}

	buf.Reset()
	zw, _ = zstd.NewWriter(&buf)
	zw.Write([]byte("SNAPDEMO\x09\x00\x00\x00"))
	zw.Close()
	if _, err := NewReader(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("期望 ErrBadVersion, got %v", err)
	}
}

func TestTruncatedDemo(t *testing.T) {
	var raw bytes.Buffer
	zw, _ := zstd.NewWriter(&raw)
	zw.Write([]byte("SNAPDEMO\x01\x00\x00\x00"))
	zw.Write([]byte{0, 0, 0, 10, 'a', 'b'})
	zw.Close()

	rd, err := NewReader(bytes.NewReader(raw.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()
	if _, err := rd.ReadPacket(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("截断的包应返回 ErrUnexpectedEOF, got %v", err)
	}
}
