package demo

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"

	"snapsync/internal/transport"
)

// demo 文件：zstd 压缩流，内容为 8 字节魔数 + 4 字节版本，然后是逐个服务器包（与流式连接相同的长度前缀格式）

const (
	magic   = "SNAPDEMO"
	Version = 1
)

var (
	ErrBadMagic   = errors.New("不是 demo 文件")
	ErrBadVersion = errors.New("不支持的 demo 版本")
)

// Recorder 把收到的服务器包原样写入 demo
type Recorder struct {
	file    io.Closer
	zw      *zstd.Encoder
	packets int
	bytes   int64
}

// Create 创建 demo 文件
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	rec, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rec.file = f
	return rec, nil
}

// NewRecorder 在 w 上写 demo，Close 不会关闭 w
func NewRecorder(w io.Writer) (*Recorder, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	var header [len(magic) + 4]byte
	copy(header[:], magic)
	binary.LittleEndian.PutUint32(header[len(magic):], Version)
	if _, err := zw.Write(header[:]); err != nil {
		zw.Close()
		return nil, err
	}
	return &Recorder{zw: zw}, nil
}

// WritePacket 追加一个服务器包
func (r *Recorder) WritePacket(data []byte) error {
	if err := transport.WritePacket(r.zw, data); err != nil {
		return fmt.Errorf("写入 demo 失败: %w", err)
	}
	r.packets++
	r.bytes += int64(len(data))
	return nil
}

// Packets 已写入的包数
func (r *Recorder) Packets() int { return r.packets }

// Close 刷新压缩流并关闭文件
func (r *Recorder) Close() error {
	var result *multierror.Error
	if err := r.zw.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Reader 顺序读取 demo 中的服务器包
type Reader struct {
	file io.Closer
	zr   *zstd.Decoder
	br   *bufio.Reader
}

// Open 打开 demo 文件
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.file = f
	return rd, nil
}

// NewReader 从 r 读取 demo 并检查文件头
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	rd := &Reader{zr: zr, br: bufio.NewReader(zr)}

	var header [len(magic) + 4]byte
	if _, err := io.ReadFull(rd.br, header[:]); err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %w", ErrBadMagic, err)
	}
	if string(header[:len(magic)]) != magic {
		zr.Close()
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(header[len(magic):]); v != Version {
		zr.Close()
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	return rd, nil
}

// ReadPacket 读取下一个包，结束时返回 io.EOF
func (r *Reader) ReadPacket() ([]byte, error) {
	data, err := transport.ReadPacket(r.br)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("demo 被截断: %w", err)
	}
	return data, err
}

// Close 释放解码器并关闭文件
func (r *Reader) Close() error {
	r.zr.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
