package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"snapsync/pkg/core"
)

// MaxMsgLen 单条消息最大字节数
const MaxMsgLen = 64 * 1024

// 协议错误，均为致命错误（断开连接）
var (
	ErrMessageOverflow  = errors.New("读取越过消息末尾")
	ErrBadEntityNumber  = errors.New("实体编号越界")
	ErrUnexpectedOpcode = errors.New("意外的消息类型")
	ErrBadDelta         = errors.New("无效的增量字段掩码")
)

// Msg 字节游标，同时用于读和写
// 读错误是粘滞的：一旦越界，后续读取都返回零值，Err 返回 ErrMessageOverflow
type Msg struct {
	data      []byte
	readCount int
	err       error
}

// NewMsg 包装一段收到的字节，用于读取
func NewMsg(data []byte) *Msg {
	return &Msg{data: data}
}

// NewWriteMsg 创建一条用于写入的空消息
func NewWriteMsg() *Msg {
	return &Msg{data: make([]byte, 0, 1400)}
}

// Bytes 返回已写入的全部字节
func (m *Msg) Bytes() []byte { return m.data }

// Len 消息总长度
func (m *Msg) Len() int { return len(m.data) }

// ReadCount 已读取的字节数
func (m *Msg) ReadCount() int { return m.readCount }

// Remaining 剩余未读字节数
func (m *Msg) Remaining() int {
	if m.readCount >= len(m.data) {
		return 0
	}
	return len(m.data) - m.readCount
}

// Err 返回第一个读写错误
func (m *Msg) Err() error { return m.err }

// Reset 清空写入内容和错误
func (m *Msg) Reset() {
	m.data = m.data[:0]
	m.readCount = 0
	m.err = nil
}

func (m *Msg) fail(err error) {
	if m.err == nil {
		m.err = err
	}
	m.readCount = len(m.data) + 1
}

func (m *Msg) tail() []byte {
	if m.err != nil || m.readCount >= len(m.data) {
		return nil
	}
	return m.data[m.readCount:]
}

func (m *Msg) grow(n int) bool {
	if m.err != nil {
		return false
	}
	if len(m.data)+n > MaxMsgLen {
		m.err = ErrMessageOverflow
		return false
	}
	return true
}

// ========== 读取 ==========

// ReadUint8 读取一个字节
func (m *Msg) ReadUint8() uint8 {
	b := m.tail()
	if len(b) < 1 {
		m.fail(ErrMessageOverflow)
		return 0
	}
	m.readCount++
	return b[0]
}

// ReadInt16 读取两个字节的小端有符号整数
func (m *Msg) ReadInt16() int16 {
	b := m.tail()
	if len(b) < 2 {
		m.fail(ErrMessageOverflow)
		return 0
	}
	m.readCount += 2
	return int16(binary.LittleEndian.Uint16(b))
}

// ReadUvarint 读取无符号变长整数
func (m *Msg) ReadUvarint() uint64 {
	v, n := protowire.ConsumeVarint(m.tail())
	if n < 0 {
		m.fail(ErrMessageOverflow)
		return 0
	}
	m.readCount += n
	return v
}

// ReadVarint 读取 zigzag 编码的有符号变长整数
func (m *Msg) ReadVarint() int64 {
	return protowire.DecodeZigZag(m.ReadUvarint())
}

// ReadBool 读取布尔值
func (m *Msg) ReadBool() bool {
	return m.ReadUint8() != 0
}

// ReadFloat 读取小端 fixed32 浮点数
func (m *Msg) ReadFloat() float32 {
	v, n := protowire.ConsumeFixed32(m.tail())
	if n < 0 {
		m.fail(ErrMessageOverflow)
		return 0
	}
	m.readCount += n
	return math.Float32frombits(v)
}

// ReadVec3 读取三个浮点数
func (m *Msg) ReadVec3() core.Vec3 {
	return core.Vec3{m.ReadFloat(), m.ReadFloat(), m.ReadFloat()}
}

// ReadString 读取长度前缀字符串
func (m *Msg) ReadString() string {
	v, n := protowire.ConsumeBytes(m.tail())
	if n < 0 {
		m.fail(ErrMessageOverflow)
		return ""
	}
	m.readCount += n
	return string(v)
}

// ReadData 读取定长原始字节到 dst
func (m *Msg) ReadData(dst []byte) {
	b := m.tail()
	if len(b) < len(dst) {
		m.fail(ErrMessageOverflow)
		return
	}
	copy(dst, b)
	m.readCount += len(dst)
}

// SkipData 跳过 n 个字节
func (m *Msg) SkipData(n int) {
	if n > m.Remaining() {
		m.fail(ErrMessageOverflow)
		return
	}
	m.readCount += n
}

// ReadEntityNumber 读取实体编号和移除标志，0 表示列表结束
func (m *Msg) ReadEntityNumber() (int, bool) {
	v := m.ReadUvarint()
	if v>>1 >= core.MaxEdicts {
		// 保留越界编号供调用方报错
		return core.MaxEdicts, v&1 != 0
	}
	return int(v >> 1), v&1 != 0
}

// ========== 写入 ==========

// WriteUint8 写入一个字节
func (m *Msg) WriteUint8(v uint8) {
	if m.grow(1) {
		m.data = append(m.data, v)
	}
}

// WriteInt16 写入两个字节的小端有符号整数
func (m *Msg) WriteInt16(v int16) {
	if m.grow(2) {
		m.data = binary.LittleEndian.AppendUint16(m.data, uint16(v))
	}
}

// WriteUvarint 写入无符号变长整数
func (m *Msg) WriteUvarint(v uint64) {
	if m.grow(protowire.SizeVarint(v)) {
		m.data = protowire.AppendVarint(m.data, v)
	}
}

// WriteVarint 写入 zigzag 编码的有符号变长整数
func (m *Msg) WriteVarint(v int64) {
	m.WriteUvarint(protowire.EncodeZigZag(v))
}

// WriteBool 写入布尔值
func (m *Msg) WriteBool(v bool) {
	if v {
		m.WriteUint8(1)
	} else {
		m.WriteUint8(0)
	}
}

// WriteFloat 写入小端 fixed32 浮点数
func (m *Msg) WriteFloat(v float32) {
	if m.grow(4) {
		m.data = protowire.AppendFixed32(m.data, math.Float32bits(v))
	}
}

// WriteVec3 写入三个浮点数
func (m *Msg) WriteVec3(v core.Vec3) {
	m.WriteFloat(v[0])
	m.WriteFloat(v[1])
	m.WriteFloat(v[2])
}

// WriteString 写入长度前缀字符串
func (m *Msg) WriteString(s string) {
	if m.grow(protowire.SizeBytes(len(s))) {
		m.data = protowire.AppendString(m.data, s)
	}
}

// WriteData 写入原始字节
func (m *Msg) WriteData(b []byte) {
	if m.grow(len(b)) {
		m.data = append(m.data, b...)
	}
}

// WriteEntityNumber 写入实体编号和移除标志
func (m *Msg) WriteEntityNumber(number int, remove bool) {
	v := uint64(number) << 1
	if remove {
		v |= 1
	}
	m.WriteUvarint(v)
}
