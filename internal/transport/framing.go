package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"snapsync/pkg/protocol"
)

// 流式连接上的包格式：4 字节大端长度 + 包体

var ErrPacketTooLarge = errors.New("包过大")

const headerSize = 4

// WritePacket 写入一个带长度前缀的包，头和包体一次写出
func WritePacket(w io.Writer, data []byte) error {
	if len(data) > protocol.MaxMsgLen {
		return fmt.Errorf("%w: %d", ErrPacketTooLarge, len(data))
	}
	buf := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[headerSize:], data)
	_, err := w.Write(buf)
	return err
}

// ReadPacket 读取一个带长度前缀的包
func ReadPacket(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > protocol.MaxMsgLen {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooLarge, length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
