package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
)

var ErrUnsupportedProto = errors.New("不支持的协议")

// DialTimeout 建立连接的超时
const DialTimeout = 5 * time.Second

// Dial 按协议连接服务器
func Dial(proto, addr string) (net.Conn, error) {
	switch proto {
	case "", "tcp":
		conn, err := net.DialTimeout("tcp", addr, DialTimeout)
		if err != nil {
			return nil, err
		}
		tuneTCP(conn)
		return conn, nil
	case "kcp":
		session, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		tuneKCP(session)
		return session, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProto, proto)
	}
}

// tuneTCP 关闭 Nagle 算法，快照需要立即发出
func tuneTCP(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
}

// tuneKCP 低延迟模式，流模式下由长度前缀划分包边界
func tuneKCP(session *kcp.UDPSession) {
	session.SetStreamMode(true)
	session.SetNoDelay(1, 10, 2, 1)
	session.SetWindowSize(256, 256)
	session.SetACKNoDelay(true)
}
