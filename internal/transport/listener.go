package transport

import (
	"fmt"
	"net"

	kcp "github.com/xtaci/kcp-go/v5"
)

// Listener 服务器监听器，屏蔽 TCP 与 KCP 的差异
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

// Listen 按协议监听地址
func Listen(proto, addr string) (Listener, error) {
	switch proto {
	case "", "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{listener: listener}, nil
	case "kcp":
		listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{listener: listener}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProto, proto)
	}
}

type tcpListener struct {
	listener net.Listener
}

func (l *tcpListener) Accept() (net.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	tuneTCP(conn)
	return conn, nil
}

func (l *tcpListener) Close() error {
	return l.listener.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

type kcpListener struct {
	listener *kcp.Listener
}

func (l *kcpListener) Accept() (net.Conn, error) {
	session, err := l.listener.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tuneKCP(session)
	return session, nil
}

func (l *kcpListener) Close() error {
	return l.listener.Close()
}

func (l *kcpListener) Addr() net.Addr {
	return l.listener.Addr()
}
