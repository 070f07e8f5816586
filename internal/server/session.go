package server

// Session 房间看到的一条客户端连接
type Session interface {
	Send(data []byte) error
	Close()
	// CloseWithoutNotify 关闭连接但不再通知房间（房间主动断开时使用）
	CloseWithoutNotify()
	RemoteAddr() string
	Stats() SessionStats
}
