package server

// 连接 goroutine 投递给房间循环的事件

type joinRequest struct {
	session Session
	respCh  chan error
}

type packetEvent struct {
	session Session
	data    []byte
}
