package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/atomic"

	"snapsync/internal/transport"
)

const (
	sendQueueSize     = 256
	writeTimeout      = 1 * time.Second
	heartbeatInterval = 5 * time.Second
)

var (
	ErrSendQueueFull    = errors.New("发送队列满")
	ErrConnectionClosed = errors.New("连接已关闭")
)

// SessionStats 连接流量统计
type SessionStats struct {
	BytesIn   int64
	BytesOut  int64
	Dropped   int64 // 因发送队列满丢弃的包
	LastRecv  time.Time
	Connected time.Time
}

// Connection 一条传输连接：收到的包投递给房间，房间的包经发送队列写出
type Connection struct {
	conn   net.Conn
	room   *Room
	logger *log.Logger

	heartbeatTimeout time.Duration

	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	connected    time.Time
	lastRecvTime atomic.Time
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	dropped      atomic.Int64
}

// NewConnection 包装一条已接受的连接
func NewConnection(conn net.Conn, room *Room, logger *log.Logger, heartbeatTimeout time.Duration) *Connection {
	c := &Connection{
		conn:             conn,
		room:             room,
		logger:           logger.With("addr", conn.RemoteAddr().String()),
		heartbeatTimeout: heartbeatTimeout,
		sendChan:         make(chan []byte, sendQueueSize),
		closeCh:          make(chan struct{}),
		connected:        time.Now(),
	}
	c.lastRecvTime.Store(c.connected)
	return c
}

// Handle 向房间申请槽位，然后运行收发循环直到连接关闭
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := c.room.Join(c); err != nil {
		c.logger.Warn("拒绝连接", "err", err)
		c.CloseWithoutNotify()
		c.conn.Close()
		return
	}
	c.logger.Debug("连接处理开始")

	wg.Add(3)
	go c.startHeartbeat(ctx, wg)
	go c.sendLoop(ctx, wg)
	go c.receiveLoop(ctx, wg)

	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close()
}

// Close 关闭连接并通知房间
func (c *Connection) Close() {
	c.closeWithNotify(true)
}

// CloseWithoutNotify 关闭连接但不通知房间
func (c *Connection) CloseWithoutNotify() {
	c.closeWithNotify(false)
}

func (c *Connection) closeWithNotify(notify bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeCh)

	// 唤醒接收循环；连接由发送循环写完队列后关闭
	_ = c.conn.SetReadDeadline(time.Now())
	close(c.sendChan)

	if notify {
		c.room.Leave(c)
	}

	c.logger.Debug("连接已关闭", "in", c.bytesIn.Load(), "out", c.bytesOut.Load())
}

// Send 把包放入发送队列（异步）
func (c *Connection) Send(data []byte) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- data:
		return nil
	default:
		c.dropped.Inc()
		return ErrSendQueueFull
	}
}

// RemoteAddr 对端地址
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Stats 返回流量统计快照
func (c *Connection) Stats() SessionStats {
	return SessionStats{
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		Dropped:   c.dropped.Load(),
		LastRecv:  c.lastRecvTime.Load(),
		Connected: c.connected,
	}
}

func (c *Connection) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{%s}", c.conn.RemoteAddr())
}

func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-c.sendChan:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := transport.WritePacket(c.conn, data); err != nil {
				c.logger.Warn("发送失败", "err", err)
				c.Close()
				return
			}
			c.bytesOut.Add(int64(len(data)))
		}
	}
}

func (c *Connection) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := transport.ReadPacket(c.conn)
		if err != nil {
			var netErr net.Error
			switch {
			case c.isClosed(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Info("读取超时")
			default:
				c.logger.Warn("读取失败", "err", err)
			}
			c.Close()
			return
		}

		c.lastRecvTime.Store(time.Now())
		c.bytesIn.Add(int64(len(data)))
		if len(data) == 0 {
			continue
		}
		c.room.Deliver(c, data)
	}
}

// startHeartbeat 客户端每帧都会发包，长时间无包视为断线
func (c *Connection) startHeartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if time.Since(c.lastRecvTime.Load()) > c.heartbeatTimeout {
				c.logger.Info("心跳超时")
				c.Close()
				return
			}
		}
	}
}
