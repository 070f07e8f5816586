package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"snapsync/internal/transport"
)

// 关闭时等待发送队列写完的最长时间
const closeFlushTimeout = time.Second

var (
	ErrNotConnected   = errors.New("未连接")
	ErrSendQueueFull  = errors.New("发送队列满")
	ErrConnectionLost = errors.New("连接已断开")
)

// NetworkClient 网络客户端，只负责收发带长度前缀的包
type NetworkClient struct {
	conn       net.Conn
	serverAddr string
	proto      string
	logger     *log.Logger

	connected bool
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	packetChan chan []byte
	sendChan   chan []byte
	errChan    chan error
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(serverAddr, proto string, logger *log.Logger) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkClient{
		serverAddr: serverAddr,
		proto:      proto,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan []byte, PacketQueueSize),
		sendChan:   make(chan []byte, PacketQueueSize),
		errChan:    make(chan error, 1),
	}
}

// Connect 连接到服务器并启动收发循环
func (nc *NetworkClient) Connect() error {
	nc.logger.Info("连接到服务器", "addr", nc.serverAddr, "proto", nc.proto)

	conn, err := transport.Dial(nc.proto, nc.serverAddr)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}

	nc.mu.Lock()
	nc.conn = conn
	nc.connected = true
	nc.mu.Unlock()

	nc.logger.Info("已连接到服务器", "remote", conn.RemoteAddr())

	nc.wg.Add(2)
	go nc.receiveLoop()
	go nc.sendLoop()
	return nil
}

// Close 关闭连接：先发完已排队的包，再等待收发循环退出
func (nc *NetworkClient) Close() {
	nc.mu.Lock()
	if !nc.connected {
		nc.mu.Unlock()
		return
	}
	nc.connected = false
	close(nc.sendChan)
	nc.mu.Unlock()

	nc.conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
	nc.cancel()
	nc.wg.Wait()

	close(nc.packetChan)
	nc.logger.Info("网络客户端已关闭")
}

// IsConnected 检查是否已连接
func (nc *NetworkClient) IsConnected() bool {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.connected
}

// Packets 收到的服务器包，Close 后关闭
func (nc *NetworkClient) Packets() <-chan []byte { return nc.packetChan }

// Errors 收发循环的致命错误，最多一个
func (nc *NetworkClient) Errors() <-chan error { return nc.errChan }

// Send 排队发送一个包（非阻塞）
func (nc *NetworkClient) Send(data []byte) error {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if !nc.connected {
		return ErrNotConnected
	}
	select {
	case nc.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (nc *NetworkClient) fail(err error) {
	select {
	case nc.errChan <- err:
	default:
	}
}

// receiveLoop 接收循环
func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		data, err := transport.ReadPacket(nc.conn)
		if err != nil {
			if nc.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				nc.fail(ErrConnectionLost)
			} else {
				nc.fail(fmt.Errorf("接收失败: %w", err))
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		select {
		case nc.packetChan <- data:
		case <-nc.ctx.Done():
			return
		}
	}
}

// sendLoop 发送循环，sendChan 关闭后关闭连接
func (nc *NetworkClient) sendLoop() {
	defer nc.wg.Done()
	defer nc.conn.Close()

	for data := range nc.sendChan {
		if err := transport.WritePacket(nc.conn, data); err != nil {
			if nc.ctx.Err() == nil {
				nc.fail(fmt.Errorf("发送失败: %w", err))
			}
			for range nc.sendChan {
			}
			return
		}
	}
}
