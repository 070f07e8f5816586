package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"snapsync/internal/config"
	"snapsync/internal/transport"
)

// GameServer 监听连接并把它们交给房间
type GameServer struct {
	cfg    config.ServerConfig
	logger *log.Logger
	room   *Room

	listener transport.Listener

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ready    chan struct{}
	shutdown chan struct{}
}

// NewGameServer 创建服务器
func NewGameServer(cfg config.ServerConfig, logger *log.Logger) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &GameServer{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Start 启动服务器，阻塞到 Shutdown
func (s *GameServer) Start() error {
	listener, err := transport.Listen(s.cfg.Proto, s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener
	s.logger.Info("服务器监听中", "addr", listener.Addr(), "proto", s.cfg.Proto)

	s.room = NewRoom(s.ctx, s.cfg, s.logger, NewTokenIssuer(s.cfg.JWTSecretEnv))

	s.wg.Add(2)
	go s.room.Run(&s.wg)
	go s.acceptLoop()
	close(s.ready)

	<-s.shutdown

	s.logger.Info("服务器正在关闭...")
	return nil
}

// Ready 开始监听后关闭
func (s *GameServer) Ready() <-chan struct{} { return s.ready }

// Addr 实际监听地址，Ready 之前为空
func (s *GameServer) Addr() string {
	select {
	case <-s.ready:
		return s.listener.Addr().String()
	default:
		return ""
	}
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.cancel()

	select {
	case <-s.ready:
		s.room.Shutdown()
		s.listener.Close()
	default:
	}

	close(s.shutdown)
	s.wg.Wait()

	s.logger.Info("服务器已关闭")
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.logger.Debug("停止接受新连接")
				return
			default:
				s.logger.Warn("接受连接失败", "err", err)
				continue
			}
		}

		s.logger.Debug("新连接", "addr", conn.RemoteAddr())

		connection := NewConnection(conn, s.room, s.logger, s.cfg.HeartbeatTimeout())
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}
