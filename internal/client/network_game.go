package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
)

var ErrConnectTimeout = errors.New("等待进入游戏超时")

// Transport 与服务器之间的包通道
type Transport interface {
	Send(data []byte) error
	Packets() <-chan []byte
	Errors() <-chan error
	Close()
}

// Dialer 建立一条新的传输连接
type Dialer func() (Transport, error)

// NetworkDialer 用 NetworkClient 连接服务器
func NetworkDialer(serverAddr, proto string, logger *log.Logger) Dialer {
	return func() (Transport, error) {
		nc := NewNetworkClient(serverAddr, proto, logger)
		if err := nc.Connect(); err != nil {
			return nil, err
		}
		return nc, nil
	}
}

// Runner 联机客户端主循环：收包、发送用户命令、按渲染频率插值并输出
type Runner struct {
	conn     *ConnectionState
	dial     Dialer
	input    InputSource
	renderer Renderer
	logger   *log.Logger

	renderRate int
	start      time.Time
	reconnects int
}

// NewRunner 创建主循环
func NewRunner(conn *ConnectionState, dial Dialer, input InputSource, renderer Renderer, renderRate int, logger *log.Logger) *Runner {
	if input == nil {
		input = IdleInput{}
	}
	if renderRate <= 0 {
		renderRate = 60
	}
	return &Runner{
		conn:       conn,
		dial:       dial,
		input:      input,
		renderer:   renderer,
		logger:     logger,
		renderRate: renderRate,
	}
}

func (r *Runner) localMs() int64 { return time.Since(r.start).Milliseconds() }

// Run 连接并运行到 ctx 结束或连接出错；ctx 结束时先通知服务器断开
func (r *Runner) Run(ctx context.Context) error {
	r.start = time.Now()

	tr, err := r.dial()
	if err != nil {
		return err
	}
	defer func() {
		if tr != nil {
			tr.Close()
		}
	}()
	if err := r.conn.Start(""); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(r.renderRate))
	defer ticker.Stop()
	deadline := time.Now().Add(ConnectTimeout)

	for {
		select {
		case <-ctx.Done():
			r.disconnect(tr)
			return nil

		case data, ok := <-tr.Packets():
			if !ok {
				continue
			}
			if _, err := r.conn.ParseServerMessage(data, r.localMs()); err != nil {
				if errors.Is(err, ErrServerDisconnect) {
					r.logger.Info("服务器断开连接", "err", err)
				}
				return err
			}
			if r.conn.State() == StateActive {
				r.reconnects = 0
			}

		case cause := <-tr.Errors():
			tr, err = r.reconnect(tr, cause)
			if err != nil {
				return err
			}
			deadline = time.Now().Add(ConnectTimeout)

		case <-ticker.C:
			if r.conn.State() != StateActive && time.Now().After(deadline) {
				return fmt.Errorf("%w: 当前阶段 %s", ErrConnectTimeout, r.conn.State())
			}
			r.frame(tr)
		}
	}
}

// frame 一个渲染节拍
func (r *Runner) frame(tr Transport) {
	serverTime := r.conn.Clock().ServerTime(r.localMs())

	cg := r.conn.CGame()
	if r.conn.State() == StateActive && cg.Started() {
		cmd := r.input.Next(cg.PredictedPlayerState(), cg.Frame(), serverTime)
		cmd.ServerTimeStamp = serverTime
		r.conn.AddUserCmd(cmd)
	}

	if err := tr.Send(r.conn.WritePacket()); err != nil {
		r.logger.Debug("发送失败", "err", err)
	}
	renderView(r.conn, r.renderer, serverTime)
}

// reconnect 连接断开后用会话令牌重连，只在已进入游戏时尝试
func (r *Runner) reconnect(old Transport, cause error) (Transport, error) {
	old.Close()

	token := r.conn.Token()
	if token == "" || (r.conn.State() != StateActive && r.reconnects == 0) {
		return nil, cause
	}
	if r.reconnects >= MaxReconnectAttempts {
		return nil, fmt.Errorf("重连 %d 次失败: %w", r.reconnects, cause)
	}
	r.reconnects++
	r.logger.Warn("连接断开，尝试重连", "attempt", r.reconnects, "err", cause)

	tr, err := r.dial()
	if err != nil {
		return nil, multierror.Append(cause, err)
	}
	if err := r.conn.Start(token); err != nil {
		tr.Close()
		return nil, err
	}
	return tr, nil
}

// disconnect 通知服务器主动断开，连接关闭前会发完
func (r *Runner) disconnect(tr Transport) {
	if r.conn.State() == StateDisconnected {
		return
	}
	if err := r.conn.SendCommand("disconnect"); err != nil {
		r.logger.Debug("无法发送 disconnect", "err", err)
		return
	}
	if err := tr.Send(r.conn.WritePacket()); err != nil {
		r.logger.Debug("无法发送 disconnect", "err", err)
	}
}
