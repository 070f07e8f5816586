package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// PacketSource 按顺序提供录制的服务器包
type PacketSource interface {
	ReadPacket() ([]byte, error)
}

// DemoPlayer 把录制的服务器包送进 demoPlaying 模式的连接状态，并按帧时间推进渲染
type DemoPlayer struct {
	conn     *ConnectionState
	src      PacketSource
	renderer Renderer
	logger   *log.Logger

	renderRate int
	timescale  float64 // 0 表示不等待，尽快播放
	frames     int64
}

// NewDemoPlayer 创建回放器，conn 必须以 DemoPlaying 创建
func NewDemoPlayer(src PacketSource, conn *ConnectionState, renderer Renderer, renderRate int, timescale float64, logger *log.Logger) *DemoPlayer {
	if renderRate <= 0 {
		renderRate = 60
	}
	return &DemoPlayer{
		conn:       conn,
		src:        src,
		renderer:   renderer,
		logger:     logger,
		renderRate: renderRate,
		timescale:  timescale,
	}
}

// Frames 已渲染的节拍数
func (p *DemoPlayer) Frames() int64 { return p.frames }

// Run 播放到文件结束、录制的断开命令或 ctx 结束
func (p *DemoPlayer) Run(ctx context.Context) error {
	step := int64(1000 / p.renderRate)
	if step < 1 {
		step = 1
	}
	var interval time.Duration
	if p.timescale > 0 {
		interval = time.Duration(float64(time.Second) / float64(p.renderRate) / p.timescale)
	}

	for ctx.Err() == nil {
		data, err := p.src.ReadPacket()
		if errors.Is(err, io.EOF) {
			p.logger.Info("demo 播放结束", "frames", p.frames)
			return nil
		}
		if err != nil {
			return err
		}

		gotFrame, err := p.conn.ParseServerMessage(data, 0)
		if errors.Is(err, ErrServerDisconnect) {
			p.logger.Info("demo 播放结束", "frames", p.frames, "reason", err)
			return nil
		}
		if err != nil {
			return err
		}
		if !gotFrame || !p.conn.CGame().Started() {
			continue
		}

		// 从上一帧的时间走到这一帧
		cg := p.conn.CGame()
		from, to := cg.OldFrame().ServerTime, cg.Frame().ServerTime
		t := min(from+step, to)
		for {
			if renderView(p.conn, p.renderer, t) {
				p.frames++
			}
			if t >= to {
				break
			}
			if interval > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
			t = min(t+step, to)
		}
	}
	return nil
}
