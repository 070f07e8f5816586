package client

import (
	"github.com/charmbracelet/log"

	"snapsync/internal/cgame"
	"snapsync/pkg/core"
)

// RenderFrame 一个渲染节拍的输出
type RenderFrame struct {
	View        cgame.View
	PlayerState core.PlayerState
	Drawables   []cgame.Drawable
	Messages    []cgame.Message
	Events      []core.EntityState // 本帧新到的事件实体，每帧只出现一次
}

// Renderer 渲染后端
type Renderer interface {
	Render(frame RenderFrame)
	Sound(number int, name string)
}

// renderView 插值实体并把结果交给渲染后端，第一帧到达之前什么都不做
func renderView(conn *ConnectionState, r Renderer, serverTime int64) bool {
	cg := conn.CGame()
	if !cg.Started() {
		return false
	}
	cg.LerpEntities(serverTime)

	frame := RenderFrame{
		View:        cg.View(),
		PlayerState: *cg.PredictedPlayerState(),
		Drawables:   cg.Drawables(),
		Messages:    cg.TakeMessages(),
	}
	if cg.FireEvents() {
		for _, ent := range cg.Frame().Entities {
			if core.IsEventEntity(&ent) {
				frame.Events = append(frame.Events, ent)
			}
		}
		cg.ConsumeEvents()
	}
	r.Render(frame)
	return true
}

// LogRenderer 把渲染结果写进日志的无界面后端
type LogRenderer struct {
	logger *log.Logger
	frames int64
	last   RenderFrame
}

// NewLogRenderer 创建日志渲染器
func NewLogRenderer(logger *log.Logger) *LogRenderer {
	return &LogRenderer{logger: logger.WithPrefix("render")}
}

func (r *LogRenderer) Render(frame RenderFrame) {
	r.frames++
	r.last = frame
	for _, msg := range frame.Messages {
		r.logger.Info(msg.Text, "kind", msg.Kind)
	}
	for _, ev := range frame.Events {
		r.logger.Debug("事件", "entity", ev.Number, "type", ev.Type, "origin", ev.Origin)
	}
	r.logger.Debug("frame",
		"time", frame.View.ServerTime,
		"lerp", frame.View.LerpFrac,
		"pov", frame.PlayerState.POVNum,
		"entities", len(frame.Drawables))
}

func (r *LogRenderer) Sound(number int, name string) {
	r.logger.Debug("音效", "entity", number, "sound", name)
}

// Frames 已渲染的节拍数
func (r *LogRenderer) Frames() int64 { return r.frames }
