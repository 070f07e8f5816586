package cgame

import (
	"github.com/hashicorp/go-multierror"

	"snapsync/pkg/core"
	"snapsync/pkg/snapshot"
)

// NewFrameSnap 接收一个新解析的服务器帧
// lerpFrame 为插值起点，nil 时用 frame 本身（无插值）
// 返回 false 表示资源未加载完或帧无效，此时只更新了实体记录
func (s *State) NewFrameSnap(frame, lerpFrame *snapshot.Frame) (ready bool, err error) {
	defer func() { err = multierror.Prefix(err, "cgame.NewFrameSnap:") }()

	if lerpFrame != nil {
		s.oldFrame.CopyFrom(lerpFrame)
	} else {
		s.oldFrame.CopyFrom(frame)
	}
	s.frame.CopyFrom(frame)
	s.gameState = frame.GameState
	s.opts.ProjectileAntilag = clampAntilag(s.opts.ProjectileAntilag)

	s.updatePlayerState()

	for i := range s.frame.Entities {
		state := &s.frame.Entities[i]
		num, err := s.entities.Num(state.Number)
		if err != nil {
			return false, err
		}
		s.newPacketEntityState(s.entities.At(num), state)
	}

	if !s.precacheDone || !s.frame.Valid {
		return false, nil
	}

	s.buildSolidList()
	if err := s.updateEntities(); err != nil {
		return false, err
	}

	s.fireEvents = true

	s.dispatchGameCommands()

	s.firstFrame = false
	return true, nil
}

// updateEntities 按类型准备本帧要绘制的实体
func (s *State) updateEntities() error {
	for i := range s.frame.Entities {
		state := &s.frame.Entities[i]
		cent := s.entities.Lookup(state.Number)

		if s.opts.DemoPlaying && !s.demoVisible(state) {
			cent.hidden = true
			continue
		}
		cent.hidden = false
		cent.Type = state.Type
		cent.Effects = state.Effects

		kind, err := kindOf(cent.Type)
		if err != nil {
			return err
		}
		if kind.update != nil {
			if err := kind.update(s, cent); err != nil {
				return err
			}
		}
	}
	return nil
}

// demoVisible 回放时按服务器可见性标志过滤实体
func (s *State) demoVisible(state *core.EntityState) bool {
	ps := &s.predictedPlayerState
	if state.SVFlags&core.SVFOnlyTeam != 0 && ps.Team != state.Team {
		return false
	}
	if state.SVFlags&(core.SVFOnlyOwner|core.SVFOwnerAndChasers) != 0 && ps.POVNum != state.OwnerNum {
		return false
	}
	return true
}

// dispatchGameCommands 执行目标包含当前视角的游戏命令
func (s *State) dispatchGameCommands() {
	target := s.frame.PlayerState.POVNum - 1
	for i := range s.frame.GameCommands {
		gc := &s.frame.GameCommands[i]
		if !gc.IsTarget(target) {
			continue
		}
		if err := s.commands.Execute(s, gc.Text); err != nil {
			s.logger.Warn("游戏命令执行失败", "cmd", gc.Text, "err", err)
		}
	}
}

// Drawable 本节拍可绘制的实体
type Drawable struct {
	Number    int
	Type      core.EntityType
	Model     uint32
	Team      int
	Origin    core.Vec3
	Origin2   core.Vec3
	Angles    core.Vec3
	LaserBeam bool // 拥有者身上带激光束
}

// Drawables 收集当前帧的可绘制实体，并记录拖尾起点
func (s *State) Drawables() []Drawable {
	var out []Drawable
	for i := range s.frame.Entities {
		cent := s.entities.Lookup(s.frame.Entities[i].Number)
		if cent == nil || cent.hidden {
			continue
		}
		if cent.Current.LinearMovement && !cent.LinearProjectileCanDraw {
			continue
		}
		kind, err := kindOf(cent.Type)
		if err != nil || kind.drawable == nil || !kind.drawable(s, cent) {
			continue
		}

		d := Drawable{
			Number:    cent.Current.Number,
			Type:      cent.Type,
			Model:     cent.Current.Model,
			Team:      cent.Current.Team,
			Origin:    cent.Interpolated.Origin,
			Origin2:   cent.Interpolated.Origin2,
			Angles:    cent.Interpolated.Angles,
			LaserBeam: cent.LaserBeam.Until > s.view.ServerTime,
		}
		if kind.lerp == nil {
			// 静止实体直接使用当前状态
			d.Origin = cent.Current.Origin
			d.Origin2 = cent.Current.Origin2
			d.Angles = cent.Current.Angles
		}
		out = append(out, d)
		cent.TrailOrigin = d.Origin
	}
	return out
}
