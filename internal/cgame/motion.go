package cgame

import (
	"snapsync/pkg/core"
)

// 抛射物在发射点附近允许回退绘制的最大距离
const (
	maxBackOffsetFirstPerson = core.ProjectilePrestep - core.MinDrawDistanceFirstPerson
	maxBackOffsetThirdPerson = core.ProjectilePrestep - core.MinDrawDistanceThirdPerson
)

// newPacketEntityState 用新帧中的实体状态刷新持久记录
func (s *State) newPacketEntityState(cent *CEntity, state *core.EntityState) {
	cent.PrevVelocity = core.Vec3{}
	cent.CanExtrapolatePrev = false

	switch {
	case core.IsEventEntity(state):
		cent.Prev = cent.Current
		cent.Current = *state
		cent.ServerFrame = s.frame.ServerFrame

		cent.Velocity = core.Vec3{}
		cent.CanExtrapolate = false

	case state.LinearMovement:
		if cent.ServerFrame != s.oldFrame.ServerFrame || state.Teleported || !core.SameMovement(state, &cent.Current) {
			cent.Prev = *state
		} else {
			cent.Prev = cent.Current
		}

		cent.Current = *state
		cent.ServerFrame = s.frame.ServerFrame

		cent.CanExtrapolate = false
		cent.LinearProjectileCanDraw = s.updateLinearProjectilePosition(cent)

		cent.Velocity = cent.Current.LinearMovementVelocity
		cent.TrailOrigin = cent.Current.Origin

	default:
		s.newGeneralEntityState(cent, state)
	}
}

func (s *State) newGeneralEntityState(cent *CEntity, state *core.EntityState) {
	// 位移过大或关键数据变化都不做插值
	if core.MovedBeyond(cent.Current.Origin, state.Origin, core.TeleportThreshold) {
		cent.ServerFrame = notPresent
	}
	if state.Model != cent.Current.Model || state.Teleported || state.LinearMovement != cent.Current.LinearMovement {
		cent.ServerFrame = notPresent
	}

	if cent.ServerFrame != s.oldFrame.ServerFrame {
		// 上一帧不在场：prev 取新状态，插值不产生位移
		cent.Prev = *state
		cent.LaserBeam = LaserBeam{}
		cent.MicroSmooth = 0
	} else {
		cent.Prev = cent.Current
	}

	cent.Current = *state
	cent.TrailOrigin = state.Origin
	cent.PrevVelocity = cent.Velocity

	cent.CanExtrapolatePrev = cent.CanExtrapolate
	cent.CanExtrapolate = false
	cent.Velocity = core.Vec3{}
	cent.ServerFrame = s.frame.ServerFrame

	switch {
	case s.opts.ExtrapolationTime != 0 && (state.Type == core.ETPlayer || state.Type == core.ETCorpse):
		// 玩家的 origin2 携带服务器下发的速度
		cent.Velocity = cent.Current.Origin2
		cent.PrevVelocity = cent.Prev.Origin2
		cent.CanExtrapolate = true
		cent.CanExtrapolatePrev = true
	case cent.Prev.Origin != cent.Current.Origin:
		snapTime := float32(s.frame.ServerTime - s.oldFrame.ServerTime)
		if snapTime == 0 {
			snapTime = float32(s.opts.SnapFrameTime)
		}
		cent.Velocity = cent.Current.Origin.Sub(cent.Prev.Origin).Mul(1000 / snapTime)
	}

	switch state.Type {
	case core.ETGeneric, core.ETPlayer, core.ETGrenade, core.ETCorpse:
		cent.CanExtrapolate = true
	}

	// 移动平台上外推会与平台错位
	if core.IsBrushModel(cent.Current.Model) {
		cent.CanExtrapolate = false
	}
}

// updateLinearProjectilePosition 按当前时间解析计算抛射物位置，返回本帧是否可绘制
// 会覆盖 cent.Current.Origin
func (s *State) updateLinearProjectilePosition(cent *CEntity) bool {
	state := &cent.Current
	if !state.LinearMovement {
		return false
	}

	var serverTime int64
	if s.gameState.Paused {
		serverTime = s.frame.ServerTime
	} else {
		serverTime = s.view.ServerTime + s.opts.ExtrapolationTime
	}

	_, hasModel := s.findModel(state.Model)
	if !hasModel {
		// 抵消服务器反延迟造成的发射点前移
		if !s.opts.DemoPlaying && s.opts.ProjectileAntilag > 0 &&
			!s.isViewer(state.OwnerNum) && s.opts.PlayerNum+1 != s.predictedPlayerState.POVNum {
			serverTime += int64(float32(state.LinearMovementTimeDelta) * s.opts.ProjectileAntilag)
		}
	}

	origin, moveTime := core.LinearMovement(state, serverTime)
	state.Origin = origin

	if moveTime < 0 && !hasModel {
		maxBackOffset := float32(maxBackOffsetThirdPerson)
		if s.isViewer(state.OwnerNum) {
			maxBackOffset = maxBackOffsetFirstPerson
		}
		if state.Origin.Sub(state.Origin2).Len() > maxBackOffset {
			return false
		}
	}
	return true
}
