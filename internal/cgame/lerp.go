package cgame

import (
	"snapsync/pkg/core"
)

// View 每个渲染节拍的插值参数
type View struct {
	ServerTime     int64   // 客户端估计的服务器时间（毫秒）
	LerpFrac       float32 // oldFrame 到 frame 的插值比例，[0,1]
	XerpTime       float32 // 超出当前帧的外推秒数
	OldXerpTime    float32 // 相对 oldFrame 的外推秒数
	XerpSmoothFrac float32 // 外推半帧平滑比例
}

// calcViewTiming 根据客户端服务器时间与帧对计算插值参数
func (s *State) calcViewTiming(serverTime int64) {
	v := View{ServerTime: serverTime}

	snapTime := s.frame.ServerTime - s.oldFrame.ServerTime
	if snapTime == 0 {
		snapTime = s.opts.SnapFrameTime
	}
	extrap := s.opts.ExtrapolationTime
	v.LerpFrac = core.Clamp01(float32(serverTime-extrap-s.oldFrame.ServerTime) / float32(snapTime))

	if extrap != 0 {
		v.XerpTime = 0.001 * float32(serverTime-s.frame.ServerTime)
		v.OldXerpTime = 0.001 * float32(serverTime-s.oldFrame.ServerTime)

		if serverTime >= s.frame.ServerTime {
			v.XerpSmoothFrac = core.Clamp01(float32(serverTime-s.frame.ServerTime) / float32(extrap))
		} else {
			// 落后于当前帧时从旧位置逐渐过渡到当前外推位置
			frac := core.Clamp(float32(serverTime-s.frame.ServerTime)/float32(extrap), -1, 0)
			v.XerpSmoothFrac = 1 + frac
		}

		if low := -0.001 * float32(extrap); v.XerpTime < low {
			v.XerpTime = low
		}
	}

	s.view = v
}

// LerpEntities 渲染节拍：计算插值参数并更新当前帧中所有实体的插值结果
func (s *State) LerpEntities(serverTime int64) {
	s.calcViewTiming(serverTime)

	for i := range s.frame.Entities {
		state := &s.frame.Entities[i]
		cent := s.entities.Lookup(state.Number)
		if cent == nil || cent.hidden {
			continue
		}
		if !cent.Type.Valid() {
			continue
		}
		if lerp := kinds[cent.Type].lerp; lerp != nil {
			lerp(s, cent)
		}
	}
}

// lerpMoving 线性运动实体每节拍重新解析位置，其余做插值或外推
func lerpMoving(s *State, cent *CEntity) {
	if cent.Current.LinearMovement {
		s.extrapolateLinearProjectile(cent)
		return
	}
	s.lerpGenericEnt(cent)
}

func (s *State) extrapolateLinearProjectile(cent *CEntity) {
	cent.LinearProjectileCanDraw = s.updateLinearProjectilePosition(cent)
	cent.Interpolated.Origin = cent.Current.Origin
	cent.Interpolated.Origin2 = cent.Current.Origin
	cent.Interpolated.Angles = cent.Current.Angles
}

// lerpGenericEnt 普通实体在 prev 与 current 之间插值，可外推实体带平滑外推
func (s *State) lerpGenericEnt(cent *CEntity) {
	v := &s.view
	number := cent.Current.Number

	if s.isViewer(number) {
		cent.Interpolated.Angles = s.predictedPlayerState.ViewAngles
		cent.Interpolated.Origin = s.predictedPlayerState.PMove.Origin
		cent.Interpolated.Origin2 = cent.Interpolated.Origin
	} else {
		cent.Interpolated.Angles = core.LerpAngles(cent.Prev.Angles, v.LerpFrac, cent.Current.Angles)

		if s.opts.ExtrapolationTime != 0 && cent.CanExtrapolate {
			lerpfrac := core.Clamp01(v.LerpFrac)
			current := cent.Current.Origin.Add(cent.Velocity.Mul(v.XerpTime))
			oldPosition := cent.Prev.Origin.Add(cent.PrevVelocity.Mul(v.OldXerpTime))

			// 半帧平滑
			xorigin1 := current
			if v.XerpTime < 0 && cent.CanExtrapolatePrev {
				xorigin1 = core.Lerp(oldPosition, v.XerpSmoothFrac, current)
			}

			// 整帧平滑
			xorigin2 := current
			if cent.CanExtrapolatePrev {
				xorigin2 = core.Lerp(oldPosition, lerpfrac, current)
			}

			origin := core.Lerp(xorigin1, 0.5, xorigin2)

			switch cent.MicroSmooth {
			case 2:
				old := core.Lerp(cent.MicroSmoothOrigin2, 0.65, cent.MicroSmoothOrigin)
				cent.Interpolated.Origin = core.Lerp(origin, 0.5, old)
			case 1:
				cent.Interpolated.Origin = core.Lerp(origin, 0.5, cent.MicroSmoothOrigin)
			default:
				cent.Interpolated.Origin = origin
			}

			if cent.MicroSmooth != 0 {
				cent.MicroSmoothOrigin2 = cent.MicroSmoothOrigin
			}
			cent.MicroSmoothOrigin = origin
			cent.MicroSmooth = min(2, cent.MicroSmooth+1)

			cent.Interpolated.Origin2 = cent.Interpolated.Origin
		} else {
			cent.Interpolated.Origin = core.Lerp(cent.Prev.Origin, v.LerpFrac, cent.Current.Origin)
			cent.Interpolated.Origin2 = cent.Interpolated.Origin
		}
	}

	cent.Interpolated.Animating = cent.Current.Animating
	cent.Interpolated.AnimationTime = core.LerpFloat(cent.Prev.AnimationTime, v.LerpFrac, cent.Current.AnimationTime)
}

// lerpLaser 激光两个端点分别插值
func lerpLaser(s *State, cent *CEntity) {
	cent.Interpolated.Origin = core.Lerp(cent.Prev.Origin, s.view.LerpFrac, cent.Current.Origin)
	cent.Interpolated.Origin2 = core.Lerp(cent.Prev.Origin2, s.view.LerpFrac, cent.Current.Origin2)
}

// lerpLaserbeam 延续拥有者身上的激光束效果
func lerpLaserbeam(s *State, cent *CEntity) {
	if s.isViewer(cent.Current.OwnerNum) {
		return
	}
	if owner := s.entities.Lookup(cent.Current.OwnerNum); owner != nil {
		owner.LaserBeam.Until = s.view.ServerTime + 1
	}
}

// 尖刺的三个位置（沿实体上方向的偏移）
const (
	spikesRetracted = -48
	spikesPrimed    = -36
	spikesExtended  = 0
)

// lerpSpikes 按触发后经过的时间计算尖刺伸出位置
func lerpSpikes(s *State, cent *CEntity) {
	position := float32(spikesRetracted)

	if cent.Current.Radius == 1 {
		position = spikesExtended
	} else if cent.Current.LinearMovementTimeStamp != 0 {
		span := float64(s.frame.ServerTime - s.oldFrame.ServerTime)
		now := s.oldFrame.ServerTime + int64(float64(s.view.LerpFrac)*span)
		delta := now - cent.Current.LinearMovementTimeStamp
		if delta > 0 {
			switch {
			case delta < 1000:
				// 0-100 毫秒进入预备
				t := min(1, unlerp(0, delta, 100))
				position = core.LerpFloat(spikesRetracted, t, spikesPrimed)
			case delta < 1050:
				t := min(1, unlerp(1000, delta, 1050))
				position = core.LerpFloat(spikesPrimed, t, spikesExtended)
			default:
				// 1500-2000 毫秒收回
				t := core.Clamp01(unlerp(1500, delta, 2000))
				position = core.LerpFloat(spikesExtended, t, spikesRetracted)
			}
		}
	}

	_, _, up := core.AngleVectors(cent.Current.Angles)
	cent.Interpolated.Angles = cent.Current.Angles
	cent.Interpolated.Origin = cent.Current.Origin.Add(up.Mul(position))
	cent.Interpolated.Origin2 = cent.Interpolated.Origin
}

func unlerp(lo, v, hi int64) float32 {
	return float32(v-lo) / float32(hi-lo)
}
