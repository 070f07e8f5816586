package cgame

import (
	"errors"
	"fmt"

	"snapsync/pkg/core"
)

var (
	ErrUnknownEntityType = errors.New("未知实体类型")
	ErrLaserBeamOwner    = errors.New("激光束拥有者不在当前帧")
)

// entityKind 按实体类型分派的处理函数，nil 表示该阶段无事可做
type entityKind struct {
	update   func(s *State, cent *CEntity) error // 新帧到达
	lerp     func(s *State, cent *CEntity)       // 渲染节拍
	drawable func(s *State, cent *CEntity) bool  // 本节拍是否可绘制
}

var (
	movingKind = entityKind{update: updateGeneric, lerp: lerpMoving, drawable: drawAlways}
	playerKind = entityKind{update: updateGeneric, lerp: lerpMoving, drawable: drawPlayer}
)

var kinds = [core.EntityTypeCount]entityKind{
	core.ETGeneric:     movingKind,
	core.ETRocket:      movingKind,
	core.ETGrenade:     movingKind,
	core.ETARBullet:    movingKind,
	core.ETBubble:      movingKind,
	core.ETRifleBullet: movingKind,
	core.ETStake:       movingKind,
	core.ETBlast:       movingKind,
	core.ETSpeaker:     movingKind,

	core.ETPlayer: playerKind,
	core.ETCorpse: playerKind,

	core.ETGhost: {lerp: lerpMoving},
	core.ETBomb:  {lerp: lerpMoving, drawable: drawAlways},

	core.ETDecal:    {drawable: drawAlways},
	core.ETBombSite: {drawable: drawAlways},
	core.ETLaser:    {lerp: lerpLaser, drawable: drawAlways},
	core.ETSpikes:   {update: updateSpikes, lerp: lerpSpikes, drawable: drawAlways},

	core.ETLaserBeam: {update: updateLaserbeam, lerp: lerpLaserbeam},

	core.ETJumpPad:           {},
	core.ETPainkillerJumpPad: {},
	core.ETEvent:             {},
	core.ETSoundEvent:        {},
}

func kindOf(t core.EntityType) (*entityKind, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntityType, uint8(t))
	}
	return &kinds[t], nil
}

// updateGeneric 清空上一帧的插值结果
func updateGeneric(_ *State, cent *CEntity) error {
	cent.Interpolated = Interpolated{}
	return nil
}

// updateLaserbeam 把激光束端点挂到拥有者身上，拥有者必须在当前帧中
func updateLaserbeam(s *State, cent *CEntity) error {
	if s.isViewer(cent.Current.OwnerNum) {
		return nil
	}

	owner := s.entities.Lookup(cent.Current.OwnerNum)
	if owner == nil || !s.Present(owner) {
		return fmt.Errorf("%w: 激光束 %d 拥有者 %d", ErrLaserBeamOwner, cent.Current.Number, cent.Current.OwnerNum)
	}

	owner.LaserBeam = LaserBeam{
		Origin:    cent.Current.Origin,
		Point:     cent.Current.Origin2,
		OriginOld: cent.Prev.Origin,
		PointOld:  cent.Prev.Origin2,
		Until:     s.view.ServerTime + 10,
	}
	return nil
}

// 尖刺各阶段起始时间（毫秒，相对触发时间）
var spikesPhases = []struct {
	at    int64
	sound string
}{
	{0, "sounds/spikes/arm"},
	{1000, "sounds/spikes/retract"},
	{1050, "sounds/spikes/glint"},
	{1500, "sounds/spikes/retract"},
}

// updateSpikes 跨过阶段边界时播放对应音效
func updateSpikes(s *State, cent *CEntity) error {
	if err := updateGeneric(s, cent); err != nil {
		return err
	}
	if cent.Current.LinearMovementTimeStamp == 0 {
		return nil
	}

	oldDelta := s.oldFrame.ServerTime - cent.Current.LinearMovementTimeStamp
	delta := s.frame.ServerTime - cent.Current.LinearMovementTimeStamp
	for _, phase := range spikesPhases {
		if oldDelta < phase.at && delta >= phase.at {
			s.sound(cent.Current.Number, phase.sound)
			break
		}
	}
	return nil
}

func drawAlways(*State, *CEntity) bool { return true }

func drawPlayer(_ *State, cent *CEntity) bool {
	return cent.Current.Team != core.TeamSpectator
}
