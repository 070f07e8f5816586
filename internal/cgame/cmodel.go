package cgame

import (
	"snapsync/pkg/core"
)

// CModelKind 碰撞模型种类
type CModelKind uint8

const (
	CModelBrush   CModelKind = iota + 1 // 地图内联刷子模型
	CModelOctagon                       // 玩家与尸体使用的八角柱
	CModelBox                           // 其余实体的包围盒
)

// CModel 实体的碰撞模型
type CModel struct {
	Kind CModelKind
	Mins core.Vec3
	Maxs core.Vec3
}

// CollisionModels 已加载的地图碰撞几何
type CollisionModels interface {
	// FindModel 按模型引用查找刷子模型
	FindModel(model uint32) (CModel, bool)
}

// 玩家包围盒
var (
	playerMins = core.Vec3{-16, -16, -24}
	playerMaxs = core.Vec3{16, 16, 40}
)

func (s *State) findModel(model uint32) (CModel, bool) {
	if s.opts.Models == nil {
		return CModel{}, false
	}
	return s.opts.Models.FindModel(model)
}

// CModelForEntity 取实体的碰撞模型，实体不在当前帧中时返回 false
func (s *State) CModelForEntity(number int) (CModel, bool) {
	cent := s.entities.Lookup(number)
	if cent == nil || !s.Present(cent) {
		return CModel{}, false
	}

	if cm, ok := s.findModel(cent.Current.Model); ok {
		return cm, true
	}

	if cent.Type == core.ETPlayer || cent.Type == core.ETCorpse {
		return CModel{Kind: CModelOctagon, Mins: playerMins, Maxs: playerMaxs}, true
	}

	r := float32(cent.Current.Radius)
	return CModel{Kind: CModelBox, Mins: core.Vec3{-r, -r, -r}, Maxs: core.Vec3{r, r, r}}, true
}

// buildSolidList 收集参与预测碰撞的实体：刷子模型与非观察者玩家
func (s *State) buildSolidList() {
	s.solids = s.solids[:0]
	for i := range s.frame.Entities {
		state := &s.frame.Entities[i]
		if core.IsEventEntity(state) {
			continue
		}
		solid := core.IsBrushModel(state.Model) ||
			(state.Type == core.ETPlayer && state.Team != core.TeamSpectator)
		if !solid {
			continue
		}
		num, err := s.entities.Num(state.Number)
		if err != nil {
			continue
		}
		s.solids = append(s.solids, num)
	}
}

// Spatialize 音频定位用的实体位置与速度，刷子模型取包围盒中心
func (s *State) Spatialize(number int) (origin, velocity core.Vec3) {
	cent := s.entities.Lookup(number)
	if cent == nil {
		return
	}
	velocity = cent.Velocity
	origin = cent.Interpolated.Origin
	if cm, ok := s.findModel(cent.Current.Model); ok {
		origin = origin.Add(cm.Maxs.Add(cm.Mins).Mul(0.5))
	}
	return origin, velocity
}
