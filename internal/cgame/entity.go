package cgame

import (
	"fmt"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
)

// notPresent 强制下一次更新不做插值的帧号
const notPresent = -99

// EntityNum 经过边界检查的实体编号，只能由 Entities.Num 产生
type EntityNum int

// Interpolated 渲染节拍计算出的插值结果
type Interpolated struct {
	Origin        core.Vec3
	Origin2       core.Vec3
	Angles        core.Vec3
	Animating     bool
	AnimationTime float32
}

// LaserBeam 拥有者身上的激光束效果
type LaserBeam struct {
	Origin    core.Vec3
	Point     core.Vec3
	OriginOld core.Vec3
	PointOld  core.Vec3
	Until     int64 // 效果持续到的客户端服务器时间
}

// CEntity 每个实体槽位的持久运动记录
type CEntity struct {
	Prev        core.EntityState
	Current     core.EntityState
	ServerFrame int64 // 最近一次刷新所在的服务器帧，与当前帧不等即不在场

	Type    core.EntityType
	Effects uint32

	Velocity           core.Vec3
	PrevVelocity       core.Vec3
	CanExtrapolate     bool
	CanExtrapolatePrev bool

	MicroSmooth        int
	MicroSmoothOrigin  core.Vec3
	MicroSmoothOrigin2 core.Vec3

	LinearProjectileCanDraw bool
	TrailOrigin             core.Vec3
	LaserBeam               LaserBeam

	Interpolated Interpolated

	hidden bool // 回放时被可见性标志过滤
}

// Entities 按实体编号寻址的稠密实体表
type Entities struct {
	ents []CEntity
}

// NewEntities 创建容量为 capacity 的实体表
func NewEntities(capacity int) *Entities {
	t := &Entities{ents: make([]CEntity, capacity)}
	t.Clear()
	return t
}

// Capacity 表容量
func (t *Entities) Capacity() int { return len(t.ents) }

// Num 检查编号是否在表内
func (t *Entities) Num(n int) (EntityNum, error) {
	if n < 0 || n >= len(t.ents) {
		return 0, fmt.Errorf("%w: %d", protocol.ErrBadEntityNumber, n)
	}
	return EntityNum(n), nil
}

// At 取槽位
func (t *Entities) At(n EntityNum) *CEntity {
	return &t.ents[n]
}

// Lookup 按原始编号取槽位，越界返回 nil
func (t *Entities) Lookup(n int) *CEntity {
	num, err := t.Num(n)
	if err != nil {
		return nil
	}
	return t.At(num)
}

// Clear 重置所有槽位
func (t *Entities) Clear() {
	for i := range t.ents {
		t.ents[i] = CEntity{ServerFrame: notPresent}
	}
}
