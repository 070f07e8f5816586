package core

import "fmt"

// EntityType 实体类型标签
type EntityType uint8

const (
	ETGeneric EntityType = iota
	ETPlayer
	ETCorpse
	ETGhost
	ETRocket
	ETGrenade
	ETARBullet
	ETBubble
	ETRifleBullet
	ETStake
	ETBlast
	ETLaserBeam
	ETDecal
	ETJumpPad
	ETPainkillerJumpPad
	ETBomb
	ETBombSite
	ETLaser
	ETSpikes
	ETSpeaker

	// 事件实体从这里开始，只存在一帧，不参与插值
	ETEvent
	ETSoundEvent

	EntityTypeCount
)

var entityTypeNames = [...]string{
	ETGeneric:           "generic",
	ETPlayer:            "player",
	ETCorpse:            "corpse",
	ETGhost:             "ghost",
	ETRocket:            "rocket",
	ETGrenade:           "grenade",
	ETARBullet:          "arbullet",
	ETBubble:            "bubble",
	ETRifleBullet:       "riflebullet",
	ETStake:             "stake",
	ETBlast:             "blast",
	ETLaserBeam:         "laserbeam",
	ETDecal:             "decal",
	ETJumpPad:           "jumppad",
	ETPainkillerJumpPad: "painkiller_jumppad",
	ETBomb:              "bomb",
	ETBombSite:          "bomb_site",
	ETLaser:             "laser",
	ETSpikes:            "spikes",
	ETSpeaker:           "speaker",
	ETEvent:             "event",
	ETSoundEvent:        "soundevent",
}

func (t EntityType) String() string {
	if int(t) < len(entityTypeNames) {
		return entityTypeNames[t]
	}
	return fmt.Sprintf("EntityType(%d)", uint8(t))
}

// Valid 类型标签是否已知
func (t EntityType) Valid() bool {
	return t < EntityTypeCount
}

// 服务器可见性标志
const (
	SVFOnlyTeam        uint32 = 1 << 0 // 只对同队可见
	SVFOnlyOwner       uint32 = 1 << 1 // 只对拥有者可见
	SVFOwnerAndChasers uint32 = 1 << 2 // 对拥有者及其观察者可见
	SVFBroadcast       uint32 = 1 << 3 // 全局广播（声音）
)

// 队伍
const (
	TeamSpectator = 0
	TeamPlayers   = 1
	TeamAlpha     = 2
	TeamBeta      = 3
)

// EntityState 网络同步的实体状态（定长记录）
type EntityState struct {
	Number   int        // 实体编号，0 保留为终止符
	Type     EntityType // 类型标签
	SVFlags  uint32     // 可见性标志
	Origin   Vec3       // 位置
	Origin2  Vec3       // 第二端点 / 速度 / 发射点，视类型而定
	Angles   Vec3       // 朝向
	OwnerNum int        // 拥有者实体编号（弱引用）
	Team     int
	Effects  uint32
	Model    uint32 // 模型引用
	Material uint32
	Sound    uint32
	Radius   int32

	Animating     bool
	AnimationTime float32

	LinearMovement          bool  // 是否按线性运动解析计算位置
	LinearMovementTimeStamp int64 // 线性运动起始服务器时间（毫秒）
	LinearMovementTimeDelta int32 // 发射时的反延迟时间偏移（毫秒）
	LinearMovementVelocity  Vec3  // 线性运动速度（单位/秒）

	Teleported bool // 本次更新不能跨越插值
}

// IsEventEntity 事件实体只存在一帧
func IsEventEntity(state *EntityState) bool {
	return state.Type >= ETEvent
}

// SameMovement 判断线性运动描述是否一致
func SameMovement(a, b *EntityState) bool {
	return a.LinearMovement == b.LinearMovement &&
		a.LinearMovementTimeStamp == b.LinearMovementTimeStamp
}
