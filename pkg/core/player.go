package core

// PMType 玩家移动模式
type PMType uint8

const (
	PMNormal PMType = iota
	PMSpectator
	PMGib
	PMFreeze
	PMChasecam
)

// 玩家移动标志
const (
	PMFNoPrediction uint16 = 1 << 0 // 禁止客户端预测
	PMFOnGround     uint16 = 1 << 1
)

// PlayerMove 玩家移动状态
type PlayerMove struct {
	Type     PMType
	Flags    uint16
	Origin   Vec3
	Velocity Vec3
}

// PlayerState 网络同步的玩家状态
type PlayerState struct {
	PlayerNum  int // 客户端编号（0 起）
	POVNum     int // 当前视角实体编号（1 起，0 表示无）
	Team       int
	RealTeam   int
	PMove      PlayerMove
	ViewAngles Vec3
	Health     int16
	Weapon     uint8
}

// IsSpectator 是否为观察者
func (ps *PlayerState) IsSpectator() bool {
	return ps.PMove.Type == PMSpectator
}

// GameState 比赛全局状态
type GameState struct {
	MatchState    uint8
	Paused        bool
	MatchStart    int64
	MatchDuration int64
	Scores        [2]int32
}
