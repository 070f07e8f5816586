package snapshot

import (
	"errors"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
)

// 帧解析错误，均为致命错误
var (
	ErrTooManyGameCommands = errors.New("游戏命令过多")
	ErrGameCommandOverflow = errors.New("游戏命令文本过长")
	ErrTooManyTargets      = errors.New("游戏命令目标过多")
	ErrTooManyEntities     = errors.New("帧内实体过多")
	ErrBaselineMissing     = errors.New("基线尚未接收完整")
	ErrTooManyPlayers      = errors.New("帧内玩家状态过多")
)

// GameCommand 随帧下发的游戏命令
type GameCommand struct {
	Text    string
	All     bool // 所有视角都执行
	Targets [core.MaxTargetBytes]byte
}

// IsTarget 按玩家下标（POV 编号 -1）判断是否命中
func (gc *GameCommand) IsTarget(playerIndex int) bool {
	if gc.All {
		return true
	}
	if playerIndex < 0 || playerIndex >= core.MaxClients {
		return false
	}
	return gc.Targets[playerIndex>>3]&(1<<uint(playerIndex&7)) != 0
}

// SetTarget 将玩家下标加入目标集合
func (gc *GameCommand) SetTarget(playerIndex int) {
	if playerIndex < 0 || playerIndex >= core.MaxClients {
		return
	}
	gc.All = false
	gc.Targets[playerIndex>>3] |= 1 << uint(playerIndex&7)
}

// Frame 一个服务器帧（快照）
type Frame struct {
	ServerFrame   int64
	ServerTime    int64
	DeltaFrameNum int64
	UcmdExecuted  int64

	Delta       bool
	MultiPOV    bool
	AllEntities bool
	Valid       bool

	GameState    core.GameState
	PlayerState  core.PlayerState // PlayerStates[0]
	PlayerStates []core.PlayerState
	Entities     []core.EntityState // 按实体编号严格升序
	GameCommands []GameCommand

	commandBytes int
}

// Reset 清空帧，保留切片容量以便槽位复用
func (f *Frame) Reset() {
	entities := f.Entities[:0]
	players := f.PlayerStates[:0]
	commands := f.GameCommands[:0]
	*f = Frame{}
	f.Entities = entities
	f.PlayerStates = players
	f.GameCommands = commands
}

// CopyFrom 深拷贝 src 到 f
func (f *Frame) CopyFrom(src *Frame) {
	entities := append(f.Entities[:0], src.Entities...)
	players := append(f.PlayerStates[:0], src.PlayerStates...)
	commands := append(f.GameCommands[:0], src.GameCommands...)
	*f = *src
	f.Entities = entities
	f.PlayerStates = players
	f.GameCommands = commands
}

// Flags 帧标志字节
func (f *Frame) Flags() uint8 {
	var flags uint8
	if f.Delta {
		flags |= protocol.FrameFlagDelta
	}
	if f.MultiPOV {
		flags |= protocol.FrameFlagMultiPOV
	}
	if f.AllEntities {
		flags |= protocol.FrameFlagAllEntities
	}
	return flags
}

// Entity 二分查找实体编号
func (f *Frame) Entity(number int) *core.EntityState {
	lo, hi := 0, len(f.Entities)
	for lo < hi {
		mid := (lo + hi) / 2
		switch n := f.Entities[mid].Number; {
		case n == number:
			return &f.Entities[mid]
		case n < number:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil
}

// Baselines 按实体编号索引的基线表
type Baselines struct {
	states   [core.MaxEdicts]core.EntityState
	complete bool
}

// NewBaselines 创建空基线表
func NewBaselines() *Baselines {
	return &Baselines{}
}

// Set 设置实体基线
func (b *Baselines) Set(state *core.EntityState) error {
	if state.Number <= 0 || state.Number >= core.MaxEdicts {
		return protocol.ErrBadEntityNumber
	}
	b.states[state.Number] = *state
	return nil
}

// Get 返回实体基线；基线表完整前访问是协议错误
// 没有专门基线的编号返回空状态
func (b *Baselines) Get(number int) (*core.EntityState, error) {
	if number <= 0 || number >= core.MaxEdicts {
		return nil, protocol.ErrBadEntityNumber
	}
	if !b.complete {
		return nil, ErrBaselineMissing
	}
	base := &b.states[number]
	base.Number = number
	return base, nil
}

// MarkComplete 标记基线表已接收完整（precache 之后）
func (b *Baselines) MarkComplete() { b.complete = true }

// Complete 基线表是否完整
func (b *Baselines) Complete() bool { return b.complete }

// Clear 清空基线表（换地图 / 重新连接）
func (b *Baselines) Clear() {
	*b = Baselines{}
}
