package protocol

import (
	"fmt"

	"snapsync/pkg/core"
)

// field 一个可增量编码的字段
// 字段在表中的下标即其在掩码中的位
type field[T any] struct {
	name  string
	equal func(a, b *T) bool
	write func(m *Msg, s *T)
	read  func(m *Msg, s *T)
}

func deltaMask[T any](fields []field[T], from, to *T) uint64 {
	var mask uint64
	for i := range fields {
		if !fields[i].equal(from, to) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func writeDelta[T any](m *Msg, fields []field[T], from, to *T) uint64 {
	mask := deltaMask(fields, from, to)
	m.WriteUvarint(mask)
	for i := range fields {
		if mask&(1<<uint(i)) != 0 {
			fields[i].write(m, to)
		}
	}
	return mask
}

func readDelta[T any](m *Msg, fields []field[T], from, to *T) error {
	*to = *from
	mask := m.ReadUvarint()
	if mask>>uint(len(fields)) != 0 {
		return fmt.Errorf("%w: %#x", ErrBadDelta, mask)
	}
	for i := range fields {
		if mask&(1<<uint(i)) != 0 {
			fields[i].read(m, to)
		}
	}
	return m.Err()
}

// FieldNames 返回掩码中被修改的字段名，调试输出用
func FieldNames(mask uint64) []string {
	var names []string
	for i := range entityFields {
		if mask&(1<<uint(i)) != 0 {
			names = append(names, entityFields[i].name)
		}
	}
	return names
}

// ========== 实体 ==========

var entityFields = []field[core.EntityState]{
	{"type",
		func(a, b *core.EntityState) bool { return a.Type == b.Type },
		func(m *Msg, s *core.EntityState) { m.WriteUint8(uint8(s.Type)) },
		func(m *Msg, s *core.EntityState) { s.Type = core.EntityType(m.ReadUint8()) }},
	{"svflags",
		func(a, b *core.EntityState) bool { return a.SVFlags == b.SVFlags },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.SVFlags)) },
		func(m *Msg, s *core.EntityState) { s.SVFlags = uint32(m.ReadUvarint()) }},
	{"origin",
		func(a, b *core.EntityState) bool { return a.Origin == b.Origin },
		func(m *Msg, s *core.EntityState) { m.WriteVec3(s.Origin) },
		func(m *Msg, s *core.EntityState) { s.Origin = m.ReadVec3() }},
	{"origin2",
		func(a, b *core.EntityState) bool { return a.Origin2 == b.Origin2 },
		func(m *Msg, s *core.EntityState) { m.WriteVec3(s.Origin2) },
		func(m *Msg, s *core.EntityState) { s.Origin2 = m.ReadVec3() }},
	{"angles",
		func(a, b *core.EntityState) bool { return a.Angles == b.Angles },
		func(m *Msg, s *core.EntityState) { m.WriteVec3(s.Angles) },
		func(m *Msg, s *core.EntityState) { s.Angles = m.ReadVec3() }},
	{"ownerNum",
		func(a, b *core.EntityState) bool { return a.OwnerNum == b.OwnerNum },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.OwnerNum)) },
		func(m *Msg, s *core.EntityState) { s.OwnerNum = int(m.ReadUvarint() % core.MaxEdicts) }},
	{"team",
		func(a, b *core.EntityState) bool { return a.Team == b.Team },
		func(m *Msg, s *core.EntityState) { m.WriteUint8(uint8(s.Team)) },
		func(m *Msg, s *core.EntityState) { s.Team = int(m.ReadUint8()) }},
	{"effects",
		func(a, b *core.EntityState) bool { return a.Effects == b.Effects },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.Effects)) },
		func(m *Msg, s *core.EntityState) { s.Effects = uint32(m.ReadUvarint()) }},
	{"model",
		func(a, b *core.EntityState) bool { return a.Model == b.Model },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.Model)) },
		func(m *Msg, s *core.EntityState) { s.Model = uint32(m.ReadUvarint()) }},
	{"material",
		func(a, b *core.EntityState) bool { return a.Material == b.Material },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.Material)) },
		func(m *Msg, s *core.EntityState) { s.Material = uint32(m.ReadUvarint()) }},
	{"sound",
		func(a, b *core.EntityState) bool { return a.Sound == b.Sound },
		func(m *Msg, s *core.EntityState) { m.WriteUvarint(uint64(s.Sound)) },
		func(m *Msg, s *core.EntityState) { s.Sound = uint32(m.ReadUvarint()) }},
	{"radius",
		func(a, b *core.EntityState) bool { return a.Radius == b.Radius },
		func(m *Msg, s *core.EntityState) { m.WriteVarint(int64(s.Radius)) },
		func(m *Msg, s *core.EntityState) { s.Radius = int32(m.ReadVarint()) }},
	{"animating",
		func(a, b *core.EntityState) bool { return a.Animating == b.Animating },
		func(m *Msg, s *core.EntityState) { m.WriteBool(s.Animating) },
		func(m *Msg, s *core.EntityState) { s.Animating = m.ReadBool() }},
	{"animationTime",
		func(a, b *core.EntityState) bool { return a.AnimationTime == b.AnimationTime },
		func(m *Msg, s *core.EntityState) { m.WriteFloat(s.AnimationTime) },
		func(m *Msg, s *core.EntityState) { s.AnimationTime = m.ReadFloat() }},
	{"linearMovement",
		func(a, b *core.EntityState) bool { return a.LinearMovement == b.LinearMovement },
		func(m *Msg, s *core.EntityState) { m.WriteBool(s.LinearMovement) },
		func(m *Msg, s *core.EntityState) { s.LinearMovement = m.ReadBool() }},
	{"linearMovementTimeStamp",
		func(a, b *core.EntityState) bool { return a.LinearMovementTimeStamp == b.LinearMovementTimeStamp },
		func(m *Msg, s *core.EntityState) { m.WriteVarint(s.LinearMovementTimeStamp) },
		func(m *Msg, s *core.EntityState) { s.LinearMovementTimeStamp = m.ReadVarint() }},
	{"linearMovementTimeDelta",
		func(a, b *core.EntityState) bool { return a.LinearMovementTimeDelta == b.LinearMovementTimeDelta },
		func(m *Msg, s *core.EntityState) { m.WriteVarint(int64(s.LinearMovementTimeDelta)) },
		func(m *Msg, s *core.EntityState) { s.LinearMovementTimeDelta = int32(m.ReadVarint()) }},
	{"linearMovementVelocity",
		func(a, b *core.EntityState) bool { return a.LinearMovementVelocity == b.LinearMovementVelocity },
		func(m *Msg, s *core.EntityState) { m.WriteVec3(s.LinearMovementVelocity) },
		func(m *Msg, s *core.EntityState) { s.LinearMovementVelocity = m.ReadVec3() }},
	{"teleported",
		func(a, b *core.EntityState) bool { return a.Teleported == b.Teleported },
		func(m *Msg, s *core.EntityState) { m.WriteBool(s.Teleported) },
		func(m *Msg, s *core.EntityState) { s.Teleported = m.ReadBool() }},
}

// EntityChanged 实体相对 from 是否有任何字段变化
func EntityChanged(from, to *core.EntityState) bool {
	return deltaMask(entityFields, from, to) != 0
}

// WriteDeltaEntity 写入 to 相对 from 的增量，不包含实体编号，返回字段掩码
func WriteDeltaEntity(m *Msg, from, to *core.EntityState) uint64 {
	return writeDelta(m, entityFields, from, to)
}

// ReadDeltaEntity 以 from 为基准读取增量到 to，编号由调用方设置
func ReadDeltaEntity(m *Msg, from, to *core.EntityState) error {
	return readDelta(m, entityFields, from, to)
}

// ========== 玩家状态 ==========

var playerFields = []field[core.PlayerState]{
	{"playerNum",
		func(a, b *core.PlayerState) bool { return a.PlayerNum == b.PlayerNum },
		func(m *Msg, s *core.PlayerState) { m.WriteUint8(uint8(s.PlayerNum)) },
		func(m *Msg, s *core.PlayerState) { s.PlayerNum = int(m.ReadUint8()) }},
	{"POVnum",
		func(a, b *core.PlayerState) bool { return a.POVNum == b.POVNum },
		func(m *Msg, s *core.PlayerState) { m.WriteUvarint(uint64(s.POVNum)) },
		func(m *Msg, s *core.PlayerState) { s.POVNum = int(m.ReadUvarint() % core.MaxEdicts) }},
	{"team",
		func(a, b *core.PlayerState) bool { return a.Team == b.Team },
		func(m *Msg, s *core.PlayerState) { m.WriteUint8(uint8(s.Team)) },
		func(m *Msg, s *core.PlayerState) { s.Team = int(m.ReadUint8()) }},
	{"realTeam",
		func(a, b *core.PlayerState) bool { return a.RealTeam == b.RealTeam },
		func(m *Msg, s *core.PlayerState) { m.WriteUint8(uint8(s.RealTeam)) },
		func(m *Msg, s *core.PlayerState) { s.RealTeam = int(m.ReadUint8()) }},
	{"pm_type",
		func(a, b *core.PlayerState) bool { return a.PMove.Type == b.PMove.Type },
		func(m *Msg, s *core.PlayerState) { m.WriteUint8(uint8(s.PMove.Type)) },
		func(m *Msg, s *core.PlayerState) { s.PMove.Type = core.PMType(m.ReadUint8()) }},
	{"pm_flags",
		func(a, b *core.PlayerState) bool { return a.PMove.Flags == b.PMove.Flags },
		func(m *Msg, s *core.PlayerState) { m.WriteUvarint(uint64(s.PMove.Flags)) },
		func(m *Msg, s *core.PlayerState) { s.PMove.Flags = uint16(m.ReadUvarint()) }},
	{"origin",
		func(a, b *core.PlayerState) bool { return a.PMove.Origin == b.PMove.Origin },
		func(m *Msg, s *core.PlayerState) { m.WriteVec3(s.PMove.Origin) },
		func(m *Msg, s *core.PlayerState) { s.PMove.Origin = m.ReadVec3() }},
	{"velocity",
		func(a, b *core.PlayerState) bool { return a.PMove.Velocity == b.PMove.Velocity },
		func(m *Msg, s *core.PlayerState) { m.WriteVec3(s.PMove.Velocity) },
		func(m *Msg, s *core.PlayerState) { s.PMove.Velocity = m.ReadVec3() }},
	{"viewangles",
		func(a, b *core.PlayerState) bool { return a.ViewAngles == b.ViewAngles },
		func(m *Msg, s *core.PlayerState) { m.WriteVec3(s.ViewAngles) },
		func(m *Msg, s *core.PlayerState) { s.ViewAngles = m.ReadVec3() }},
	{"health",
		func(a, b *core.PlayerState) bool { return a.Health == b.Health },
		func(m *Msg, s *core.PlayerState) { m.WriteInt16(s.Health) },
		func(m *Msg, s *core.PlayerState) { s.Health = m.ReadInt16() }},
	{"weapon",
		func(a, b *core.PlayerState) bool { return a.Weapon == b.Weapon },
		func(m *Msg, s *core.PlayerState) { m.WriteUint8(s.Weapon) },
		func(m *Msg, s *core.PlayerState) { s.Weapon = m.ReadUint8() }},
}

// WriteDeltaPlayerState 写入玩家状态增量，from 为 nil 时相对空状态
func WriteDeltaPlayerState(m *Msg, from, to *core.PlayerState) {
	if from == nil {
		from = &core.PlayerState{}
	}
	writeDelta(m, playerFields, from, to)
}

// ReadDeltaPlayerState 读取玩家状态增量，from 为 nil 时相对空状态
func ReadDeltaPlayerState(m *Msg, from, to *core.PlayerState) error {
	if from == nil {
		from = &core.PlayerState{}
	}
	return readDelta(m, playerFields, from, to)
}

// ========== 比赛状态 ==========

var gameStateFields = []field[core.GameState]{
	{"matchState",
		func(a, b *core.GameState) bool { return a.MatchState == b.MatchState },
		func(m *Msg, s *core.GameState) { m.WriteUint8(s.MatchState) },
		func(m *Msg, s *core.GameState) { s.MatchState = m.ReadUint8() }},
	{"paused",
		func(a, b *core.GameState) bool { return a.Paused == b.Paused },
		func(m *Msg, s *core.GameState) { m.WriteBool(s.Paused) },
		func(m *Msg, s *core.GameState) { s.Paused = m.ReadBool() }},
	{"matchStart",
		func(a, b *core.GameState) bool { return a.MatchStart == b.MatchStart },
		func(m *Msg, s *core.GameState) { m.WriteVarint(s.MatchStart) },
		func(m *Msg, s *core.GameState) { s.MatchStart = m.ReadVarint() }},
	{"matchDuration",
		func(a, b *core.GameState) bool { return a.MatchDuration == b.MatchDuration },
		func(m *Msg, s *core.GameState) { m.WriteVarint(s.MatchDuration) },
		func(m *Msg, s *core.GameState) { s.MatchDuration = m.ReadVarint() }},
	{"scores",
		func(a, b *core.GameState) bool { return a.Scores == b.Scores },
		func(m *Msg, s *core.GameState) {
			m.WriteVarint(int64(s.Scores[0]))
			m.WriteVarint(int64(s.Scores[1]))
		},
		func(m *Msg, s *core.GameState) {
			s.Scores[0] = int32(m.ReadVarint())
			s.Scores[1] = int32(m.ReadVarint())
		}},
}

// WriteDeltaGameState 写入比赛状态增量，from 为 nil 时相对空状态
func WriteDeltaGameState(m *Msg, from, to *core.GameState) {
	if from == nil {
		from = &core.GameState{}
	}
	writeDelta(m, gameStateFields, from, to)
}

// ReadDeltaGameState 读取比赛状态增量，from 为 nil 时相对空状态
func ReadDeltaGameState(m *Msg, from, to *core.GameState) error {
	if from == nil {
		from = &core.GameState{}
	}
	return readDelta(m, gameStateFields, from, to)
}

// ========== 用户命令 ==========

var usercmdFields = []field[core.UserCmd]{
	{"serverTimeStamp",
		func(a, b *core.UserCmd) bool { return a.ServerTimeStamp == b.ServerTimeStamp },
		func(m *Msg, s *core.UserCmd) { m.WriteVarint(s.ServerTimeStamp) },
		func(m *Msg, s *core.UserCmd) { s.ServerTimeStamp = m.ReadVarint() }},
	{"buttons",
		func(a, b *core.UserCmd) bool { return a.Buttons == b.Buttons },
		func(m *Msg, s *core.UserCmd) { m.WriteUvarint(uint64(s.Buttons)) },
		func(m *Msg, s *core.UserCmd) { s.Buttons = uint32(m.ReadUvarint()) }},
	{"angles",
		func(a, b *core.UserCmd) bool { return a.Angles == b.Angles },
		func(m *Msg, s *core.UserCmd) { m.WriteVec3(s.Angles) },
		func(m *Msg, s *core.UserCmd) { s.Angles = m.ReadVec3() }},
	{"forwardmove",
		func(a, b *core.UserCmd) bool { return a.ForwardMove == b.ForwardMove },
		func(m *Msg, s *core.UserCmd) { m.WriteUint8(uint8(s.ForwardMove)) },
		func(m *Msg, s *core.UserCmd) { s.ForwardMove = int8(m.ReadUint8()) }},
	{"sidemove",
		func(a, b *core.UserCmd) bool { return a.SideMove == b.SideMove },
		func(m *Msg, s *core.UserCmd) { m.WriteUint8(uint8(s.SideMove)) },
		func(m *Msg, s *core.UserCmd) { s.SideMove = int8(m.ReadUint8()) }},
	{"upmove",
		func(a, b *core.UserCmd) bool { return a.UpMove == b.UpMove },
		func(m *Msg, s *core.UserCmd) { m.WriteUint8(uint8(s.UpMove)) },
		func(m *Msg, s *core.UserCmd) { s.UpMove = int8(m.ReadUint8()) }},
}

// WriteDeltaUsercmd 写入用户命令增量；msec 由服务器计算，不上传
func WriteDeltaUsercmd(m *Msg, from, to *core.UserCmd) {
	writeDelta(m, usercmdFields, from, to)
}

// ReadDeltaUsercmd 读取用户命令增量
func ReadDeltaUsercmd(m *Msg, from, to *core.UserCmd) error {
	return readDelta(m, usercmdFields, from, to)
}
