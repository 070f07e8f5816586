package snapshot

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
)

// OutgoingCommand 待随帧发送的游戏命令
type OutgoingCommand struct {
	FrameDiff int16 // 当前帧与命令产生帧的差值，用于客户端去重
	Text      string
	Targets   []byte // 仅多视角帧写入；空表示所有人
}

// WriteBaseline 写入一条 svc_spawnbaseline（相对空状态）
func WriteBaseline(m *protocol.Msg, state *core.EntityState) {
	m.WriteUint8(uint8(protocol.SvcSpawnBaseline))
	m.WriteEntityNumber(state.Number, false)
	protocol.WriteDeltaEntity(m, &core.EntityState{}, state)
}

// WriteFrame 写入 svc_frame 及完整帧体
// from 为增量基准帧，nil 表示非增量帧（实体相对基线编码）
func WriteFrame(m *protocol.Msg, frame, from *Frame, baselines *Baselines, commands []OutgoingCommand) (err error) {
	defer func() { err = multierror.Prefix(err, "snapshot.WriteFrame:") }()

	frame.Delta = from != nil
	if from != nil {
		frame.DeltaFrameNum = from.ServerFrame
	} else {
		frame.DeltaFrameNum = 0
	}

	m.WriteUint8(uint8(protocol.SvcFrame))
	m.WriteVarint(frame.ServerTime)
	m.WriteUvarint(uint64(frame.ServerFrame))
	m.WriteUvarint(uint64(frame.DeltaFrameNum))
	m.WriteUvarint(uint64(frame.UcmdExecuted))
	m.WriteUint8(frame.Flags())

	m.WriteUint8(uint8(protocol.SvcGameCommands))
	for _, cmd := range commands {
		if cmd.FrameDiff < 0 {
			return fmt.Errorf("游戏命令帧差为负: %d", cmd.FrameDiff)
		}
		m.WriteInt16(cmd.FrameDiff)
		m.WriteString(cmd.Text)
		if frame.MultiPOV {
			if len(cmd.Targets) > core.MaxTargetBytes {
				return fmt.Errorf("%w: %d", ErrTooManyTargets, len(cmd.Targets))
			}
			m.WriteUint8(uint8(len(cmd.Targets)))
			m.WriteData(cmd.Targets)
		}
	}
	m.WriteInt16(-1)

	m.WriteUint8(uint8(protocol.SvcMatch))
	var oldGameState *core.GameState
	if from != nil {
		oldGameState = &from.GameState
	}
	protocol.WriteDeltaGameState(m, oldGameState, &frame.GameState)

	for i := range frame.PlayerStates {
		m.WriteUint8(uint8(protocol.SvcPlayerInfo))
		var old *core.PlayerState
		if from != nil && i < len(from.PlayerStates) {
			old = &from.PlayerStates[i]
		}
		protocol.WriteDeltaPlayerState(m, old, &frame.PlayerStates[i])
	}
	m.WriteUint8(uint8(protocol.SvcBad))

	m.WriteUint8(uint8(protocol.SvcPacketEntities))
	if err := WritePacketEntities(m, from, frame, baselines); err != nil {
		return err
	}
	return m.Err()
}

// WritePacketEntities 写入 to 相对 from（或基线）的实体增量，以编号 0 结束
// 未变化的实体不写；from 中有而 to 中没有的实体写移除标记
func WritePacketEntities(m *protocol.Msg, from, to *Frame, baselines *Baselines) error {
	var oldEntities []core.EntityState
	if from != nil {
		oldEntities = from.Entities
	}
	newEntities := to.Entities

	oldIndex, newIndex := 0, 0
	for oldIndex < len(oldEntities) || newIndex < len(newEntities) {
		oldNum, newNum := exhausted, exhausted
		if oldIndex < len(oldEntities) {
			oldNum = oldEntities[oldIndex].Number
		}
		if newIndex < len(newEntities) {
			newNum = newEntities[newIndex].Number
		}
		if newNum <= 0 || (newNum != exhausted && newNum >= core.MaxEdicts) {
			return fmt.Errorf("%w: %d", protocol.ErrBadEntityNumber, newNum)
		}

		switch {
		case newNum == oldNum:
			oldState, newState := &oldEntities[oldIndex], &newEntities[newIndex]
			if protocol.EntityChanged(oldState, newState) {
				m.WriteEntityNumber(newNum, false)
				protocol.WriteDeltaEntity(m, oldState, newState)
			}
			oldIndex++
			newIndex++

		case newNum < oldNum:
			base, err := baselines.Get(newNum)
			if err != nil {
				return fmt.Errorf("实体 %d: %w", newNum, err)
			}
			m.WriteEntityNumber(newNum, false)
			protocol.WriteDeltaEntity(m, base, &newEntities[newIndex])
			newIndex++

		default:
			m.WriteEntityNumber(oldNum, true)
			oldIndex++
		}
	}
	m.WriteEntityNumber(0, false)
	return m.Err()
}
