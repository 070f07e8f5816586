package snapshot

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
)

// 旧帧实体耗尽时的哨兵编号，大于任何合法编号
const exhausted = 99999

// Parser 帧解析器，一个连接一个
type Parser struct {
	logger  *log.Logger
	showNet int
}

// NewParser 创建解析器，showNet 控制调试输出（0-3）
func NewParser(logger *log.Logger, showNet int) *Parser {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Parser{logger: logger, showNet: showNet}
}

// SetShowNet 调整调试输出级别
func (p *Parser) SetShowNet(level int) { p.showNet = level }

func (p *Parser) showOp(m *protocol.Msg, op protocol.SvcOp) {
	if p.showNet >= 2 {
		p.logger.Debug("shownet", "offset", m.ReadCount()-1, "op", op)
	}
}

// ParseBaseline 读取一条实体基线（相对空状态）
func (p *Parser) ParseBaseline(m *protocol.Msg, baselines *Baselines) (err error) {
	defer func() { err = multierror.Prefix(err, "snapshot.ParseBaseline:") }()

	number, remove := m.ReadEntityNumber()
	if err := m.Err(); err != nil {
		return err
	}
	if number <= 0 || number >= core.MaxEdicts {
		return fmt.Errorf("%w: %d", protocol.ErrBadEntityNumber, number)
	}
	if remove {
		return fmt.Errorf("%w: 基线带移除标志 %d", protocol.ErrBadEntityNumber, number)
	}

	var state core.EntityState
	if err := protocol.ReadDeltaEntity(m, &core.EntityState{}, &state); err != nil {
		return err
	}
	state.Number = number
	return baselines.Set(&state)
}

// ParseFrameHeader 读取帧头并选定历史槽位，判断增量基准是否可用
// history 为 nil 时帧由调用方持有，此时增量帧一律无效
func (p *Parser) ParseFrameHeader(m *protocol.Msg, history *History) (frame *Frame, err error) {
	defer func() { err = multierror.Prefix(err, "snapshot.ParseFrameHeader:") }()

	serverTime := m.ReadVarint()
	snapNum := int64(m.ReadUvarint())

	if history != nil {
		frame = history.Slot(snapNum)
	} else {
		frame = &Frame{}
	}
	frame.Reset()

	frame.ServerTime = serverTime
	frame.ServerFrame = snapNum
	frame.DeltaFrameNum = int64(m.ReadUvarint())
	frame.UcmdExecuted = int64(m.ReadUvarint())

	flags := m.ReadUint8()
	if err := m.Err(); err != nil {
		return nil, err
	}
	frame.Delta = flags&protocol.FrameFlagDelta != 0
	frame.MultiPOV = flags&protocol.FrameFlagMultiPOV != 0
	frame.AllEntities = flags&protocol.FrameFlagAllEntities != 0

	// 增量基准不可用时，仍要读完整个帧，但不使用它
	frame.Valid = false
	switch {
	case !frame.Delta:
		frame.Valid = true
	case frame.DeltaFrameNum <= 0:
		p.logger.Warn("无效的增量帧", "frame", frame.ServerFrame, "delta", frame.DeltaFrameNum)
	case history != nil:
		base := history.Slot(frame.DeltaFrameNum)
		switch {
		case !base.Valid:
			p.logger.Warn("增量基准帧无效", "frame", frame.ServerFrame, "delta", frame.DeltaFrameNum)
		case base.ServerFrame != frame.DeltaFrameNum:
			p.logger.Warn("增量基准帧过旧", "frame", frame.ServerFrame, "delta", frame.DeltaFrameNum)
		default:
			frame.Valid = true
		}
	}

	if p.showNet >= 1 {
		p.logger.Debug("frame", "num", frame.ServerFrame, "old", frame.DeltaFrameNum,
			"delta", frame.Delta, "valid", frame.Valid)
	}
	return frame, nil
}

// ParseFrame 读取一个完整帧（帧头之后依次是游戏命令、比赛状态、玩家状态、实体）
// lastFrame 为客户端上一次接受的帧，用于游戏命令去重
// 增量基准不可用时返回 Valid=false 的帧和 nil 错误
func (p *Parser) ParseFrame(m *protocol.Msg, lastFrame *Frame, history *History, baselines *Baselines) (frame *Frame, err error) {
	defer func() { err = multierror.Prefix(err, "snapshot.ParseFrame:") }()

	frame, err = p.ParseFrameHeader(m, history)
	if err != nil {
		return nil, err
	}

	var deltaFrame *Frame
	if frame.Delta && frame.DeltaFrameNum > 0 && history != nil {
		deltaFrame = history.Slot(frame.DeltaFrameNum)
	}

	if err := protocol.ExpectOp(m, protocol.SvcGameCommands); err != nil {
		return nil, err
	}
	if err := p.parseGameCommands(m, lastFrame, frame); err != nil {
		return nil, err
	}

	if err := protocol.ExpectOp(m, protocol.SvcMatch); err != nil {
		return nil, err
	}
	p.showOp(m, protocol.SvcMatch)
	var oldGameState *core.GameState
	if deltaFrame != nil {
		oldGameState = &deltaFrame.GameState
	}
	if err := protocol.ReadDeltaGameState(m, oldGameState, &frame.GameState); err != nil {
		return nil, err
	}

	if err := p.parsePlayerStates(m, deltaFrame, frame); err != nil {
		return nil, err
	}

	if err := protocol.ExpectOp(m, protocol.SvcPacketEntities); err != nil {
		return nil, err
	}
	p.showOp(m, protocol.SvcPacketEntities)
	if err := p.ParsePacketEntities(m, deltaFrame, frame, baselines); err != nil {
		return nil, err
	}
	return frame, nil
}

func (p *Parser) parseGameCommands(m *protocol.Msg, lastFrame, frame *Frame) error {
	for {
		frameDiff := m.ReadInt16()
		if frameDiff == -1 {
			break
		}
		text := m.ReadString()
		if err := m.Err(); err != nil {
			return err
		}

		fresh := lastFrame == nil || !lastFrame.Valid ||
			frame.ServerFrame > lastFrame.ServerFrame+int64(frameDiff)
		if !frame.Valid || !fresh {
			// 已处理过或帧无效，丢弃但仍要跳过目标字节
			if frame.MultiPOV {
				m.SkipData(int(m.ReadUint8()))
			}
			continue
		}

		if len(frame.GameCommands) >= core.MaxParseGameCommands {
			return ErrTooManyGameCommands
		}
		if frame.commandBytes+len(text) >= core.MaxGameCommandBytes {
			return ErrGameCommandOverflow
		}
		frame.commandBytes += len(text) + 1

		gc := GameCommand{Text: text, All: true}
		if frame.MultiPOV {
			numTargets := int(m.ReadUint8())
			if numTargets > 0 {
				if numTargets > len(gc.Targets) {
					return fmt.Errorf("%w: %d", ErrTooManyTargets, numTargets)
				}
				gc.All = false
				m.ReadData(gc.Targets[:numTargets])
			}
		}
		frame.GameCommands = append(frame.GameCommands, gc)
	}
	return m.Err()
}

func (p *Parser) parsePlayerStates(m *protocol.Msg, deltaFrame, frame *Frame) error {
	for {
		op := protocol.SvcOp(m.ReadUint8())
		if err := m.Err(); err != nil {
			return err
		}
		if op == protocol.SvcBad {
			break
		}
		p.showOp(m, op)
		if op != protocol.SvcPlayerInfo {
			return fmt.Errorf("%w: 期望 %s，实际 %s", protocol.ErrUnexpectedOpcode, protocol.SvcPlayerInfo, op)
		}

		n := len(frame.PlayerStates)
		if n >= core.MaxClients {
			return ErrTooManyPlayers
		}
		var from *core.PlayerState
		if deltaFrame != nil && n < len(deltaFrame.PlayerStates) {
			from = &deltaFrame.PlayerStates[n]
		}
		var ps core.PlayerState
		if err := protocol.ReadDeltaPlayerState(m, from, &ps); err != nil {
			return err
		}
		frame.PlayerStates = append(frame.PlayerStates, ps)
	}
	if len(frame.PlayerStates) > 0 {
		frame.PlayerState = frame.PlayerStates[0]
	}
	return nil
}

// ParsePacketEntities 将旧帧实体、基线和线上增量三路归并为新帧的实体列表
// 结果按实体编号严格升序
func (p *Parser) ParsePacketEntities(m *protocol.Msg, oldFrame, newFrame *Frame, baselines *Baselines) error {
	newFrame.Entities = newFrame.Entities[:0]

	var oldEntities []core.EntityState
	if oldFrame != nil {
		oldEntities = oldFrame.Entities
	}
	oldIndex := 0
	oldNum := exhausted
	if len(oldEntities) > 0 {
		oldNum = oldEntities[0].Number
	}
	advance := func() {
		oldIndex++
		if oldIndex >= len(oldEntities) {
			oldNum = exhausted
		} else {
			oldNum = oldEntities[oldIndex].Number
		}
	}
	emit := func(state *core.EntityState) error {
		if len(newFrame.Entities) >= core.MaxParseEntities {
			return ErrTooManyEntities
		}
		newFrame.Entities = append(newFrame.Entities, *state)
		return nil
	}

	lastNum := 0
	for {
		newNum, remove := m.ReadEntityNumber()
		if newNum >= core.MaxEdicts {
			return fmt.Errorf("%w: %d", protocol.ErrBadEntityNumber, newNum)
		}
		if err := m.Err(); err != nil {
			return err
		}
		if newNum == 0 {
			break
		}
		if newNum <= lastNum {
			return fmt.Errorf("%w: %d 不在 %d 之后", protocol.ErrBadEntityNumber, newNum, lastNum)
		}
		lastNum = newNum

		// 旧帧中编号更小的实体本帧没有变化
		for oldNum < newNum {
			if p.showNet == 3 {
				p.logger.Debug("unchanged", "num", oldNum)
			}
			if err := emit(&oldEntities[oldIndex]); err != nil {
				return err
			}
			advance()
		}

		if oldNum > newNum {
			if remove {
				p.logger.Warn("U_REMOVE: oldnum > newnum，无法从基线移除", "num", newNum)
				continue
			}
			if p.showNet == 3 {
				p.logger.Debug("baseline", "num", newNum)
			}
			base, err := baselines.Get(newNum)
			if err != nil {
				return fmt.Errorf("实体 %d: %w", newNum, err)
			}
			if err := p.parseDeltaEntity(m, newNum, base, emit); err != nil {
				return err
			}
			continue
		}

		// oldNum == newNum
		if remove {
			if p.showNet == 3 {
				p.logger.Debug("remove", "num", newNum)
			}
			advance()
			continue
		}
		if p.showNet == 3 {
			p.logger.Debug("delta", "num", newNum)
		}
		if err := p.parseDeltaEntity(m, newNum, &oldEntities[oldIndex], emit); err != nil {
			return err
		}
		advance()
	}

	// 剩余的旧实体原样保留
	for oldNum != exhausted {
		if p.showNet == 3 {
			p.logger.Debug("unchanged", "num", oldNum)
		}
		if err := emit(&oldEntities[oldIndex]); err != nil {
			return err
		}
		advance()
	}
	return nil
}

func (p *Parser) parseDeltaEntity(m *protocol.Msg, number int, base *core.EntityState, emit func(*core.EntityState) error) error {
	var state core.EntityState
	if err := protocol.ReadDeltaEntity(m, base, &state); err != nil {
		return err
	}
	state.Number = number
	return emit(&state)
}
