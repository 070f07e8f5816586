package server

import (
	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
	"snapsync/pkg/snapshot"
)

// buildClientFrame 为客户端生成当前帧并存入其帧历史
func (r *Room) buildClientFrame(cl *Client, entities []core.EntityState) *snapshot.Frame {
	frame := cl.frames.Slot(r.frameNum)
	frame.Reset()
	frame.ServerFrame = r.frameNum
	frame.ServerTime = r.world.Time
	frame.UcmdExecuted = cl.UcmdExecuted
	frame.GameState = r.gameState
	frame.MultiPOV = cl.multiview
	frame.AllEntities = cl.multiview
	frame.Valid = true

	viewer := r.world.PlayerState(cl.num)
	if cl.multiview {
		for _, other := range r.clients {
			if other != nil && r.world.PlayerEntity(other.num) != nil {
				frame.PlayerStates = append(frame.PlayerStates, r.world.PlayerState(other.num))
			}
		}
	} else {
		frame.PlayerStates = append(frame.PlayerStates, viewer)
	}
	if len(frame.PlayerStates) > 0 {
		frame.PlayerState = frame.PlayerStates[0]
	}

	for i := range entities {
		if cl.multiview || visibleTo(&entities[i], &viewer) {
			frame.Entities = append(frame.Entities, entities[i])
		}
	}
	return frame
}

// visibleTo 按服务器可见性标志过滤实体
func visibleTo(ent *core.EntityState, viewer *core.PlayerState) bool {
	if ent.SVFlags&core.SVFOnlyTeam != 0 && ent.Team != viewer.Team {
		return false
	}
	if ent.SVFlags&(core.SVFOnlyOwner|core.SVFOwnerAndChasers) != 0 && ent.OwnerNum != viewer.POVNum {
		return false
	}
	return true
}

// deltaBase 客户端确认的帧仍在历史中时作为增量基准
func (r *Room) deltaBase(cl *Client) *snapshot.Frame {
	if cl.lastFrame <= 0 || cl.nodelta {
		return nil
	}
	// 太旧的帧即将被覆盖
	if r.frameNum-cl.lastFrame >= core.UpdateBackup-3 {
		return nil
	}
	from := cl.frames.Lookup(cl.lastFrame)
	if from == nil || !from.Valid {
		return nil
	}
	return from
}

// writeFrame 生成并写出客户端的当前帧
func (r *Room) writeFrame(cl *Client, m *protocol.Msg, entities []core.EntityState) error {
	from := r.deltaBase(cl)
	cl.nodelta = false

	frame := r.buildClientFrame(cl, entities)
	commands := cl.outgoingGameCommands(r.frameNum)
	if err := snapshot.WriteFrame(m, frame, from, r.baselines, commands); err != nil {
		return err
	}

	cl.frameSentAt[r.frameNum&core.UpdateMask] = r.now()
	cl.Stats.FramesSent.Inc()
	if from != nil {
		cl.Stats.DeltaFrames.Inc()
	}
	if r.cfg.ShowNet >= 1 {
		r.logger.Debug("frame", "client", cl.num, "num", frame.ServerFrame,
			"delta", frame.DeltaFrameNum, "entities", len(frame.Entities), "cmds", len(commands))
	}
	return nil
}

// writeClientPacket 一个节拍发给客户端的包：即时消息、命令确认、未确认的可靠命令、帧
func (r *Room) writeClientPacket(cl *Client, entities []core.EntityState, withFrame bool) ([]byte, error) {
	m := protocol.NewWriteMsg()
	m.WriteData(cl.pending.Bytes())
	cl.pending.Reset()

	m.WriteUint8(uint8(protocol.SvcClcAck))
	m.WriteUvarint(uint64(cl.commands.Executed()))
	cl.reliable.Write(m, uint8(protocol.SvcServerCmd))

	if withFrame && cl.state == ClientSpawned {
		if err := r.writeFrame(cl, m, entities); err != nil {
			return nil, err
		}
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	return m.Bytes(), nil
}

// broadcastGameCommand 发给所有在线客户端，所有视角都执行
func (r *Room) broadcastGameCommand(text string) {
	for _, cl := range r.clients {
		if cl != nil && cl.session != nil {
			cl.addGameCommand(text, r.frameNum, -1)
		}
	}
}

// gameCommandTo 发给一个客户端；多视角客户端也会收到，但只在该玩家的视角执行
func (r *Room) gameCommandTo(target *Client, text string) {
	target.addGameCommand(text, r.frameNum, -1)
	for _, cl := range r.clients {
		if cl != nil && cl != target && cl.session != nil && cl.multiview {
			cl.addGameCommand(text, r.frameNum, target.num)
		}
	}
}
