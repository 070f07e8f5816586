package server

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"snapsync/pkg/core"
	"snapsync/pkg/protocol"
)

var (
	ErrUnknownClcOp = errors.New("未知的客户端消息类型")
	ErrTooManyUcmds = errors.New("用户命令数过多")
)

// parseClientMessage 解析一个客户端包，返回错误时应断开该客户端
func (r *Room) parseClientMessage(cl *Client, m *protocol.Msg) (err error) {
	defer func() { err = multierror.Prefix(err, "server.parseClientMessage:") }()

	moveIssued := false
	throttled := false
	for m.Remaining() > 0 {
		op := protocol.ClcOp(m.ReadUint8())
		if r.cfg.ShowNet >= 2 {
			r.logger.Debug("clc", "client", cl.num, "offset", m.ReadCount()-1, "op", op)
		}

		switch op {
		case protocol.ClcNop:

		case protocol.ClcMove:
			if moveIssued {
				r.logger.Warn("同一个包里有多条 clc_move", "client", cl.num)
				return nil
			}
			moveIssued = true
			if err := r.parseMoveCommand(cl, m); err != nil {
				return err
			}

		case protocol.ClcSvcAck:
			seq := int64(m.ReadUvarint())
			if err := m.Err(); err != nil {
				return err
			}
			if err := cl.reliable.Ack(seq); err != nil {
				return err
			}

		case protocol.ClcClientCommand:
			seq := int64(m.ReadUvarint())
			text := m.ReadString()
			if err := m.Err(); err != nil {
				return err
			}
			if throttled {
				continue
			}
			fresh, err := cl.commands.Check(seq)
			if err != nil {
				return err
			}
			if !fresh {
				continue
			}
			// 不确认被限流的命令，客户端会重发
			if !cl.limiter.Allow() {
				r.logger.Warn("客户端命令过快", "client", cl.num, "seq", seq)
				throttled = true
				continue
			}
			cl.commands.Done(seq)
			r.executeUserCommand(cl, text)
			if cl.state == ClientFree {
				return nil
			}

		default:
			return fmt.Errorf("%w: %s", ErrUnknownClcOp, op)
		}

		if err := m.Err(); err != nil {
			return err
		}
	}
	return nil
}

// parseMoveCommand clc_move: varint(lastFrame) uvarint(ucmdHead) u8(count) 然后 count 条用户命令增量
// 第一条相对空命令，之后每条相对前一条
func (r *Room) parseMoveCommand(cl *Client, m *protocol.Msg) error {
	lastFrame := m.ReadVarint()
	ucmdHead := int64(m.ReadUvarint())
	count := int64(m.ReadUint8())
	if err := m.Err(); err != nil {
		return err
	}
	if count > core.CmdMask {
		return fmt.Errorf("%w: %d", ErrTooManyUcmds, count)
	}

	var from, cmd core.UserCmd
	for seq := ucmdHead - count + 1; seq <= ucmdHead; seq++ {
		if err := protocol.ReadDeltaUsercmd(m, &from, &cmd); err != nil {
			return err
		}
		// 已收到的命令不覆盖，避免改写正在等待执行的时间戳
		if seq > cl.UcmdReceived {
			*cl.userCmd(seq) = cmd
		}
		from = cmd
	}

	if cl.state != ClientSpawned {
		return nil
	}

	r.ackFrame(cl, lastFrame)
	if ucmdHead > cl.UcmdReceived {
		cl.UcmdReceived = ucmdHead
	}
	return nil
}

// ackFrame 记录客户端确认的最后一帧，并据此估算往返时间
func (r *Room) ackFrame(cl *Client, lastFrame int64) {
	if lastFrame > 0 && lastFrame != cl.lastFrame && cl.frames.Lookup(lastFrame) != nil {
		if sent := cl.frameSentAt[lastFrame&core.UpdateMask]; !sent.IsZero() {
			cl.Stats.RTT.Store(r.now().Sub(sent))
		}
	}
	cl.lastFrame = lastFrame
}
