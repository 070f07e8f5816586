package server

import (
	"snapsync/pkg/core"
)

// findNextUserCommand 在尚未执行的用户命令中找时间戳晚于上一条且不晚于 gameTime 的最早一条
func (cl *Client) findNextUserCommand(gameTime int64) *core.UserCmd {
	var next *core.UserCmd
	first := max(cl.UcmdExecuted+1, cl.UcmdReceived-core.CmdMask)
	for seq := first; seq <= cl.UcmdReceived; seq++ {
		ucmd := cl.userCmd(seq)
		if ucmd.ServerTimeStamp <= cl.UcmdTime || ucmd.ServerTimeStamp > gameTime {
			continue
		}
		if next == nil || ucmd.ServerTimeStamp < next.ServerTimeStamp {
			next = ucmd
		}
	}
	return next
}

// executeClientThinks 按时间顺序执行客户端所有可执行的用户命令
func (r *Room) executeClientThinks(cl *Client) {
	if cl.state != ClientSpawned {
		return
	}
	gameTime := r.world.Time

	// 落后游戏时间太多的命令直接丢弃
	cl.UcmdTime = max(cl.UcmdTime, gameTime-core.MaxUcmdLagMsec)

	for {
		ucmd := cl.findNextUserCommand(gameTime)
		if ucmd == nil {
			break
		}

		msec := ucmd.ServerTimeStamp - cl.UcmdTime
		ucmd.Msec = uint8(min(max(msec, 1), core.MaxUcmdMsec))
		cl.UcmdTime = ucmd.ServerTimeStamp

		// 反延迟：命令时间落后于游戏时间的毫秒数
		var timeDelta int32
		if cl.lastFrame > 0 {
			timeDelta = -int32(gameTime - ucmd.ServerTimeStamp)
		}

		if core.ApplyUsercmd(r.world, cl.num, ucmd, timeDelta) && r.cfg.ShowNet >= 2 {
			r.logger.Debug("发射抛射物", "client", cl.num, "stamp", ucmd.ServerTimeStamp, "delta", timeDelta)
		}
		cl.Stats.UcmdsExecuted.Inc()
	}

	cl.UcmdExecuted = cl.UcmdReceived
}
