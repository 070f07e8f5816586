package ai

import (
	"math"

	"snapsync/pkg/ai/bt"
	"snapsync/pkg/core"
)

// condHasTarget 选最近的、在射程内的其他玩家
func condHasTarget(board *Blackboard) bool {
	if board.Self == nil {
		return false
	}
	best := float32(-1)
	for i := range board.Entities {
		ent := &board.Entities[i]
		if ent.Type != core.ETPlayer || ent.Number == board.Self.Number || ent.Team == core.TeamSpectator {
			continue
		}
		dist := ent.Origin.Sub(board.Self.Origin).Len()
		if dist > board.Config.AimRange {
			continue
		}
		if best < 0 || dist < best {
			best = dist
			board.Target = ent
		}
	}
	return board.Target != nil
}

// actAim 转向目标
func actAim(board *Blackboard) bt.Status {
	if board.Target == nil {
		return bt.StatusFailure
	}
	dir := board.Target.Origin.Sub(board.Self.Origin)
	board.NextCmd.Angles = core.Vec3{0, yawOf(dir), 0}
	return bt.StatusSuccess
}

// actFire 冷却结束时开火
func actFire(board *Blackboard) bt.Status {
	if board.ServerTime-board.LastFire < board.Config.FireIntervalMs {
		return bt.StatusRunning
	}
	board.NextCmd.Buttons |= core.ButtonAttack
	board.LastFire = board.ServerTime
	return bt.StatusSuccess
}

// yawOf 水平方向对应的偏航角（度）
func yawOf(dir core.Vec3) float32 {
	return float32(math.Atan2(float64(dir[1]), float64(dir[0])) * 180 / math.Pi)
}
