package ai

import "snapsync/pkg/ai/bt"

// 游荡方向保持时间（毫秒）
const wanderDirectionMs = 1500

func actWander(board *Blackboard) bt.Status {
	if board.RNG == nil {
		return bt.StatusFailure
	}

	if board.ServerTime >= board.WanderUntil {
		board.WanderYaw = float32(board.RNG.Intn(360))
		board.WanderUntil = board.ServerTime + wanderDirectionMs
	}
	board.NextCmd.Angles[1] = board.WanderYaw
	board.NextCmd.ForwardMove = 127
	return bt.StatusRunning
}
