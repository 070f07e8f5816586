package ai

import (
	"snapsync/pkg/ai/bt"
	"snapsync/pkg/core"
)

func condInDanger(board *Blackboard) bool {
	return board.Danger.InDanger()
}

// actDodge 向垂直于最近威胁来向的一侧横移
func actDodge(board *Blackboard) bt.Status {
	threat := board.Danger.Nearest()
	if threat == nil || board.Self == nil {
		return bt.StatusFailure
	}

	yaw := board.Self.Angles[1]
	_, right, _ := core.AngleVectors(core.Vec3{0, yaw, 0})

	// 威胁从右侧来则向左躲，反之向右
	side := int8(127)
	if right.Dot(threat.Velocity) < 0 {
		side = -127
	}
	board.NextCmd.Angles = core.Vec3{0, yaw, 0}
	board.NextCmd.SideMove = side
	return bt.StatusRunning
}
