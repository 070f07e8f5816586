package client

import (
	"snapsync/pkg/ai"
	"snapsync/pkg/core"
	"snapsync/pkg/snapshot"
)

// InputSource 每个渲染节拍产生一条用户命令
type InputSource interface {
	Next(ps *core.PlayerState, frame *snapshot.Frame, serverTime int64) core.UserCmd
}

// IdleInput 不动也不开火
type IdleInput struct{}

func (IdleInput) Next(*core.PlayerState, *snapshot.Frame, int64) core.UserCmd { return core.UserCmd{} }

// AIInput 由行为树机器人驱动的输入
type AIInput struct {
	ctrl *ai.AIController
}

// NewAIInput 创建机器人输入
func NewAIInput(config *ai.AIConfig, seed int64) *AIInput {
	return &AIInput{ctrl: ai.NewAIController(config, seed)}
}

func (in *AIInput) Next(ps *core.PlayerState, frame *snapshot.Frame, serverTime int64) core.UserCmd {
	var self *core.EntityState
	if !ps.IsSpectator() {
		self = frame.Entity(ps.POVNum)
	}
	return in.ctrl.Decide(self, frame.Entities, serverTime)
}
