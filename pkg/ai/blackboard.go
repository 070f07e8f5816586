package ai

import (
	"math/rand"

	"snapsync/pkg/core"
)

type Blackboard struct {
	Self       *core.EntityState // 本玩家实体，观察者时为 nil
	Entities   []core.EntityState
	ServerTime int64
	RNG        *rand.Rand
	Danger     *DangerField
	Config     *AIConfig

	Target  *core.EntityState
	NextCmd core.UserCmd

	LastFire int64

	// 游荡方向
	WanderYaw   float32
	WanderUntil int64
}

// ResetFrame 换入本次思考的输入；跨思考保持的字段不动
func (bb *Blackboard) ResetFrame(self *core.EntityState, entities []core.EntityState, serverTime int64) {
	bb.Self = self
	bb.Entities = entities
	bb.ServerTime = serverTime
	bb.Target = nil
	bb.NextCmd = core.UserCmd{}
	// LastFire、WanderYaw、WanderUntil 跨思考保持
}
