package core

// LinearMovement 按起始时间和速度解析计算线性运动实体在 serverTime 的位置
// Origin2 保存发射点；返回自发射起经过的毫秒数，可能为负
func LinearMovement(state *EntityState, serverTime int64) (Vec3, int64) {
	moveTime := serverTime - state.LinearMovementTimeStamp
	origin := state.Origin2.Add(state.LinearMovementVelocity.Mul(float32(moveTime) * 0.001))
	return origin, moveTime
}
