package core

// 按键位
const (
	ButtonAttack  uint32 = 1 << 0
	ButtonJump    uint32 = 1 << 1
	ButtonSpecial uint32 = 1 << 2
)

// UserCmd 一条客户端用户命令
type UserCmd struct {
	ServerTimeStamp int64 // 命令对应的服务器时间（毫秒）
	Msec            uint8 // 执行时长，由服务器计算
	Buttons         uint32
	Angles          Vec3
	ForwardMove     int8
	SideMove        int8
	UpMove          int8
}

// ApplyUsercmd 将用户命令应用到指定客户端的玩家实体
// 返回本次命令是否发射了抛射物
func ApplyUsercmd(world *World, clientNum int, cmd *UserCmd, timeDelta int32) bool {
	if world == nil {
		return false
	}

	ent := world.PlayerEntity(clientNum)
	if ent == nil {
		return false
	}

	dt := float32(cmd.Msec) * 0.001
	forward, right, _ := AngleVectors(Vec3{0, cmd.Angles[1], 0})

	move := forward.Mul(float32(cmd.ForwardMove)).Add(right.Mul(float32(cmd.SideMove)))
	if l := move.Len(); l > 0 {
		move = move.Mul(PlayerSpeed / l)
	}
	move[2] = float32(cmd.UpMove) / 127 * PlayerSpeed

	// Origin2 携带速度，供客户端外推
	ent.Origin2 = move
	ent.Origin = ent.Origin.Add(move.Mul(dt))
	ent.Angles = cmd.Angles

	if cmd.Buttons&ButtonSpecial != 0 {
		world.Respawn(clientNum)
		return false
	}

	if cmd.Buttons&ButtonAttack == 0 {
		return false
	}
	if cmd.ServerTimeStamp < world.nextFire[clientNum] {
		return false
	}
	world.nextFire[clientNum] = cmd.ServerTimeStamp + FireInterval

	launch := ent.Origin.Add(forward.Mul(ProjectilePrestep))
	world.SpawnProjectile(ent.Number, launch, forward.Mul(ProjectileSpeed), cmd.ServerTimeStamp, timeDelta)
	return true
}
