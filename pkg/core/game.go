package core

import "math"

// 世界配置
const (
	PlayerSpeed        = 320.0  // 单位/秒
	ProjectileSpeed    = 1150.0 // 单位/秒
	ProjectileLifetime = 3000   // 毫秒
	FireInterval       = 800    // 毫秒

	FirstDynamicEntity = MaxClients + 1 // 非玩家实体编号起点

	MoverAmplitude  = 128.0
	MoverPeriodMsec = 4000
)

// 模型引用
const (
	// ModelBrushFlag 内联刷子模型（移动平台等）的模型引用标志位
	ModelBrushFlag uint32 = 1 << 31

	ModelPlayer  uint32 = 1
	ModelRocket  uint32 = 2
	ModelSpeaker uint32 = 3
)

// IsBrushModel 模型引用是否指向内联刷子模型
func IsBrushModel(model uint32) bool {
	return model&ModelBrushFlag != 0
}

// World 权威世界（纯逻辑，不包含网络）
type World struct {
	entities [MaxEdicts]EntityState
	inUse    [MaxEdicts]bool
	expireAt [MaxEdicts]int64
	nextFire [MaxClients]int64

	moverNum  int
	moverBase Vec3
	Time      int64 // 当前服务器时间（毫秒）
}

// NewWorld 创建新世界，放置静态实体
func NewWorld() *World {
	w := &World{}

	// 上下往复的移动平台
	mover := w.alloc(FirstDynamicEntity)
	mover.Type = ETGeneric
	mover.Model = ModelBrushFlag | 1
	mover.Origin = Vec3{0, 0, 64}
	w.moverNum = mover.Number
	w.moverBase = mover.Origin

	speaker := w.alloc(FirstDynamicEntity)
	speaker.Type = ETSpeaker
	speaker.Model = ModelSpeaker
	speaker.Origin = Vec3{256, 256, 32}

	return w
}

func (w *World) alloc(start int) *EntityState {
	for num := start; num < MaxEdicts; num++ {
		if w.inUse[num] {
			continue
		}
		w.inUse[num] = true
		w.expireAt[num] = 0
		w.entities[num] = EntityState{Number: num}
		return &w.entities[num]
	}
	return nil
}

// Free 释放实体
func (w *World) Free(num int) {
	if num <= 0 || num >= MaxEdicts {
		return
	}
	w.inUse[num] = false
	w.entities[num] = EntityState{}
}

// Entity 返回使用中的实体
func (w *World) Entity(num int) *EntityState {
	if num <= 0 || num >= MaxEdicts || !w.inUse[num] {
		return nil
	}
	return &w.entities[num]
}

// SpawnPlayer 为客户端创建玩家实体，实体编号为客户端编号 +1
func (w *World) SpawnPlayer(clientNum int) *EntityState {
	if clientNum < 0 || clientNum >= MaxClients {
		return nil
	}
	num := clientNum + 1
	w.inUse[num] = true
	w.entities[num] = EntityState{
		Number:     num,
		Type:       ETPlayer,
		Model:      ModelPlayer,
		Team:       TeamPlayers,
		Origin:     spawnPoint(clientNum),
		Teleported: true,
	}
	w.nextFire[clientNum] = 0
	return &w.entities[num]
}

// RemovePlayer 移除客户端的玩家实体
func (w *World) RemovePlayer(clientNum int) {
	if clientNum < 0 || clientNum >= MaxClients {
		return
	}
	w.Free(clientNum + 1)
}

// PlayerEntity 返回客户端的玩家实体
func (w *World) PlayerEntity(clientNum int) *EntityState {
	if clientNum < 0 || clientNum >= MaxClients {
		return nil
	}
	return w.Entity(clientNum + 1)
}

// Respawn 将玩家传送回出生点
func (w *World) Respawn(clientNum int) {
	ent := w.PlayerEntity(clientNum)
	if ent == nil {
		return
	}
	ent.Origin = spawnPoint(clientNum)
	ent.Origin2 = Vec3{}
	ent.Teleported = true
}

// SpawnProjectile 发射一个线性运动的抛射物，并产生一帧的开火事件
func (w *World) SpawnProjectile(owner int, launch, velocity Vec3, timeStamp int64, timeDelta int32) *EntityState {
	proj := w.alloc(FirstDynamicEntity)
	if proj == nil {
		return nil
	}
	if timeDelta < 0 {
		timeDelta = -timeDelta
	}
	proj.Type = ETRocket
	proj.Model = ModelRocket
	proj.OwnerNum = owner
	proj.Origin = launch
	proj.Origin2 = launch
	proj.LinearMovement = true
	proj.LinearMovementTimeStamp = timeStamp
	proj.LinearMovementTimeDelta = timeDelta
	proj.LinearMovementVelocity = velocity
	w.expireAt[proj.Number] = timeStamp + ProjectileLifetime

	if ev := w.alloc(FirstDynamicEntity); ev != nil {
		ev.Type = ETSoundEvent
		ev.OwnerNum = owner
		ev.Origin = launch
		w.expireAt[ev.Number] = w.Time
	}
	return proj
}

// Step 推进世界到 now（毫秒）
func (w *World) Step(now int64) {
	w.Time = now

	for num := 1; num < MaxEdicts; num++ {
		if !w.inUse[num] {
			continue
		}
		ent := &w.entities[num]
		ent.Teleported = false
		if w.expireAt[num] != 0 && now > w.expireAt[num] {
			w.Free(num)
		}
	}

	if mover := w.Entity(w.moverNum); mover != nil {
		phase := 2 * math.Pi * float64(now%MoverPeriodMsec) / MoverPeriodMsec
		mover.Origin = w.moverBase.Add(Vec3{0, 0, float32(math.Sin(phase)) * MoverAmplitude})
	}
}

// Entities 按实体编号升序返回所有使用中的实体
func (w *World) Entities() []EntityState {
	out := make([]EntityState, 0, 64)
	for num := 1; num < MaxEdicts; num++ {
		if w.inUse[num] {
			out = append(out, w.entities[num])
		}
	}
	return out
}

// Baselines 返回当前世界的基线状态，事件实体不设基线
func (w *World) Baselines() []EntityState {
	out := make([]EntityState, 0, 16)
	for num := 1; num < MaxEdicts; num++ {
		if w.inUse[num] && !IsEventEntity(&w.entities[num]) {
			out = append(out, w.entities[num])
		}
	}
	return out
}

// spawnPoint 根据客户端编号获取出生点
func spawnPoint(clientNum int) Vec3 {
	spawns := []Vec3{
		{-512, -512, 0},
		{512, -512, 0},
		{-512, 512, 0},
		{512, 512, 0},
	}
	return spawns[clientNum%len(spawns)]
}

// PlayerState 由玩家实体生成网络同步的玩家状态，未出生的客户端为观察者
func (w *World) PlayerState(clientNum int) PlayerState {
	ps := PlayerState{
		PlayerNum: clientNum,
		POVNum:    clientNum + 1,
		Team:      TeamSpectator,
		RealTeam:  TeamSpectator,
	}
	ent := w.PlayerEntity(clientNum)
	if ent == nil {
		ps.PMove.Type = PMSpectator
		return ps
	}
	ps.Team = ent.Team
	ps.RealTeam = ent.Team
	ps.PMove.Type = PMNormal
	ps.PMove.Flags = PMFOnGround
	ps.PMove.Origin = ent.Origin
	ps.PMove.Velocity = ent.Origin2
	ps.ViewAngles = ent.Angles
	ps.Health = 100
	return ps
}
