package core

import "time"

// 实体与客户端容量
const (
	MaxEdicts  = 1024 // 最大实体数（实体编号上限，不含）
	MaxClients = 64   // 最大客户端数

	// MaxTargetBytes 多视角游戏命令目标位图的字节数
	MaxTargetBytes = MaxClients / 8
)

// 帧历史与解析容量（必须是 2 的幂）
const (
	UpdateBackup = 32 // 帧历史环形缓冲区容量
	UpdateMask   = UpdateBackup - 1

	MaxParseEntities     = 1024 // 单帧最大实体数
	MaxParseGameCommands = 256  // 单帧最大游戏命令数
	MaxGameCommandBytes  = 8192 // 单帧游戏命令文本总字节数

	CmdBackup = 64 // 用户命令环形缓冲区容量
	CmdMask   = CmdBackup - 1

	MaxReliableCommands = 64 // 可靠命令环形缓冲区容量
)

// 服务器节拍
const (
	DefaultSnapFrameTime = 50 * time.Millisecond // 默认快照间隔（20Hz）
)

// 运动学阈值
const (
	TeleportThreshold = 512 // 单轴位移超过此值视为传送（单位）

	ProjectilePrestep            = 100 // 抛射物发射预步进距离
	MinDrawDistanceFirstPerson   = 86  // 第一人称下抛射物最小绘制距离
	MinDrawDistanceThirdPerson   = 52  // 第三人称下抛射物最小绘制距离
	MaxUcmdMsec                  = 200 // 单条用户命令最大毫秒数
	MaxUcmdLagMsec               = 999 // 用户命令时间最多落后游戏时间的毫秒数
	DefaultProjectileAntilagRate = 1.0
)
