package ai

// AIConfig 机器人行为参数
type AIConfig struct {
	// ThinkIntervalMs 思考间隔（毫秒），期间沿用上一次的命令
	ThinkIntervalMs int64

	// MistakeRate 随机失误率 (0.0-1.0)
	MistakeRate float64

	// FireIntervalMs 两次开火的最短间隔
	FireIntervalMs int64

	// AimRange 超出此距离的玩家不作为目标
	AimRange float32

	// DangerRadius 抛射物预计经过此半径内视为危险
	DangerRadius float32

	// LookaheadMs 危险预测的时间窗口
	LookaheadMs int64
}

// 预设配置：普通难度
var AIConfigNormal = AIConfig{
	ThinkIntervalMs: 200,
	MistakeRate:     0.05,
	FireIntervalMs:  1500,
	AimRange:        1200,
	DangerRadius:    64,
	LookaheadMs:     500,
}

// 预设配置：困难难度
var AIConfigHard = AIConfig{
	ThinkIntervalMs: 50,
	MistakeRate:     0,
	FireIntervalMs:  800,
	AimRange:        2000,
	DangerRadius:    96,
	LookaheadMs:     800,
}
