package client

import "time"

// ===== 网络与时钟参数（客户端专用）=====
const (
	// 插值延迟（毫秒）：渲染时间落后于最新帧的时间，默认等于快照间隔
	MinInterpolationDelayMs int64 = 20
	MaxInterpolationDelayMs int64 = 250

	// 航位推测最大时长（毫秒）：超过此时间未收到新帧则时钟停在最后一帧之后
	DeadReckoningMaxMs int64 = 250

	// 服务器时间偏差超过此值时直接跳变，否则平滑追赶
	ClockResetThresholdMs int64 = 500

	// 每收到一帧修正 1/ClockSmoothDivisor 的偏差
	ClockSmoothDivisor int64 = 8

	// 收包队列长度
	PacketQueueSize = 256

	// 握手超时：连接后在此时间内未进入游戏则放弃
	ConnectTimeout = 10 * time.Second
)

// 连续重连的最多次数，进入游戏后清零
const MaxReconnectAttempts = 3
