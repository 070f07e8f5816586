package client

// ServerClock 由收到的帧估计当前服务器时间，供渲染插值使用
// 渲染时间 = 本地时间 + 平滑后的偏移 - 插值延迟
type ServerClock struct {
	offset         int64 // serverTime - localTime
	valid          bool
	delayMs        int64
	lastServerTime int64
	lastRendered   int64
}

// NewServerClock 创建时钟，插值延迟默认为一个快照间隔
func NewServerClock(snapFrameTimeMs int64) *ServerClock {
	c := &ServerClock{}
	c.SetInterpolationDelay(snapFrameTimeMs)
	return c
}

// SetInterpolationDelay 设置插值延迟（毫秒）
func (c *ServerClock) SetInterpolationDelay(delayMs int64) {
	if delayMs < MinInterpolationDelayMs {
		delayMs = MinInterpolationDelayMs
	}
	if delayMs > MaxInterpolationDelayMs {
		delayMs = MaxInterpolationDelayMs
	}
	c.delayMs = delayMs
}

// InterpolationDelay 当前插值延迟（毫秒）
func (c *ServerClock) InterpolationDelay() int64 { return c.delayMs }

// Valid 是否已收到过帧
func (c *ServerClock) Valid() bool { return c.valid }

// AddFrame 用一帧的服务器时间校正偏移
func (c *ServerClock) AddFrame(serverTime, localMs int64) {
	sample := serverTime - localMs
	diff := sample - c.offset
	if !c.valid || diff > ClockResetThresholdMs || diff < -ClockResetThresholdMs {
		c.offset = sample
		c.valid = true
		c.lastRendered = 0
	} else {
		c.offset += diff / ClockSmoothDivisor
	}
	c.lastServerTime = serverTime
}

// ServerTime 本地时间 localMs 对应的渲染用服务器时间，单调不减
func (c *ServerClock) ServerTime(localMs int64) int64 {
	if !c.valid {
		return 0
	}
	t := localMs + c.offset - c.delayMs

	// 太久没有新帧时停止推进
	if limit := c.lastServerTime + DeadReckoningMaxMs; t > limit {
		t = limit
	}
	if t < c.lastRendered {
		t = c.lastRendered
	}
	c.lastRendered = t
	return t
}

// Reset 换图或重连时清空
func (c *ServerClock) Reset() {
	delay := c.delayMs
	*c = ServerClock{delayMs: delay}
}
