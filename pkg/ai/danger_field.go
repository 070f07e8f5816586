package ai

import "snapsync/pkg/core"

// Threat 一个预计会经过身边的抛射物
type Threat struct {
	Number   int
	Velocity core.Vec3
	Distance float32 // 预测窗口内的最近距离
	InMs     int64   // 到达最近点的时间
}

// DangerField 根据可见抛射物的解析轨迹估计危险
type DangerField struct {
	Threats []Threat
}

// Update 重新计算 self 周围的威胁，自己发射的抛射物不算
func (df *DangerField) Update(self *core.EntityState, entities []core.EntityState, serverTime int64, cfg *AIConfig) {
	df.Threats = df.Threats[:0]
	if self == nil {
		return
	}

	for i := range entities {
		ent := &entities[i]
		if !ent.LinearMovement || ent.OwnerNum == self.Number {
			continue
		}
		pos, _ := core.LinearMovement(ent, serverTime)
		vel := ent.LinearMovementVelocity
		speedSq := vel.Dot(vel)
		if speedSq == 0 {
			continue
		}

		// 相对位置在速度方向上的投影给出最近点时间
		rel := self.Origin.Sub(pos)
		t := rel.Dot(vel) / speedSq
		if t < 0 {
			continue
		}
		inMs := int64(t * 1000)
		if inMs > cfg.LookaheadMs {
			continue
		}
		closest := pos.Add(vel.Mul(t))
		if dist := closest.Sub(self.Origin).Len(); dist < cfg.DangerRadius {
			df.Threats = append(df.Threats, Threat{Number: ent.Number, Velocity: vel, Distance: dist, InMs: inMs})
		}
	}
}

// InDanger 是否有威胁
func (df *DangerField) InDanger() bool { return len(df.Threats) > 0 }

// Nearest 最早到达的威胁
func (df *DangerField) Nearest() *Threat {
	var best *Threat
	for i := range df.Threats {
		if best == nil || df.Threats[i].InMs < best.InMs {
			best = &df.Threats[i]
		}
	}
	return best
}
