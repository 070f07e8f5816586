package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 三维向量
type Vec3 = mgl32.Vec3

// Lerp 在 a 与 b 之间按 frac 线性插值
func Lerp(a Vec3, frac float32, b Vec3) Vec3 {
	return a.Add(b.Sub(a).Mul(frac))
}

// LerpFloat 标量线性插值
func LerpFloat(a float32, frac float32, b float32) float32 {
	return a + (b-a)*frac
}

// LerpAngle 角度插值，沿较短方向旋转
func LerpAngle(a, frac, b float32) float32 {
	if b-a > 180 {
		b -= 360
	}
	if b-a < -180 {
		b += 360
	}
	return a + frac*(b-a)
}

// LerpAngles 三个欧拉角分别插值
func LerpAngles(a Vec3, frac float32, b Vec3) Vec3 {
	return Vec3{
		LerpAngle(a[0], frac, b[0]),
		LerpAngle(a[1], frac, b[1]),
		LerpAngle(a[2], frac, b[2]),
	}
}

// Clamp01 将值限制在 [0,1]
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// Clamp 将值限制在 [lo,hi]
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MovedBeyond 判断任一坐标轴上的位移是否超过 threshold
func MovedBeyond(a, b Vec3, threshold float32) bool {
	for i := 0; i < 3; i++ {
		if float32(math.Abs(float64(a[i]-b[i]))) > threshold {
			return true
		}
	}
	return false
}

// AngleVectors 由欧拉角（俯仰、偏航、滚转，角度制）求前、右、上方向向量
func AngleVectors(angles Vec3) (forward, right, up Vec3) {
	pitch := mgl32.DegToRad(angles[0])
	yaw := mgl32.DegToRad(angles[1])
	roll := mgl32.DegToRad(angles[2])

	sp, cp := float32(math.Sin(float64(pitch))), float32(math.Cos(float64(pitch)))
	sy, cy := float32(math.Sin(float64(yaw))), float32(math.Cos(float64(yaw)))
	sr, cr := float32(math.Sin(float64(roll))), float32(math.Cos(float64(roll)))

	forward = Vec3{cp * cy, cp * sy, -sp}
	right = Vec3{-sr*sp*cy + cr*sy, -sr*sp*sy - cr*cy, -sr * cp}
	up = Vec3{cr*sp*cy + sr*sy, cr*sp*sy - sr*cy, cr * cp}
	return forward, right, up
}
