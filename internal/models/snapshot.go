package models

import "math"

// Vector3 加速度三轴分量, 单位 m/s²
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude 合成加速度模长
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// HealthSnapshot 设备侧健康信号快照, 指针字段表示可缺失
type HealthSnapshot struct {
	HeartRate            *float64 `json:"heart_rate,omitempty"`
	HeartRateVariability *float64 `json:"heart_rate_variability,omitempty"` // RMSSD, 毫秒
	Acceleration         *Vector3 `json:"acceleration,omitempty"`
	FallDetected         bool     `json:"fall_detected"`
	ActivityType         string   `json:"activity_type,omitempty"`
	ActivityConfidence   *float64 `json:"activity_confidence,omitempty"`
}

// LocationSnapshot 位置信号快照
type LocationSnapshot struct {
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	HorizontalAccuracy *float64 `json:"horizontal_accuracy,omitempty"` // 米
}

// SnapshotMessage snapshots 流上的设备信号消息, health 与 location 均可缺省
type SnapshotMessage struct {
	OfficerID string            `json:"officer_id"`
	Health    *HealthSnapshot   `json:"health,omitempty"`
	Location  *LocationSnapshot `json:"location,omitempty"`
}
