package models

import (
	"fmt"
	"time"
)

// VitalSample 一条警员心率采样
type VitalSample struct {
	ID         int64     `json:"id,omitempty"`
	OfficerID  string    `json:"officer_id"`
	HeartRate  float64   `json:"heart_rate"` // BPM
	Confidence float64   `json:"confidence"` // 设备置信度 [0,1]
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OfficerProfile 警员生理档案, RestingHR<=0 表示未知
type OfficerProfile struct {
	OfficerID string    `json:"officer_id"`
	Age       int       `json:"age"`
	RestingHR float64   `json:"resting_hr"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SampleMessage vitals 流上的标准化采样消息
type SampleMessage struct {
	OfficerID  string  `json:"officer_id"`
	HeartRate  float64 `json:"heart_rate"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
	Timestamp  string  `json:"timestamp"` // RFC3339
}

// ParsedTime 解析消息时间戳, 为空时回退到当前时间
func (m *SampleMessage) ParsedTime() (time.Time, error) {
	if m.Timestamp == "" {
		return time.Now(), nil
	}
	ts, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse sample timestamp %q: %w", m.Timestamp, err)
	}
	return ts, nil
}

// ProfileMessage profiles 流上的档案消息
type ProfileMessage struct {
	OfficerID string  `json:"officer_id"`
	Age       int     `json:"age"`
	RestingHR float64 `json:"resting_hr"`
}
