package models

import "time"

// IntensityZone 心率储备强度区间
type IntensityZone string

const (
	ZoneRest     IntensityZone = "rest"
	ZoneLight    IntensityZone = "light"
	ZoneModerate IntensityZone = "moderate"
	ZoneVigorous IntensityZone = "vigorous"
	ZoneMax      IntensityZone = "max"
	ZoneUnknown  IntensityZone = "unknown"
)

// ActivityTrend 近期心率活动趋势
type ActivityTrend string

const (
	TrendIncreasing ActivityTrend = "increasing"
	TrendStable     ActivityTrend = "stable"
	TrendDecreasing ActivityTrend = "decreasing"
	TrendUnknown    ActivityTrend = "unknown"
)

// FeatureVector 一个滑动窗口提取出的全部生理特征
// 同时作为结构化训练记录使用: 从 JSON 反序列化时缺失字段取零值
type FeatureVector struct {
	CurrentHR      float64 `json:"current_hr"`
	MeanHR         float64 `json:"mean_hr"`
	StdHR          float64 `json:"std_hr"`
	MinHR          float64 `json:"min_hr"`
	MaxHR          float64 `json:"max_hr"`
	HRTrend        float64 `json:"hr_trend"`        // BPM/秒
	HRAcceleration float64 `json:"hr_acceleration"` // BPM/秒²

	RMSSD float64 `json:"rmssd"` // 毫秒
	SDNN  float64 `json:"sdnn"`
	PNN50 float64 `json:"pnn50"` // 百分比

	RestingHR float64 `json:"resting_hr"`
	MaxHREst  float64 `json:"max_hr_est"`
	HRReserve float64 `json:"hr_reserve"` // 百分比

	IntensityZone       IntensityZone `json:"intensity_zone"`
	IntensityPercentage float64       `json:"intensity_percentage"`

	HRAnomalyScore   float64 `json:"hr_anomaly_score"` // [0,1]
	StressIndicator  float64 `json:"stress_indicator"` // [0,1]
	FatigueIndicator float64 `json:"fatigue_indicator"`

	TimeSinceStart float64       `json:"time_since_start"` // 分钟
	RecentActivity ActivityTrend `json:"recent_activity"`

	Timestamp time.Time `json:"timestamp"`
}

// EncodeActivity 趋势枚举编码为模型输入
func EncodeActivity(trend ActivityTrend) float64 {
	switch trend {
	case TrendIncreasing:
		return 1.0
	case TrendDecreasing:
		return -1.0
	default:
		return 0.0
	}
}

// EncodeIntensityZone 强度区间编码为模型输入
func EncodeIntensityZone(zone IntensityZone) float64 {
	switch zone {
	case ZoneRest:
		return 0.0
	case ZoneLight:
		return 0.25
	case ZoneModerate:
		return 0.5
	case ZoneVigorous:
		return 0.75
	case ZoneMax:
		return 1.0
	default:
		return 0.0
	}
}
