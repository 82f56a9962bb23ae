package models

import "time"

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ScoreWeight 等级对应的加权风险得分权重, 未知等级为 0
func (l RiskLevel) ScoreWeight() float64 {
	switch l {
	case RiskLow:
		return 0.1
	case RiskMedium:
		return 0.4
	case RiskHigh:
		return 0.7
	case RiskCritical:
		return 1.0
	default:
		return 0.0
	}
}

// Severe 是否需要落库并外发通知
func (l RiskLevel) Severe() bool {
	return l == RiskHigh || l == RiskCritical
}

// AssessmentStatus 评估结果状态
type AssessmentStatus string

const (
	StatusOK       AssessmentStatus = "ok"
	StatusDegraded AssessmentStatus = "degraded"
)

// 降级原因码, 供调用方区分"低风险"与"无法评估"
const (
	ReasonNoInputData   = "no_input_data"
	ReasonInternalError = "internal_error"
)

// RiskAssessment 一次风险评估的完整结果
type RiskAssessment struct {
	OfficerID           string             `json:"officer_id,omitempty"`
	RiskLevel           RiskLevel          `json:"risk_level"`
	RiskScore           float64            `json:"risk_score"` // [0,1]
	Confidence          float64            `json:"confidence"` // [0,1]
	ContributingFactors map[string]float64 `json:"contributing_factors"`
	Recommendations     []string           `json:"recommendations"`
	AnomalyDetected     bool               `json:"anomaly_detected"`
	ModelVersion        string             `json:"model_version,omitempty"`
	Status              AssessmentStatus   `json:"status"`
	Reason              string             `json:"reason,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
}

// RiskEvent 持久化的高风险事件
type RiskEvent struct {
	EventID         string    `json:"event_id"`
	OfficerID       string    `json:"officer_id"`
	RiskLevel       RiskLevel `json:"risk_level"`
	RiskScore       float64   `json:"risk_score"`
	Confidence      float64   `json:"confidence"`
	AnomalyDetected bool      `json:"anomaly_detected"`
	ModelVersion    string    `json:"model_version"`
	Recommendations []string  `json:"recommendations"`
	CreatedAt       time.Time `json:"created_at"`
}

// TrainingReport 一次模型训练的统计结果
type TrainingReport struct {
	TrainAccuracy      float64            `json:"train_accuracy"`
	TestAccuracy       float64            `json:"test_accuracy"`
	TrainSamples       int                `json:"train_samples"`
	TestSamples        int                `json:"test_samples"`
	ClassCounts        map[string]int     `json:"class_counts"`
	FeatureImportances map[string]float64 `json:"feature_importances"`
	ModelVersion       string             `json:"model_version"`
	TrainedAt          time.Time          `json:"trained_at"`
}

// EngineStatus 监测引擎运行状态
type EngineStatus struct {
	Trained         bool           `json:"trained"`
	ModelVersion    string         `json:"model_version"`
	OfficersTracked int            `json:"officers_tracked"`
	OfficerIDs      []string       `json:"officer_ids"`
	BufferSizes     map[string]int `json:"buffer_sizes"`
}
