package monitor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/classifier"
	"github.com/parser06/first-responder-risk/internal/features"
	"github.com/parser06/first-responder-risk/internal/models"
)

// 入参校验失败的哨兵错误, 调用方用 errors.Is 区分脏数据与内部故障
var (
	ErrInvalidSample  = errors.New("invalid sample")
	ErrInvalidProfile = errors.New("invalid profile")
)

// VitalsMonitor 实时监测门面, 组合特征注册表与风险分类器
type VitalsMonitor struct {
	registry   *features.Registry
	classifier *classifier.RiskClassifier
	logger     *zap.Logger
}

// NewVitalsMonitor 创建监测门面
func NewVitalsMonitor(registry *features.Registry, riskClassifier *classifier.RiskClassifier, logger *zap.Logger) *VitalsMonitor {
	return &VitalsMonitor{
		registry:   registry,
		classifier: riskClassifier,
		logger:     logger,
	}
}

// ProcessSample 处理一条采样: 更新窗口、提取特征并给出风险评估。
// RMSSD/pNN50 用 60000/读数 推算 RR 间期, 零或负读数会产生除零或符号翻转,
// 因此非正值在入口直接拒绝。profile 仅对尚未跟踪的警员生效,
// 已跟踪警员的档案更新走 SetProfile。
func (m *VitalsMonitor) ProcessSample(officerID string, value float64, ts time.Time, confidence float64, profile *models.OfficerProfile) (*models.FeatureVector, *models.RiskAssessment, error) {
	if officerID == "" {
		return nil, nil, fmt.Errorf("%w: officer id is empty", ErrInvalidSample)
	}
	if value <= 0 {
		return nil, nil, fmt.Errorf("%w: heart rate must be positive, got %.2f", ErrInvalidSample, value)
	}
	if confidence < 0 || confidence > 1 {
		return nil, nil, fmt.Errorf("%w: confidence must be in [0,1], got %.2f", ErrInvalidSample, confidence)
	}
	if ts.IsZero() {
		return nil, nil, fmt.Errorf("%w: timestamp is zero", ErrInvalidSample)
	}

	if profile != nil && !m.registry.Tracked(officerID) {
		m.registry.SetProfile(officerID, profile.Age, profile.RestingHR)
	}

	fv := m.registry.Process(officerID, value, ts, confidence)
	assessment := m.classifier.PredictRisk(fv)
	assessment.OfficerID = officerID
	return fv, assessment, nil
}

// SetProfile 设置或更新警员档案, 对后续提取立即生效
func (m *VitalsMonitor) SetProfile(officerID string, age int, restingHR float64) error {
	if officerID == "" {
		return fmt.Errorf("%w: officer id is empty", ErrInvalidProfile)
	}
	m.registry.SetProfile(officerID, age, restingHR)
	return nil
}

// Train 用标注样本训练分类模型, 成功后立即用于后续评估
func (m *VitalsMonitor) Train(records []models.FeatureVector, labels []string) (*models.TrainingReport, error) {
	return m.classifier.Train(records, labels)
}

// Status 引擎当前运行状态快照
func (m *VitalsMonitor) Status() *models.EngineStatus {
	ids := m.registry.IDs()
	return &models.EngineStatus{
		Trained:         m.classifier.IsTrained(),
		ModelVersion:    m.classifier.Version(),
		OfficersTracked: len(ids),
		OfficerIDs:      ids,
		BufferSizes:     m.registry.BufferSizes(),
	}
}

// CurrentFeatures 警员当前窗口的特征向量, 未跟踪返回 false
func (m *VitalsMonitor) CurrentFeatures(officerID string) (*models.FeatureVector, bool) {
	return m.registry.Features(officerID)
}

// Tracked 警员是否已在跟踪中
func (m *VitalsMonitor) Tracked(officerID string) bool {
	return m.registry.Tracked(officerID)
}

// SaveModel 持久化训练状态
func (m *VitalsMonitor) SaveModel(path string) error {
	if err := m.classifier.Save(path); err != nil {
		return err
	}
	m.logger.Info("risk model saved", zap.String("path", path))
	return nil
}

// LoadModel 加载训练状态; 失败不致命, 调用方可继续以规则模式运行
func (m *VitalsMonitor) LoadModel(path string) error {
	if err := m.classifier.Load(path); err != nil {
		return err
	}
	m.logger.Info("risk model loaded",
		zap.String("path", path),
		zap.String("version", m.classifier.Version()))
	return nil
}

// EvictIdle 淘汰超过 maxIdle 无新样本的警员条目
func (m *VitalsMonitor) EvictIdle(maxIdle time.Duration) int {
	return m.registry.EvictIdle(maxIdle)
}
