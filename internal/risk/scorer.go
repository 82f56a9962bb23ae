package risk

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/models"
)

// 各因子固定权重。权重总和不为 1: 历史趋势额外加权 0.1, 最终总分截断到 [0,1] 而非归一化。
var factorWeights = map[string]float64{
	"heart_rate":             0.25,
	"heart_rate_variability": 0.20,
	"motion":                 0.20,
	"fall_detection":         0.15,
	"activity":               0.10,
	"location":               0.10,
}

// 各活动类型的基础风险, 未知类型按 unknown 处理
var activityBaseRisk = map[string]float64{
	"stationary": 0.0,
	"walking":    0.1,
	"running":    0.3,
	"cycling":    0.2,
	"unknown":    0.5,
}

const (
	historicalWeight = 0.1

	// 历史趋势取最近 1 小时内不超过 10 条心率, 少于 4 条不计趋势
	historyWindow    = time.Hour
	historyLimit     = 10
	minHistoryPoints = 4

	defaultHighThreshold   = 0.7
	defaultMediumThreshold = 0.4
)

// VitalsHistory 查询某警员最近的心率序列, 按采集时间升序返回
type VitalsHistory interface {
	RecentHeartRates(ctx context.Context, officerID string, since time.Time, limit int) ([]float64, error)
}

// RiskScorer 多因子风险评分器。
// 与单信号分类管线互补: 在心率之外还有运动、跌倒、活动类型、定位质量等
// 信号可用时, 将各因子独立打分后加权合成总分。
type RiskScorer struct {
	highThreshold   float64
	mediumThreshold float64
	history         VitalsHistory
	logger          *zap.Logger
	now             func() time.Time
}

// NewRiskScorer 创建评分器, history 可为 nil 表示无历史数据源
func NewRiskScorer(highThreshold, mediumThreshold float64, history VitalsHistory, logger *zap.Logger) *RiskScorer {
	if highThreshold <= 0 || mediumThreshold <= 0 || mediumThreshold >= highThreshold {
		highThreshold = defaultHighThreshold
		mediumThreshold = defaultMediumThreshold
	}
	return &RiskScorer{
		highThreshold:   highThreshold,
		mediumThreshold: mediumThreshold,
		history:         history,
		logger:          logger,
		now:             time.Now,
	}
}

// CalculateRisk 综合可用信号计算一次风险评估。
// 评分过程中的任何内部异常都会被兜底为降级结果, 绝不向调用方抛出:
// 对持续监测系统而言"保守的答案"好于"没有答案"。
// 两路快照都缺失时同样返回降级结果, 原因码区分"低风险"与"无法评估"。
func (s *RiskScorer) CalculateRisk(ctx context.Context, officerID string, health *models.HealthSnapshot, location *models.LocationSnapshot) (out *models.RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("risk scoring panicked, returning degraded result",
				zap.String("officer_id", officerID),
				zap.Any("recover", r))
			out = s.degradedAssessment(officerID, models.ReasonInternalError)
		}
	}()

	if health == nil && location == nil {
		return s.degradedAssessment(officerID, models.ReasonNoInputData)
	}

	factors := make(map[string]float64, len(factorWeights)+1)
	total := 0.0

	if health != nil {
		if health.HeartRate != nil && *health.HeartRate != 0 {
			sc := heartRateScore(*health.HeartRate)
			factors["heart_rate"] = sc
			total += sc * factorWeights["heart_rate"]
		}
		if health.HeartRateVariability != nil && *health.HeartRateVariability != 0 {
			sc := hrvScore(*health.HeartRateVariability)
			factors["heart_rate_variability"] = sc
			total += sc * factorWeights["heart_rate_variability"]
		}
		if health.Acceleration != nil {
			sc := motionScore(health.Acceleration.Magnitude())
			factors["motion"] = sc
			total += sc * factorWeights["motion"]
		}
	}

	// 跌倒因子恒存在, 未触发记 0, 该维度始终参与置信度计算
	if health != nil && health.FallDetected {
		factors["fall_detection"] = 1.0
		total += 1.0 * factorWeights["fall_detection"]
	} else {
		factors["fall_detection"] = 0.0
	}

	if health != nil && health.ActivityType != "" {
		conf := 0.0
		if health.ActivityConfidence != nil {
			conf = *health.ActivityConfidence
		}
		sc := activityScore(health.ActivityType, conf)
		factors["activity"] = sc
		total += sc * factorWeights["activity"]
	}

	if location != nil {
		sc := locationScore(location)
		factors["location"] = sc
		total += sc * factorWeights["location"]
	}

	if s.history != nil {
		sc := s.historicalScore(ctx, officerID)
		factors["historical"] = sc
		total += sc * historicalWeight
	}

	total = clamp01(total)
	level := s.riskLevel(total)

	return &models.RiskAssessment{
		OfficerID:           officerID,
		RiskLevel:           level,
		RiskScore:           total,
		Confidence:          scoreConfidence(factors),
		ContributingFactors: factors,
		Recommendations:     s.factorRecommendations(factors, total),
		Status:              models.StatusOK,
		Timestamp:           s.now(),
	}
}

// heartRateScore 心率分段风险: 60-100 正常, 超过 180 或低于 50 视为危险
func heartRateScore(hr float64) float64 {
	switch {
	case hr < 50:
		return 0.8
	case hr < 60:
		return 0.3
	case hr <= 100:
		return 0.0
	case hr <= 150:
		return 0.4
	case hr <= 180:
		return 0.7
	default:
		return 1.0
	}
}

// hrvScore RMSSD 风险: 20-50ms 正常, 偏低代表压力/疲劳, 偏高也按轻度关注处理
func hrvScore(hrv float64) float64 {
	switch {
	case hrv < 15:
		return 0.9
	case hrv < 20:
		return 0.7
	case hrv < 30:
		return 0.4
	case hrv <= 50:
		return 0.0
	default:
		return 0.2
	}
}

// motionScore 合成加速度模长风险: 过低可能失去意识, 过高可能受到冲击
func motionScore(magnitude float64) float64 {
	switch {
	case magnitude < 0.5:
		return 0.6
	case magnitude < 1.0:
		return 0.3
	case magnitude <= 3.0:
		return 0.0
	case magnitude <= 6.0:
		return 0.4
	default:
		return 0.8
	}
}

// activityScore 活动类型基础风险乘以置信度放大系数, 低置信分类会放大得分, 截断前可超过 1
func activityScore(activityType string, confidence float64) float64 {
	base, ok := activityBaseRisk[activityType]
	if !ok {
		base = 0.5
	}
	return base * (1.0 + (1.0 - confidence))
}

// locationScore 定位精度劣于 100 米视为不可靠定位; 高危区域查询是预留扩展点
func locationScore(loc *models.LocationSnapshot) float64 {
	if loc.HorizontalAccuracy != nil && *loc.HorizontalAccuracy > 100 {
		return 0.3
	}
	return 0.0
}

// historicalScore 最近心率的线性趋势: 上升超过 5 BPM/样本记 0.3, 下降超过 5 记 0.2。
// 查询失败只降级为 0 分并告警, 不中断本次评估。
func (s *RiskScorer) historicalScore(ctx context.Context, officerID string) float64 {
	since := s.now().Add(-historyWindow)
	rates, err := s.history.RecentHeartRates(ctx, officerID, since, historyLimit)
	if err != nil {
		s.logger.Warn("failed to load recent heart rates for historical context",
			zap.String("officer_id", officerID),
			zap.Error(err))
		return 0.0
	}
	if len(rates) < minHistoryPoints {
		return 0.0
	}

	trend := linearTrend(rates)
	switch {
	case trend > 5:
		return 0.3
	case trend < -5:
		return 0.2
	default:
		return 0.0
	}
}

func (s *RiskScorer) riskLevel(score float64) models.RiskLevel {
	switch {
	case score >= s.highThreshold:
		return models.RiskHigh
	case score >= s.mediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// scoreConfidence 置信度 = (因子覆盖率 + 因子一致性) / 2。
// 覆盖率分母固定为 6 个加权因子, 历史因子额外出现时覆盖率可超过 1, 最终截断。
func scoreConfidence(factors map[string]float64) float64 {
	if len(factors) == 0 {
		return 0.0
	}

	availability := float64(len(factors)) / float64(len(factorWeights))

	consistency := 0.5
	if len(factors) > 1 {
		values := make([]float64, 0, len(factors))
		for _, v := range factors {
			values = append(values, v)
		}
		consistency = 1.0 - populationStd(values)
	}

	return clamp01((availability + consistency) / 2.0)
}

// factorRecommendations 评分侧建议: 按因子逐项检查, 与分类器侧的分档建议相互独立
func (s *RiskScorer) factorRecommendations(factors map[string]float64, total float64) []string {
	recs := make([]string, 0, 4)

	if total >= s.highThreshold {
		recs = append(recs, "IMMEDIATE ATTENTION REQUIRED - High risk detected")
	}
	if factors["heart_rate"] > 0.7 {
		recs = append(recs, "Monitor heart rate - elevated levels detected")
	}
	if factors["heart_rate_variability"] > 0.7 {
		recs = append(recs, "Check officer stress levels - low HRV detected")
	}
	if factors["motion"] > 0.7 {
		recs = append(recs, "Unusual motion patterns detected - check officer status")
	}
	if factors["fall_detection"] > 0.5 {
		recs = append(recs, "FALL DETECTED - Immediate response required")
	}
	if factors["activity"] > 0.5 {
		recs = append(recs, "High activity levels - monitor for fatigue")
	}

	if len(recs) == 0 {
		recs = append(recs, "All systems normal - continue monitoring")
	}
	return recs
}

// degradedAssessment 降级兜底结果: 低风险零置信, 附诊断提示与原因码
func (s *RiskScorer) degradedAssessment(officerID, reason string) *models.RiskAssessment {
	return &models.RiskAssessment{
		OfficerID:           officerID,
		RiskLevel:           models.RiskLow,
		RiskScore:           0.0,
		Confidence:          0.0,
		ContributingFactors: map[string]float64{},
		Recommendations:     []string{"Unable to calculate risk - using default values"},
		Status:              models.StatusDegraded,
		Reason:              reason,
		Timestamp:           s.now(),
	}
}

// linearTrend 对序列按下标做最小二乘拟合, 返回斜率
func linearTrend(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0.0
	}

	meanX := (n - 1) / 2.0
	meanY := 0.0
	for _, v := range values {
		meanY += v
	}
	meanY /= n

	var num, den float64
	for i, v := range values {
		dx := float64(i) - meanX
		num += dx * (v - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0.0
	}
	return num / den
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0.0
	}
	if v > 1 {
		return 1.0
	}
	return v
}
