package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/models"
	"github.com/parser06/first-responder-risk/internal/risk"
)

// 风险分类器
//
// 设计要点:
// 1. 未训练时走固定阈值规则回退, 预测永远有结果, 不报错
// 2. Train 先在局部构建完整新状态, 全部成功后才在写锁内替换,
//    失败的训练不影响正在服务的旧模型
// 3. 预测路径只持读锁, 训练/加载与预测可以并发
type RiskClassifier struct {
	mu    sync.RWMutex
	state *modelState

	anomalyThreshold float64
	logger           *zap.Logger
}

// modelState 一次训练产出的全部可序列化状态
type modelState struct {
	Forest      *randomForest      `json:"forest"`
	Scaler      *standardScaler    `json:"scaler"`
	Detector    *isolationForest   `json:"detector"`
	Importances map[string]float64 `json:"feature_importance"`
	Version     string             `json:"version"`
	TrainedAt   time.Time          `json:"trained_at"`
}

const (
	anomalyContamination = 0.1
	anomalyTrees         = 100
	testFraction         = 0.2
	splitSeed            = 42

	// FallbackVersion 规则回退模式的模型版本标识
	FallbackVersion = "rules"
)

// NewRiskClassifier 创建分类器, 初始为未训练状态
func NewRiskClassifier(anomalyThreshold float64, logger *zap.Logger) *RiskClassifier {
	return &RiskClassifier{
		anomalyThreshold: anomalyThreshold,
		logger:           logger,
	}
}

// IsTrained 是否已有可用模型
func (c *RiskClassifier) IsTrained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state != nil
}

// Version 当前模型版本, 未训练时为 rules
func (c *RiskClassifier) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return FallbackVersion
	}
	return c.state.Version
}

// featureNames 模型输入特征的固定顺序
func featureNames() []string {
	return []string{
		"current_hr", "mean_hr", "std_hr", "min_hr", "max_hr",
		"hr_trend", "hr_acceleration", "rmssd", "sdnn", "pnn50",
		"hr_reserve", "intensity_percentage", "hr_anomaly_score",
		"stress_indicator", "fatigue_indicator", "time_since_start",
		"recent_activity", "intensity_zone",
	}
}

// encodeFeatures 特征向量按 featureNames 顺序编码为模型输入
func encodeFeatures(fv *models.FeatureVector) []float64 {
	return []float64{
		fv.CurrentHR, fv.MeanHR, fv.StdHR, fv.MinHR, fv.MaxHR,
		fv.HRTrend, fv.HRAcceleration, fv.RMSSD, fv.SDNN, fv.PNN50,
		fv.HRReserve, fv.IntensityPercentage, fv.HRAnomalyScore,
		fv.StressIndicator, fv.FatigueIndicator, fv.TimeSinceStart,
		models.EncodeActivity(fv.RecentActivity),
		models.EncodeIntensityZone(fv.IntensityZone),
	}
}

// PredictRisk 评估一个特征向量并生成建议
func (c *RiskClassifier) PredictRisk(fv *models.FeatureVector) *models.RiskAssessment {
	c.mu.RLock()
	state := c.state
	threshold := c.anomalyThreshold
	c.mu.RUnlock()

	if state == nil {
		return c.fallbackPrediction(fv)
	}

	raw := encodeFeatures(fv)
	scaled := state.Scaler.transform(raw)

	probs := state.Forest.predictProba(scaled)
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	level := models.RiskLevel(state.Forest.Classes[best])
	confidence := probs[best]

	var score float64
	for i, class := range state.Forest.Classes {
		score += probs[i] * models.RiskLevel(class).ScoreWeight()
	}

	anomaly := state.Detector.decisionFunction(scaled) < threshold

	return &models.RiskAssessment{
		RiskLevel:           level,
		RiskScore:           score,
		Confidence:          confidence,
		ContributingFactors: contributingFactors(state.Forest.Importances, raw),
		Recommendations:     risk.Recommendations(level, score, fv, anomaly),
		AnomalyDetected:     anomaly,
		ModelVersion:        state.Version,
		Status:              models.StatusOK,
		Timestamp:           time.Now(),
	}
}

// fallbackPrediction 未训练时的固定阈值规则, 阈值上的取值留在较低档
func (c *RiskClassifier) fallbackPrediction(fv *models.FeatureVector) *models.RiskAssessment {
	score := 0.0
	level := models.RiskLow

	if fv.CurrentHR > 0 {
		switch {
		case fv.CurrentHR > 180:
			score, level = 0.9, models.RiskCritical
		case fv.CurrentHR > 160:
			score, level = 0.7, models.RiskHigh
		case fv.CurrentHR > 140:
			score, level = 0.4, models.RiskMedium
		}
	}

	return &models.RiskAssessment{
		RiskLevel:           level,
		RiskScore:           score,
		Confidence:          0.5,
		ContributingFactors: map[string]float64{},
		Recommendations:     []string{"Model not trained - using basic rules"},
		ModelVersion:        FallbackVersion,
		Status:              models.StatusOK,
		Timestamp:           time.Now(),
	}
}

// contributingFactors 重要性与特征绝对值的乘积, 归一化为占比
func contributingFactors(importances []float64, raw []float64) map[string]float64 {
	names := featureNames()
	contributions := make([]float64, len(names))
	var total float64
	for i := range names {
		contributions[i] = importances[i] * math.Abs(raw[i])
		total += contributions[i]
	}

	factors := make(map[string]float64, len(names))
	if total <= 0 {
		return factors
	}
	for i, name := range names {
		factors[name] = contributions[i] / total
	}
	return factors
}

// Train 用标注样本训练新模型, 成功后原子替换当前状态
func (c *RiskClassifier) Train(records []models.FeatureVector, labels []string) (*models.TrainingReport, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("training data is empty")
	}
	if len(records) != len(labels) {
		return nil, fmt.Errorf("training data size mismatch: %d records vs %d labels", len(records), len(labels))
	}

	X := make([][]float64, len(records))
	for i := range records {
		X[i] = encodeFeatures(&records[i])
	}

	classes := uniqueSorted(labels)
	classIndex := make(map[string]int, len(classes))
	for i, class := range classes {
		classIndex[class] = i
	}
	y := make([]int, len(labels))
	for i, label := range labels {
		y[i] = classIndex[label]
	}

	trainIdx, testIdx := stratifiedSplit(y, len(classes), testFraction, splitSeed)
	if len(trainIdx) == 0 {
		return nil, fmt.Errorf("training split is empty")
	}

	XTrain, yTrain := gather(X, y, trainIdx)
	XTest, yTest := gather(X, y, testIdx)

	scaler := fitScaler(XTrain)
	XTrainScaled := scaler.transformAll(XTrain)
	XTestScaled := scaler.transformAll(XTest)

	forest := trainForest(XTrainScaled, yTrain, classes, defaultForestParams())

	rng := rand.New(rand.NewSource(splitSeed))
	detector := trainIsolationForest(XTrainScaled, anomalyTrees, anomalyContamination, rng)

	trainAccuracy := forest.accuracy(XTrainScaled, yTrain)
	testAccuracy := forest.accuracy(XTestScaled, yTest)

	importances := make(map[string]float64, len(forest.Importances))
	for i, name := range featureNames() {
		importances[name] = forest.Importances[i]
	}

	now := time.Now().UTC()
	state := &modelState{
		Forest:      forest,
		Scaler:      scaler,
		Detector:    detector,
		Importances: importances,
		Version:     fmt.Sprintf("forest-%s", now.Format("20060102T150405Z")),
		TrainedAt:   now,
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	classCounts := make(map[string]int, len(classes))
	for _, label := range labels {
		classCounts[label]++
	}

	c.logger.Info("model trained",
		zap.Int("train_samples", len(trainIdx)),
		zap.Int("test_samples", len(testIdx)),
		zap.Float64("train_accuracy", trainAccuracy),
		zap.Float64("test_accuracy", testAccuracy),
		zap.String("version", state.Version))

	return &models.TrainingReport{
		TrainAccuracy:      trainAccuracy,
		TestAccuracy:       testAccuracy,
		TrainSamples:       len(trainIdx),
		TestSamples:        len(testIdx),
		ClassCounts:        classCounts,
		FeatureImportances: importances,
		ModelVersion:       state.Version,
		TrainedAt:          now,
	}, nil
}

// Save 将模型状态序列化到 JSON 文件
func (c *RiskClassifier) Save(path string) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state == nil {
		return fmt.Errorf("no trained model to save")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	c.logger.Info("model saved", zap.String("path", path))
	return nil
}

// Load 从 JSON 文件加载模型状态并原子替换
func (c *RiskClassifier) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}

	var state modelState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal model: %w", err)
	}
	if state.Forest == nil || state.Scaler == nil || state.Detector == nil {
		return fmt.Errorf("model file %s is incomplete", path)
	}

	c.mu.Lock()
	c.state = &state
	c.mu.Unlock()

	c.logger.Info("model loaded",
		zap.String("path", path),
		zap.String("version", state.Version))
	return nil
}

// stratifiedSplit 按类别分层随机划分, 单样本类别全部进入训练集
func stratifiedSplit(y []int, numClasses int, fraction float64, seed int64) (trainIdx, testIdx []int) {
	rng := rand.New(rand.NewSource(seed))

	byClass := make([][]int, numClasses)
	for i, cls := range y {
		byClass[cls] = append(byClass[cls], i)
	}

	for _, members := range byClass {
		if len(members) == 0 {
			continue
		}
		rng.Shuffle(len(members), func(a, b int) {
			members[a], members[b] = members[b], members[a]
		})
		if len(members) < 2 {
			trainIdx = append(trainIdx, members...)
			continue
		}
		testCount := int(math.Round(float64(len(members)) * fraction))
		if testCount < 1 {
			testCount = 1
		}
		if testCount >= len(members) {
			testCount = len(members) - 1
		}
		testIdx = append(testIdx, members[:testCount]...)
		trainIdx = append(trainIdx, members[testCount:]...)
	}

	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return trainIdx, testIdx
}

func gather(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for i, id := range idx {
		outX[i] = X[id]
		outY[i] = y[id]
	}
	return outX, outY
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, label := range labels {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}
