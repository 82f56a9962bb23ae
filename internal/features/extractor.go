package features

import (
	"math"
	"time"

	"github.com/parser06/first-responder-risk/internal/models"
)

// 窗口特征提取器
//
// 设计要点:
// 1. 每个警员一个独立实例, 由 Registry 串行化访问, 自身不加锁
// 2. 滑动窗口 FIFO, 超过 windowSize 淘汰最旧样本
// 3. 样本不足 minSamples 时输出默认特征向量, 不报错
// 4. 心率值的合法性(>0)由接入层保证, RR 间期换算不会除零
type Extractor struct {
	windowSize int
	minSamples int

	samples []models.VitalSample

	age       int
	restingHR float64 // 0 表示未设置档案
	maxHR     float64 // 0 表示未设置档案

	now func() time.Time
}

const (
	defaultRestingHR = 60.0
	defaultMaxHR     = 190.0
)

// NewExtractor 创建提取器, minSamples 大于 windowSize 时截断到 windowSize
func NewExtractor(windowSize, minSamples int) *Extractor {
	if windowSize <= 0 {
		windowSize = 60
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	if minSamples > windowSize {
		minSamples = windowSize
	}
	return &Extractor{
		windowSize: windowSize,
		minSamples: minSamples,
		samples:    make([]models.VitalSample, 0, windowSize),
		now:        time.Now,
	}
}

// SetProfile 设置警员档案
// restingHR<=0 时按最大心率推算基线: 60 + 0.4*(maxHR-60)
func (e *Extractor) SetProfile(age int, restingHR float64) {
	if age <= 0 {
		age = 30
	}
	e.age = age
	e.maxHR = float64(220 - age)
	if restingHR > 0 {
		e.restingHR = restingHR
	} else {
		e.restingHR = defaultRestingHR + 0.4*(e.maxHR-defaultRestingHR)
	}
}

// AddSample 追加一条采样并重算特征向量
func (e *Extractor) AddSample(value float64, ts time.Time, confidence float64) *models.FeatureVector {
	e.samples = append(e.samples, models.VitalSample{
		HeartRate:  value,
		Confidence: confidence,
		RecordedAt: ts,
	})
	if len(e.samples) > e.windowSize {
		e.samples = e.samples[1:]
	}
	return e.Extract()
}

// Extract 基于当前窗口计算特征向量, 样本不足时返回默认向量
func (e *Extractor) Extract() *models.FeatureVector {
	if len(e.samples) < e.minSamples {
		return e.defaultVector()
	}

	values := make([]float64, len(e.samples))
	for i, s := range e.samples {
		values[i] = s.HeartRate
	}

	current := values[len(values)-1]
	stdHR := populationStd(values)
	zone, intensityPct := e.intensity(current)

	return &models.FeatureVector{
		CurrentHR:           current,
		MeanHR:              mean(values),
		StdHR:               stdHR,
		MinHR:               minOf(values),
		MaxHR:               maxOf(values),
		HRTrend:             e.trend(values),
		HRAcceleration:      e.acceleration(values),
		RMSSD:               rmssd(values),
		SDNN:                stdHR, // 实时场景下以整窗标准差近似
		PNN50:               pnn50(values),
		RestingHR:           e.restingOrDefault(),
		MaxHREst:            e.maxOrDefault(),
		HRReserve:           e.hrReserve(current),
		IntensityZone:       zone,
		IntensityPercentage: intensityPct,
		HRAnomalyScore:      anomalyScore(values),
		StressIndicator:     stressIndicator(values),
		FatigueIndicator:    fatigueIndicator(values),
		TimeSinceStart:      e.timeSinceStart(),
		RecentActivity:      classifyRecentActivity(values),
		Timestamp:           e.now(),
	}
}

// BufferLen 当前窗口内的样本数
func (e *Extractor) BufferLen() int {
	return len(e.samples)
}

// HasProfile 是否已设置警员档案
func (e *Extractor) HasProfile() bool {
	return e.maxHR > 0 && e.restingHR > 0
}

func (e *Extractor) defaultVector() *models.FeatureVector {
	return &models.FeatureVector{
		RestingHR:      e.restingOrDefault(),
		MaxHREst:       e.maxOrDefault(),
		IntensityZone:  models.ZoneUnknown,
		RecentActivity: models.TrendUnknown,
		Timestamp:      e.now(),
	}
}

func (e *Extractor) restingOrDefault() float64 {
	if e.restingHR > 0 {
		return e.restingHR
	}
	return defaultRestingHR
}

func (e *Extractor) maxOrDefault() float64 {
	if e.maxHR > 0 {
		return e.maxHR
	}
	return defaultMaxHR
}

// trend 心率对采样时刻(自首样本起的秒数)的最小二乘斜率
func (e *Extractor) trend(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	xs := e.elapsedSeconds()
	return olsSlope(xs, values)
}

// acceleration 心率二阶差分对采样间隔的均值
// 任一参与除法的间隔非正时返回 0
func (e *Extractor) acceleration(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}
	ts := e.elapsedSeconds()

	velocity := make([]float64, n-1)
	gaps := make([]float64, n-1)
	for i := 1; i < n; i++ {
		velocity[i-1] = values[i] - values[i-1]
		gaps[i-1] = ts[i] - ts[i-1]
	}
	for _, g := range gaps[1:] {
		if g <= 0 {
			return 0
		}
	}

	var sum float64
	for i := 1; i < len(velocity); i++ {
		sum += (velocity[i] - velocity[i-1]) / gaps[i]
	}
	return sum / float64(len(velocity)-1)
}

func (e *Extractor) elapsedSeconds() []float64 {
	xs := make([]float64, len(e.samples))
	start := e.samples[0].RecordedAt
	for i, s := range e.samples {
		xs[i] = s.RecordedAt.Sub(start).Seconds()
	}
	return xs
}

// intensity 按心率储备百分比划分强度区间, 未设档案时返回 unknown
func (e *Extractor) intensity(current float64) (models.IntensityZone, float64) {
	if e.maxHR <= 0 || e.restingHR <= 0 {
		return models.ZoneUnknown, 0
	}
	pct := (current - e.restingHR) / (e.maxHR - e.restingHR) * 100

	switch {
	case pct < 20:
		return models.ZoneRest, pct
	case pct < 40:
		return models.ZoneLight, pct
	case pct < 60:
		return models.ZoneModerate, pct
	case pct < 80:
		return models.ZoneVigorous, pct
	default:
		return models.ZoneMax, pct
	}
}

func (e *Extractor) hrReserve(current float64) float64 {
	if e.maxHR <= 0 || e.restingHR <= 0 {
		return 0
	}
	return (current - e.restingHR) / (e.maxHR - e.restingHR) * 100
}

func (e *Extractor) timeSinceStart() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	return e.now().Sub(e.samples[0].RecordedAt).Minutes()
}

// rmssd 相邻 RR 间期差的均方根, RR 间期由 60000/HR 近似
func rmssd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	prev := 60000 / values[0]
	for _, v := range values[1:] {
		rr := 60000 / v
		d := rr - prev
		sumSq += d * d
		prev = rr
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// pnn50 相邻 RR 间期差超过 50ms 的占比(百分数)
func pnn50(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var count int
	prev := 60000 / values[0]
	for _, v := range values[1:] {
		rr := 60000 / v
		if math.Abs(rr-prev) > 50 {
			count++
		}
		prev = rr
	}
	return float64(count) / float64(len(values)-1) * 100
}

// anomalyScore 末样本对此前样本分布的 z-score, 按 3σ 归一到 [0,1]
func anomalyScore(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	prior := values[:len(values)-1]
	m := mean(prior)
	sd := populationStd(prior)
	if sd <= 0 {
		return 0
	}
	z := math.Abs(values[len(values)-1]-m) / sd
	return math.Min(z/3.0, 1.0)
}

// stressIndicator RMSSD 越低压力越高: clamp01(1 - (RMSSD-20)/40)
func stressIndicator(values []float64) float64 {
	if len(values) < 5 {
		return 0
	}
	r := rmssd(values)
	if r <= 0 {
		return 0
	}
	score := 1 - (r-20)/40
	if score < 0 {
		return 0
	}
	return math.Min(score, 1.0)
}

// fatigueIndicator 近 5 样本均值相对前 5 样本均值的涨幅, 放大两倍后截断
func fatigueIndicator(values []float64) float64 {
	if len(values) < 10 {
		return 0
	}
	recent := mean(values[len(values)-5:])
	earlier := mean(values[len(values)-10 : len(values)-5])
	if earlier <= 0 {
		return 0
	}
	score := (recent - earlier) / earlier * 2
	if score < 0 {
		return 0
	}
	return math.Min(score, 1.0)
}

// classifyRecentActivity 末 5 样本按序号拟合斜率: >2 上升, <-2 下降
func classifyRecentActivity(values []float64) models.ActivityTrend {
	if len(values) < 5 {
		return models.TrendUnknown
	}
	recent := values[len(values)-5:]
	xs := []float64{0, 1, 2, 3, 4}
	slope := olsSlope(xs, recent)

	switch {
	case slope > 2:
		return models.TrendIncreasing
	case slope < -2:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStd 总体标准差(除以 n)
func populationStd(values []float64) float64 {
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// olsSlope 最小二乘一次拟合斜率, x 无方差时返回 0
func olsSlope(xs, ys []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	meanX := mean(xs)
	meanY := mean(ys)
	var num, den float64
	for i := range xs {
		dx := xs[i] - meanX
		num += dx * (ys[i] - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
