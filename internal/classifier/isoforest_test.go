package classifier

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvgPathLength(t *testing.T) {
	assert.Zero(t, avgPathLength(0))
	assert.Zero(t, avgPathLength(1))
	// c(2) = 2*(ln1+γ) - 2*1/2 = 2γ - 1
	assert.InDelta(t, 2*eulerGamma-1, avgPathLength(2), 1e-12)
	// c(256) 标准参考值
	assert.InDelta(t, 10.244770, avgPathLength(256), 1e-5)

	// n 越大平均路径越长
	assert.Greater(t, avgPathLength(100), avgPathLength(10))
}

func TestQuantile(t *testing.T) {
	assert.Zero(t, quantile(nil, 0.5))

	sorted := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, quantile(sorted, 0))
	assert.Equal(t, 5.0, quantile(sorted, 1))
	assert.Equal(t, 3.0, quantile(sorted, 0.5))
	// 线性插值: 0.1 分位落在 1 与 2 之间
	assert.InDelta(t, 1.4, quantile(sorted, 0.1), 1e-9)
}

// makeGaussianCloud 二维近似正态点云
func makeGaussianCloud(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}
	return X
}

func TestIsolationForestOrdering(t *testing.T) {
	X := makeGaussianCloud(200, 11)
	f := trainIsolationForest(X, 100, 0.1, rand.New(rand.NewSource(42)))

	center := []float64{0, 0}
	outlier := []float64{1000, 1000}

	// 离群点的得分必须严格低于中心点
	assert.Less(t, f.scoreSamples(outlier), f.scoreSamples(center))
	assert.Less(t, f.decisionFunction(outlier), f.decisionFunction(center))

	// 异常得分在 (0,1] 且离群点更接近 1
	assert.Greater(t, f.anomalyScore(outlier), f.anomalyScore(center))
	assert.LessOrEqual(t, f.anomalyScore(outlier), 1.0)
	assert.Greater(t, f.anomalyScore(center), 0.0)
}

func TestIsolationForestOffsetQuantile(t *testing.T) {
	X := makeGaussianCloud(200, 11)
	f := trainIsolationForest(X, 100, 0.1, rand.New(rand.NewSource(42)))

	// Offset 是训练得分的 contamination 分位: 决策值为负的训练点约占 10%
	var flagged int
	for _, x := range X {
		if f.decisionFunction(x) < 0 {
			flagged++
		}
	}
	fraction := float64(flagged) / float64(len(X))
	assert.GreaterOrEqual(t, fraction, 0.04)
	assert.LessOrEqual(t, fraction, 0.16)
}

func TestIsolationForestSampleSizeCapped(t *testing.T) {
	small := trainIsolationForest(makeGaussianCloud(50, 3), 10, 0.1, rand.New(rand.NewSource(1)))
	assert.Equal(t, 50, small.SampleSize)

	large := trainIsolationForest(makeGaussianCloud(400, 3), 10, 0.1, rand.New(rand.NewSource(1)))
	assert.Equal(t, 256, large.SampleSize)
}

func TestIsolationForestDeterministic(t *testing.T) {
	X := makeGaussianCloud(120, 5)

	f1 := trainIsolationForest(X, 50, 0.1, rand.New(rand.NewSource(42)))
	f2 := trainIsolationForest(X, 50, 0.1, rand.New(rand.NewSource(42)))

	assert.Equal(t, f1.Offset, f2.Offset)
	probe := []float64{0.5, -0.5}
	assert.Equal(t, f1.scoreSamples(probe), f2.scoreSamples(probe))
}

func TestIsoNodePathLength(t *testing.T) {
	// 深度 1 的树: 左叶 1 点, 右叶 3 点
	root := &isoNode{
		Feature:   0,
		Threshold: 0,
		Left:      &isoNode{Feature: -1, Size: 1},
		Right:     &isoNode{Feature: -1, Size: 3},
	}

	// 左叶: 深度 1 + c(1)=0
	assert.InDelta(t, 1.0, root.pathLength([]float64{-1}, 0), 1e-12)
	// 右叶: 深度 1 + c(3)
	assert.InDelta(t, 1.0+avgPathLength(3), root.pathLength([]float64{1}, 0), 1e-12)
}

func TestEmptyIsolationForestScore(t *testing.T) {
	f := &isolationForest{Offset: -0.5}
	require.Zero(t, f.anomalyScore([]float64{1, 2}))
	assert.Equal(t, 0.5, f.decisionFunction([]float64{1, 2}))
}
