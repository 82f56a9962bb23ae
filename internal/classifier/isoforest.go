package classifier

import (
	"math"
	"math/rand"
	"sort"
)

// isolationForest 多维隔离森林
// 判定约定: decisionFunction = -anomalyScore - Offset,
// Offset 取训练集 score 的 contamination 分位, 低于 0 即落在离群侧
type isolationForest struct {
	Trees      []*isoNode `json:"trees"`
	SampleSize int        `json:"sample_size"`
	Offset     float64    `json:"offset"`
}

// isoNode 隔离树节点, Feature=-1 表示外部节点
type isoNode struct {
	Feature   int      `json:"f"`
	Threshold float64  `json:"t,omitempty"`
	Left      *isoNode `json:"l,omitempty"`
	Right     *isoNode `json:"r,omitempty"`
	Size      int      `json:"n,omitempty"`
}

const eulerGamma = 0.5772156649015329

// avgPathLength BST 失败查找的平均路径长度 c(n), 用于得分归一化
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

func buildIsoTree(X [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{Feature: -1, Size: len(idx)}
	}

	feature := rng.Intn(len(X[0]))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, id := range idx {
		v := X[id][feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return &isoNode{Feature: -1, Size: len(idx)}
	}

	threshold := lo + rng.Float64()*(hi-lo)
	var leftIdx, rightIdx []int
	for _, id := range idx {
		if X[id][feature] < threshold {
			leftIdx = append(leftIdx, id)
		} else {
			rightIdx = append(rightIdx, id)
		}
	}

	return &isoNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildIsoTree(X, leftIdx, depth+1, maxDepth, rng),
		Right:     buildIsoTree(X, rightIdx, depth+1, maxDepth, rng),
	}
}

func (n *isoNode) pathLength(x []float64, depth float64) float64 {
	if n.Feature < 0 {
		return depth + avgPathLength(n.Size)
	}
	if x[n.Feature] < n.Threshold {
		return n.Left.pathLength(x, depth+1)
	}
	return n.Right.pathLength(x, depth+1)
}

// trainIsolationForest 训练隔离森林并按 contamination 分位设置判定偏移
func trainIsolationForest(X [][]float64, numTrees int, contamination float64, rng *rand.Rand) *isolationForest {
	sampleSize := 256
	if sampleSize > len(X) {
		sampleSize = len(X)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	f := &isolationForest{SampleSize: sampleSize}
	for t := 0; t < numTrees; t++ {
		idx := rng.Perm(len(X))[:sampleSize]
		f.Trees = append(f.Trees, buildIsoTree(X, idx, 0, maxDepth, rng))
	}

	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = f.scoreSamples(x)
	}
	sort.Float64s(scores)
	f.Offset = quantile(scores, contamination)
	return f
}

// anomalyScore 标准隔离森林得分 2^(-E[h]/c(n)), 越接近 1 越异常
func (f *isolationForest) anomalyScore(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.pathLength(x, 0)
	}
	avg := sum / float64(len(f.Trees))
	c := avgPathLength(f.SampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

func (f *isolationForest) scoreSamples(x []float64) float64 {
	return -f.anomalyScore(x)
}

func (f *isolationForest) decisionFunction(x []float64) float64 {
	return f.scoreSamples(x) - f.Offset
}

// quantile 已排序切片的线性插值分位数
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
