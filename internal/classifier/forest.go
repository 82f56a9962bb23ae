package classifier

import (
	"math"
	"math/rand"
)

// forestParams 随机森林训练参数
type forestParams struct {
	numTrees        int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	seed            int64
}

func defaultForestParams() forestParams {
	return forestParams{
		numTrees:        100,
		maxDepth:        10,
		minSamplesSplit: 5,
		minSamplesLeaf:  2,
		seed:            42,
	}
}

// randomForest 自助采样的 CART 森林, 类别概率为各树叶子分布的平均
type randomForest struct {
	Trees       []*treeNode `json:"trees"`
	Classes     []string    `json:"classes"`
	Importances []float64   `json:"importances"`
	NumFeatures int         `json:"num_features"`
}

// trainForest 训练森林
// 类别权重按 balanced 方案 n/(k*count_c) 折算为样本权重, 缓解类别不均衡
func trainForest(X [][]float64, y []int, classes []string, p forestParams) *randomForest {
	rng := rand.New(rand.NewSource(p.seed))
	n := len(X)
	numClasses := len(classes)
	numFeatures := len(X[0])

	classTotals := make([]float64, numClasses)
	for _, cls := range y {
		classTotals[cls]++
	}
	classWeight := make([]float64, numClasses)
	for c := range classWeight {
		if classTotals[c] > 0 {
			classWeight[c] = float64(n) / (float64(numClasses) * classTotals[c])
		}
	}
	weights := make([]float64, n)
	for i, cls := range y {
		weights[i] = classWeight[cls]
	}

	maxFeatures := int(math.Sqrt(float64(numFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	tp := treeParams{
		maxDepth:        p.maxDepth,
		minSamplesSplit: p.minSamplesSplit,
		minSamplesLeaf:  p.minSamplesLeaf,
		maxFeatures:     maxFeatures,
		numClasses:      numClasses,
	}

	importances := make([]float64, numFeatures)
	trees := make([]*treeNode, 0, p.numTrees)
	idx := make([]int, n)
	for t := 0; t < p.numTrees; t++ {
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees = append(trees, buildTree(X, y, weights, idx, 0, tp, rng, importances))
	}

	var total float64
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}

	return &randomForest{
		Trees:       trees,
		Classes:     classes,
		Importances: importances,
		NumFeatures: numFeatures,
	}
}

// predictProba 返回与 Classes 对齐的类别概率
func (f *randomForest) predictProba(x []float64) []float64 {
	probs := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		leaf := tree.leafFor(x)
		total := sumOf(leaf.Counts)
		if total <= 0 {
			continue
		}
		for c, count := range leaf.Counts {
			probs[c] += count / total
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// predict 概率最大的类别下标
func (f *randomForest) predict(x []float64) int {
	probs := f.predictProba(x)
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best
}

// accuracy 简单正确率
func (f *randomForest) accuracy(X [][]float64, y []int) float64 {
	if len(X) == 0 {
		return 0
	}
	var correct int
	for i, x := range X {
		if f.predict(x) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}
