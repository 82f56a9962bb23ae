package classifier

import (
	"math/rand"
	"sort"
)

// treeNode CART 分类树节点
// 内部节点按 Feature<=Threshold 走左子树, 叶子节点保存各类别的加权样本数
type treeNode struct {
	Feature   int       `json:"f,omitempty"`
	Threshold float64   `json:"t,omitempty"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
	Counts    []float64 `json:"c,omitempty"`
}

func (n *treeNode) isLeaf() bool {
	return n.Left == nil
}

// leafFor 沿分裂路径找到样本所属叶子
func (n *treeNode) leafFor(x []float64) *treeNode {
	node := n
	for !node.isLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// treeParams 单棵树的生长约束
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	numClasses      int
}

// buildTree 递归生长一棵树, 分裂的加权不纯度下降累计到 importances
func buildTree(X [][]float64, y []int, weights []float64, idx []int, depth int, p treeParams, rng *rand.Rand, importances []float64) *treeNode {
	counts := classCounts(y, weights, idx, p.numClasses)
	node := &treeNode{Counts: counts}

	if depth >= p.maxDepth || len(idx) < p.minSamplesSplit || isPure(counts) {
		return node
	}

	feature, threshold, gain, leftIdx, rightIdx := bestSplit(X, y, weights, idx, p, rng)
	if feature < 0 {
		return node
	}

	importances[feature] += gain
	node.Feature = feature
	node.Threshold = threshold
	node.Counts = nil
	node.Left = buildTree(X, y, weights, leftIdx, depth+1, p, rng, importances)
	node.Right = buildTree(X, y, weights, rightIdx, depth+1, p, rng, importances)
	return node
}

// bestSplit 在随机特征子集上枚举相邻取值中点, 选加权基尼下降最大的分裂
// 找不到满足 minSamplesLeaf 的有效分裂时 feature 返回 -1
func bestSplit(X [][]float64, y []int, weights []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, float64, []int, []int) {
	parentCounts := classCounts(y, weights, idx, p.numClasses)
	parentWeight := sumOf(parentCounts)
	parentGini := gini(parentCounts, parentWeight)

	bestFeature := -1
	var bestThreshold, bestGain float64

	type record struct {
		value  float64
		class  int
		weight float64
	}

	candidates := rng.Perm(len(X[0]))[:p.maxFeatures]
	records := make([]record, len(idx))

	for _, f := range candidates {
		for i, id := range idx {
			records[i] = record{value: X[id][f], class: y[id], weight: weights[id]}
		}
		sort.Slice(records, func(a, b int) bool { return records[a].value < records[b].value })

		left := make([]float64, p.numClasses)
		right := append([]float64(nil), parentCounts...)
		var leftWeight float64
		rightWeight := parentWeight

		for i := 0; i < len(records)-1; i++ {
			left[records[i].class] += records[i].weight
			right[records[i].class] -= records[i].weight
			leftWeight += records[i].weight
			rightWeight -= records[i].weight

			if records[i].value == records[i+1].value {
				continue
			}
			if i+1 < p.minSamplesLeaf || len(records)-(i+1) < p.minSamplesLeaf {
				continue
			}

			gain := parentWeight*parentGini - leftWeight*gini(left, leftWeight) - rightWeight*gini(right, rightWeight)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (records[i].value + records[i+1].value) / 2
			}
		}
	}

	if bestFeature < 0 {
		return -1, 0, 0, nil, nil
	}

	var leftIdx, rightIdx []int
	for _, id := range idx {
		if X[id][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, id)
		} else {
			rightIdx = append(rightIdx, id)
		}
	}
	return bestFeature, bestThreshold, bestGain, leftIdx, rightIdx
}

func classCounts(y []int, weights []float64, idx []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, id := range idx {
		counts[y[id]] += weights[id]
	}
	return counts
}

func isPure(counts []float64) bool {
	var nonZero int
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// gini 加权基尼不纯度 1-Σp²
func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

func sumOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}
