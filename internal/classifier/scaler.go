package classifier

import "math"

// standardScaler 按列标准化 (x-mean)/std, std 为总体标准差
// 零方差列的 std 置 1, 变换后保持 x-mean
type standardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// fitScaler 在训练集上拟合均值与标准差
func fitScaler(X [][]float64) *standardScaler {
	numFeatures := len(X[0])
	s := &standardScaler{
		Mean: make([]float64, numFeatures),
		Std:  make([]float64, numFeatures),
	}

	n := float64(len(X))
	for j := 0; j < numFeatures; j++ {
		var sum float64
		for _, row := range X {
			sum += row[j]
		}
		m := sum / n

		var sumSq float64
		for _, row := range X {
			d := row[j] - m
			sumSq += d * d
		}
		sd := math.Sqrt(sumSq / n)
		if sd == 0 {
			sd = 1
		}

		s.Mean[j] = m
		s.Std[j] = sd
	}
	return s
}

func (s *standardScaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s *standardScaler) transformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = s.transform(x)
	}
	return out
}
