// Package analytics provides statistical routines over the numeric columns
// of a dataset: summary statistics, outlier detection, k-means clustering,
// and least-squares trend fitting.
package analytics

import (
	"math"
	"sort"
)

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func variance(x []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	sum, sumSq := 0.0, 0.0
	for _, v := range x {
		sum += v
		sumSq += v * v
	}
	m := sum / n
	return (sumSq / n) - (m * m)
}

func std(x []float64) float64 {
	return math.Sqrt(variance(x))
}

// percentile interpolates linearly between order statistics.
func percentile(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, x)
	sort.Float64s(cp)
	if p <= 0 {
		return cp[0]
	}
	if p >= 100 {
		return cp[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return cp[lower]
	}
	return cp[lower]*(1-weight) + cp[upper]*weight
}

// skewness is the adjusted Fisher-Pearson coefficient; zero for fewer than
// three samples or a constant column.
func skewness(x []float64) float64 {
	n := float64(len(x))
	if n < 3 {
		return 0
	}
	m := mean(x)
	s := std(x)
	if s == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		d := (v - m) / s
		sum += d * d * d
	}
	return (n / ((n - 1) * (n - 2))) * sum
}

func minMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	low, high := x[0], x[0]
	for _, v := range x[1:] {
		if v < low {
			low = v
		} else if v > high {
			high = v
		}
	}
	return low, high
}
