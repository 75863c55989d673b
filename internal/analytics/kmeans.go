package analytics

import (
	"fmt"
	"math"
	"math/rand"
)

const kmeansMaxIterations = 100

type Cluster struct {
	Size   int       `json:"size"`
	Center []float64 `json:"center"`
}

type ClusterReport struct {
	K           int       `json:"k"`
	Features    []string  `json:"features"`
	Inertia     float64   `json:"inertia"`
	Clusters    []Cluster `json:"clusters"`
	Assignments []int     `json:"assignments"`
}

// KMeans clusters the complete numeric rows of a grid. k is clamped to
// [2, 8]. Features are standardized before clustering and the reported
// centers are mapped back to original units.
func KMeans(columns []string, rows [][]any, k int) (ClusterReport, error) {
	if k < 2 {
		k = 2
	}
	if k > 8 {
		k = 8
	}

	numeric := extractNumeric(columns, rows)
	if len(numeric) == 0 {
		return ClusterReport{}, fmt.Errorf("no numeric columns to cluster")
	}

	features := make([]string, len(numeric))
	for i, column := range numeric {
		features[i] = column.name
	}

	// Keep only rows where every numeric feature is present.
	points := make([][]float64, 0, len(rows))
	for rowIndex := range rows {
		point := make([]float64, len(numeric))
		complete := true
		for featureIndex, column := range numeric {
			value, ok := cellFloat(rows[rowIndex], column.index)
			if !ok {
				complete = false
				break
			}
			point[featureIndex] = value
		}
		if complete {
			points = append(points, point)
		}
	}
	if len(points) < k {
		return ClusterReport{}, fmt.Errorf("need at least %d complete rows, have %d", k, len(points))
	}

	means := make([]float64, len(numeric))
	stds := make([]float64, len(numeric))
	for j := range numeric {
		col := make([]float64, len(points))
		for i := range points {
			col[i] = points[i][j]
		}
		means[j] = mean(col)
		stds[j] = std(col)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	scaled := make([][]float64, len(points))
	for i := range points {
		scaled[i] = make([]float64, len(numeric))
		for j := range numeric {
			scaled[i][j] = (points[i][j] - means[j]) / stds[j]
		}
	}

	// A fixed seed keeps repeated runs over the same dataset comparable.
	rng := rand.New(rand.NewSource(1))
	centroids := initCentroids(scaled, k, rng)
	assignments := make([]int, len(scaled))
	inertia := 0.0

	for iteration := 0; iteration < kmeansMaxIterations; iteration++ {
		changed := false
		for i, point := range scaled {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				if dist := euclidSquared(point, centroid); dist < bestDist {
					best, bestDist = c, dist
				}
			}
			if assignments[i] != best {
				changed = true
			}
			assignments[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, len(numeric))
		}
		inertia = 0
		for i, point := range scaled {
			c := assignments[i]
			counts[c]++
			for j, value := range point {
				sums[c][j] += value
			}
			inertia += euclidSquared(point, centroids[c])
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}

	clusters := make([]Cluster, k)
	for c := range clusters {
		center := make([]float64, len(numeric))
		for j := range center {
			center[j] = centroids[c][j]*stds[j] + means[j]
		}
		clusters[c] = Cluster{Center: center}
	}
	for _, c := range assignments {
		clusters[c].Size++
	}

	return ClusterReport{
		K:           k,
		Features:    features,
		Inertia:     inertia,
		Clusters:    clusters,
		Assignments: assignments,
	}, nil
}

// initCentroids uses k-means++ style seeding: the first center is random,
// later centers are drawn proportionally to squared distance from the
// nearest existing center.
func initCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	for len(centroids) < k {
		distances := make([]float64, len(points))
		total := 0.0
		for i, point := range points {
			nearest := math.MaxFloat64
			for _, centroid := range centroids {
				if dist := euclidSquared(point, centroid); dist < nearest {
					nearest = dist
				}
			}
			distances[i] = nearest
			total += nearest
		}

		if total == 0 {
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(len(points))]...))
			continue
		}

		target := rng.Float64() * total
		cumulative := 0.0
		for i, dist := range distances {
			cumulative += dist
			if cumulative >= target {
				centroids = append(centroids, append([]float64(nil), points[i]...))
				break
			}
		}
	}
	return centroids
}

func euclidSquared(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cellFloat(row []any, index int) (float64, bool) {
	if index >= len(row) || row[index] == nil {
		return 0, false
	}
	return toFloat(row[index])
}
