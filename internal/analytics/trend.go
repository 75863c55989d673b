package analytics

import (
	"fmt"
)

type TrendReport struct {
	XColumn   string  `json:"x_column"`
	YColumn   string  `json:"y_column"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Points    int     `json:"points"`
}

// Trend fits a least-squares line for yColumn. An empty xColumn uses row
// order as x. Rows missing either value are skipped.
func Trend(columns []string, rows [][]any, xColumn, yColumn string) (TrendReport, error) {
	yIndex := columnIndex(columns, yColumn)
	if yIndex < 0 {
		return TrendReport{}, fmt.Errorf("unknown column %q", yColumn)
	}
	xIndex := -1
	if xColumn != "" {
		xIndex = columnIndex(columns, xColumn)
		if xIndex < 0 {
			return TrendReport{}, fmt.Errorf("unknown column %q", xColumn)
		}
	}

	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for i, row := range rows {
		y, ok := cellFloat(row, yIndex)
		if !ok {
			continue
		}
		x := float64(i)
		if xIndex >= 0 {
			value, ok := cellFloat(row, xIndex)
			if !ok {
				continue
			}
			x = value
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return TrendReport{}, fmt.Errorf("need at least 2 points, have %d", len(xs))
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return TrendReport{}, fmt.Errorf("x values are constant")
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	// R^2 from residual and total sums of squares.
	meanY := sumY / n
	var ssRes, ssTot float64
	for i := range xs {
		predicted := slope*xs[i] + intercept
		ssRes += (ys[i] - predicted) * (ys[i] - predicted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return TrendReport{
		XColumn:   xColumn,
		YColumn:   yColumn,
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared,
		Points:    len(xs),
	}, nil
}

func columnIndex(columns []string, name string) int {
	for i, column := range columns {
		if column == name {
			return i
		}
	}
	return -1
}
