// Package demo generates a synthetic patient cohort for trying HealthLens
// without real data. Values are random but plausible; the same seed always
// produces the same cohort.
package demo

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"
)

var cohortHeader = []string{
	"patient_id", "age", "sex", "bmi", "systolic_bp", "glucose", "smoker", "condition", "admitted_at",
}

type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WriteCohortCSV writes a cohort of the given size as CSV, header included.
func (g *Generator) WriteCohortCSV(w io.Writer, rows int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(cohortHeader); err != nil {
		return fmt.Errorf("write cohort header: %w", err)
	}
	for i := 0; i < rows; i++ {
		if err := writer.Write(g.nextPatient(i + 1)); err != nil {
			return fmt.Errorf("write cohort row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush cohort: %w", err)
	}
	return nil
}

func (g *Generator) nextPatient(sequence int) []string {
	age := 18 + g.rnd.Intn(72)
	smoker := g.rnd.Float64() < 0.22
	bmi := round1(18 + g.rnd.Float64()*22)
	systolic := 95 + g.rnd.Intn(20) + age/2
	glucose := round1(3.8 + g.rnd.Float64()*4.5)
	admitted := g.now().AddDate(0, 0, -g.rnd.Intn(365))

	return []string{
		fmt.Sprintf("p%05d", sequence),
		fmt.Sprintf("%d", age),
		pickOne(g.rnd, []string{"F", "M"}),
		fmt.Sprintf("%.1f", bmi),
		fmt.Sprintf("%d", systolic),
		fmt.Sprintf("%.1f", glucose),
		fmt.Sprintf("%t", smoker),
		g.pickCondition(age, smoker),
		admitted.Format("2006-01-02"),
	}
}

func (g *Generator) pickCondition(age int, smoker bool) string {
	p := g.rnd.Intn(100)
	if smoker {
		p -= 15
	}
	if age > 60 {
		p -= 10
	}
	switch {
	case p < 12:
		return "copd"
	case p < 28:
		return "hypertension"
	case p < 40:
		return "diabetes"
	case p < 52:
		return "asthma"
	default:
		return "none"
	}
}

func pickOne(rnd *rand.Rand, values []string) string {
	return values[rnd.Intn(len(values))]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
