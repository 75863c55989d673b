// healthlens-demo writes a synthetic patient cohort CSV, ready to upload to
// a HealthLens session.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/healthlens/healthlens/internal/demo"
)

func main() {
	rows := flag.Int("rows", 500, "number of patients to generate")
	seed := flag.Int64("seed", 1, "random seed")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	writer := os.Stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = file
	}

	if err := demo.NewGenerator(*seed).WriteCohortCSV(writer, *rows); err != nil {
		fmt.Fprintf(os.Stderr, "generate cohort: %v\n", err)
		os.Exit(1)
	}
}
