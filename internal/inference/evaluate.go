package inference

import (
	"fmt"
	"log"

	"symbolnet/internal/dataset"
)

// Report summarizes a labeled evaluation run.
type Report struct {
	Total    int
	Correct  int
	Rejected int
	// Confusion[true][predicted] counts predictions per class pair.
	Confusion [][]int
}

// Accuracy returns Correct/Total, or 0 for an empty report.
func (r *Report) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// Evaluate predicts every example of ds and compares against its class.
// Each prediction is logged when logger is non-nil.
func Evaluate(p *Predictor, ds *dataset.Dataset, logger *log.Logger) (*Report, error) {
	classes := p.Net.OutputSize()
	report := &Report{Confusion: make([][]int, classes)}
	for i := range report.Confusion {
		report.Confusion[i] = make([]int, classes)
	}
	for i, ex := range ds.Examples {
		res, err := p.Predict(ex.Input)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		want := ds.Classes[i]
		report.Total++
		if res.Class == want {
			report.Correct++
		}
		if res.Rejected() {
			report.Rejected++
		}
		if want >= 0 && want < classes {
			report.Confusion[want][res.Class]++
		}
		if logger != nil {
			logger.Printf("example=%d true=%s predicted=%s confidence=%.2f entropy=%.2f rejected=%t",
				i+1, dataset.LabelName(want), res.Label, res.Confidence, res.Entropy, res.Rejected())
		}
	}
	return report, nil
}
