package ml

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
)

// ClassMetrics holds per-class scores on a held-out set.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation summarises classifier quality.
type Evaluation struct {
	Accuracy       float64                 `json:"accuracy"`
	MacroPrecision float64                 `json:"macro_precision"`
	MacroRecall    float64                 `json:"macro_recall"`
	MacroF1        float64                 `json:"macro_f1"`
	PerClass       map[string]ClassMetrics `json:"per_class"`
	Samples        int                     `json:"samples"`
}

// Evaluate scores model on the given samples.
func Evaluate(model Classifier, samples []Sample) (*Evaluation, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}

	var confusion [NumClasses][NumClasses]int
	correct := 0
	for _, s := range samples {
		vector := DeriveFeatures(s.Measurement)
		predicted, err := model.Predict(vector[:])
		if err != nil {
			return nil, err
		}
		if _, err := ClassFromID(predicted); err != nil {
			return nil, err
		}
		confusion[s.Label][predicted]++
		if predicted == int(s.Label) {
			correct++
		}
	}

	ev := &Evaluation{
		Accuracy: float64(correct) / float64(len(samples)),
		PerClass: make(map[string]ClassMetrics, NumClasses),
		Samples:  len(samples),
	}

	precisions := make(stats.Float64Data, 0, NumClasses)
	recalls := make(stats.Float64Data, 0, NumClasses)
	f1s := make(stats.Float64Data, 0, NumClasses)
	for c := 0; c < NumClasses; c++ {
		truePositive := confusion[c][c]
		predictedPositive := 0
		actualPositive := 0
		for k := 0; k < NumClasses; k++ {
			predictedPositive += confusion[k][c]
			actualPositive += confusion[c][k]
		}

		m := ClassMetrics{Support: actualPositive}
		if predictedPositive > 0 {
			m.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			m.Recall = float64(truePositive) / float64(actualPositive)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		ev.PerClass[ClassLabel(c).String()] = m

		precisions = append(precisions, m.Precision)
		recalls = append(recalls, m.Recall)
		f1s = append(f1s, m.F1)
	}

	var err error
	if ev.MacroPrecision, err = precisions.Mean(); err != nil {
		return nil, err
	}
	if ev.MacroRecall, err = recalls.Mean(); err != nil {
		return nil, err
	}
	if ev.MacroF1, err = f1s.Mean(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Report renders a plain-text classification report.
func (e *Evaluation) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, name := range ClassNames() {
		m := e.PerClass[name]
		fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\n%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", e.Accuracy, e.Samples)
	fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", "macro avg", e.MacroPrecision, e.MacroRecall, e.MacroF1, e.Samples)
	return b.String()
}
