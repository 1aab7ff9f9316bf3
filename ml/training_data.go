package ml

import (
	_ "embed"
	"fmt"
	"math"
	"math/rand"

	"github.com/gocarina/gocsv"
)

//go:embed data/iris.csv
var irisCSV []byte

// Sample is one labelled measurement.
type Sample struct {
	Measurement Measurement
	Label       ClassLabel
}

type irisRecord struct {
	SepalLength float64 `csv:"sepal_length"`
	SepalWidth  float64 `csv:"sepal_width"`
	PetalLength float64 `csv:"petal_length"`
	PetalWidth  float64 `csv:"petal_width"`
	Target      int     `csv:"target"`
}

// LoadIrisDataset returns the bundled 150-sample Iris dataset.
func LoadIrisDataset() ([]Sample, error) {
	return ParseDataset(irisCSV)
}

// ParseDataset decodes CSV with the header
// sepal_length,sepal_width,petal_length,petal_width,target.
func ParseDataset(data []byte) ([]Sample, error) {
	var records []irisRecord
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	samples := make([]Sample, len(records))
	for i, r := range records {
		label, err := ClassFromID(r.Target)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		samples[i] = Sample{
			Measurement: Measurement{
				SepalLength: r.SepalLength,
				SepalWidth:  r.SepalWidth,
				PetalLength: r.PetalLength,
				PetalWidth:  r.PetalWidth,
			},
			Label: label,
		}
	}
	return samples, nil
}

// BuildTrainingSet derives the feature matrix and label slice for samples.
func BuildTrainingSet(samples []Sample) ([][]float64, []int) {
	measurements := make([]Measurement, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		measurements[i] = s.Measurement
		labels[i] = int(s.Label)
	}
	return DeriveFeatureMatrix(measurements), labels
}

// SplitDataset shuffles with a seeded source and holds out testRatio of the
// samples. Ratios outside (0,1) fall back to 0.2.
func SplitDataset(samples []Sample, testRatio float64, seed int64) (train, test []Sample) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(samples))

	testSize := int(math.Ceil(float64(len(samples)) * testRatio))
	train = make([]Sample, 0, len(samples)-testSize)
	test = make([]Sample, 0, testSize)
	for i, idx := range indices {
		if i < testSize {
			test = append(test, samples[idx])
		} else {
			train = append(train, samples[idx])
		}
	}
	return train, test
}
