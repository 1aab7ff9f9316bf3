package ml

// Measurement holds the four raw flower measurements in centimetres.
type Measurement struct {
	SepalLength float64 `json:"sepal_length"`
	SepalWidth  float64 `json:"sepal_width"`
	PetalLength float64 `json:"petal_length"`
	PetalWidth  float64 `json:"petal_width"`
}

// NumFeatures is the width of a FeatureVector.
const NumFeatures = 7

// FeatureVector is the model input. Column order matches FeatureNames.
type FeatureVector [NumFeatures]float64

// DeriveFeatures maps a measurement to its feature vector:
// the four raw values, petal area, sepal area and the petal/sepal area ratio.
func DeriveFeatures(m Measurement) FeatureVector {
	petalArea := CalculateArea(m.PetalLength, m.PetalWidth)
	sepalArea := CalculateArea(m.SepalLength, m.SepalWidth)

	return FeatureVector{
		m.SepalLength,
		m.SepalWidth,
		m.PetalLength,
		m.PetalWidth,
		petalArea,
		sepalArea,
		CalculateAreaRatio(petalArea, sepalArea),
	}
}

// DeriveFeatureMatrix applies DeriveFeatures to every measurement.
func DeriveFeatureMatrix(measurements []Measurement) [][]float64 {
	rows := make([][]float64, len(measurements))
	for i, m := range measurements {
		vector := DeriveFeatures(m)
		rows[i] = vector[:]
	}
	return rows
}

// FeatureNames returns the column names in FeatureVector order.
func FeatureNames() []string {
	return []string{
		"sepal_length",
		"sepal_width",
		"petal_length",
		"petal_width",
		"petal_area",
		"sepal_area",
		"petal_sepal_area_ratio",
	}
}
