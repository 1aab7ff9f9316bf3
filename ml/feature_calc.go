package ml

// CalculateArea returns length × width.
func CalculateArea(length, width float64) float64 {
	return length * width
}

// CalculateAreaRatio divides petal area by sepal area. A zero sepal area is
// treated as 1.
func CalculateAreaRatio(petalArea, sepalArea float64) float64 {
	if sepalArea == 0 {
		sepalArea = 1
	}
	return petalArea / sepalArea
}
