package ml

import "fmt"

// ClassLabel is the ordinal of an Iris species.
type ClassLabel int

const (
	Setosa ClassLabel = iota
	Versicolor
	Virginica
)

// NumClasses is the number of species the classifier distinguishes.
const NumClasses = 3

// classNames is indexed by ClassLabel and must never be reordered.
var classNames = [NumClasses]string{"setosa", "versicolor", "virginica"}

// ClassNames returns the species names in ordinal order.
func ClassNames() []string {
	names := make([]string, NumClasses)
	copy(names, classNames[:])
	return names
}

// ClassFromID converts an ordinal returned by a model into a ClassLabel.
func ClassFromID(id int) (ClassLabel, error) {
	if id < 0 || id >= NumClasses {
		return 0, fmt.Errorf("class id %d out of range [0,%d)", id, NumClasses)
	}
	return ClassLabel(id), nil
}

func (c ClassLabel) String() string {
	if c < 0 || int(c) >= NumClasses {
		return fmt.Sprintf("ClassLabel(%d)", int(c))
	}
	return classNames[c]
}
