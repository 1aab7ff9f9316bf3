package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"irisclassifier/ml"
)

// FieldError describes one rejected input, in the shape of a 422 "detail" entry.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError collects every problem found in a request body.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s (and %d more)", e.Errors[0].Loc, e.Errors[0].Msg, len(e.Errors)-1)
}

func (e *ValidationError) add(loc []string, msg, typ string) {
	e.Errors = append(e.Errors, FieldError{Loc: loc, Msg: msg, Type: typ})
}

var measurementFields = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

// decodeMeasurement reads a predict request body. Each field must be present,
// a JSON number, finite and strictly positive. Unknown fields are ignored.
// It returns *ValidationError for client mistakes and *http.MaxBytesError
// when the body exceeds the configured limit.
func decodeMeasurement(body io.Reader) (ml.Measurement, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return ml.Measurement{}, err
	}

	verr := &ValidationError{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		var syntaxErr *json.SyntaxError
		switch {
		case len(bytes.TrimSpace(raw)) == 0:
			verr.add([]string{"body"}, "Field required", "missing")
		case errors.As(err, &syntaxErr):
			verr.add([]string{"body"}, "JSON decode error", "json_invalid")
		default:
			verr.add([]string{"body"}, "Input should be a valid object", "model_attributes_type")
		}
		return ml.Measurement{}, verr
	}

	values := make(map[string]float64, len(measurementFields))
	for _, name := range measurementFields {
		loc := []string{"body", name}
		value, ok := fields[name]
		if !ok {
			verr.add(loc, "Field required", "missing")
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			verr.add(loc, "Input should be a valid number", "float_type")
			continue
		}
		var v float64
		if err := json.Unmarshal(value, &v); err != nil {
			verr.add(loc, "Input should be a valid number", "float_parsing")
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			verr.add(loc, "Input should be a finite number", "finite_number")
			continue
		}
		if v <= 0 {
			verr.add(loc, "Input should be greater than 0", "greater_than")
			continue
		}
		values[name] = v
	}
	if len(verr.Errors) > 0 {
		return ml.Measurement{}, verr
	}

	return ml.Measurement{
		SepalLength: values["sepal_length"],
		SepalWidth:  values["sepal_width"],
		PetalLength: values["petal_length"],
		PetalWidth:  values["petal_width"],
	}, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
