// Package version holds the service identity reported by the API.
package version

const (
	// Name is the service name.
	Name = "Iris Classifier"

	// Version is the service version.
	Version = "0.1.0"
)
