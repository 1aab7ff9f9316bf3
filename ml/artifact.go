package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const artifactVersion = 1

// artifact is the on-disk JSON document for every model type.
type artifact struct {
	Type      string      `json:"type"`
	Version   int         `json:"version"`
	NFeatures int         `json:"n_features"`
	Classes   []string    `json:"classes"`
	Trees     []treeState `json:"trees"`
}

type treeState struct {
	Nodes []TreeNode `json:"nodes"`
}

// writeArtifact writes to a temporary file next to path and renames it into
// place so readers never observe a partial artifact.
func writeArtifact(path string, a *artifact) error {
	a.Version = artifactVersion
	a.Classes = ClassNames()

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readArtifact(path, expectedType string) (*artifact, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrModelNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if a.Type != expectedType {
		return nil, fmt.Errorf("model at %s is %q, expected %q", path, a.Type, expectedType)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("model at %s has version %d, expected %d", path, a.Version, artifactVersion)
	}
	if len(a.Classes) != NumClasses {
		return nil, fmt.Errorf("model at %s has %d classes, expected %d", path, len(a.Classes), NumClasses)
	}
	for i, name := range ClassNames() {
		if a.Classes[i] != name {
			return nil, fmt.Errorf("model at %s: class %d is %q, expected %q", path, i, a.Classes[i], name)
		}
	}
	return &a, nil
}
