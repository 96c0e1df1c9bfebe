package file

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/autoflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Load reads a workflow definition from a .yaml, .yml or .json file.
// The workflow id defaults to the file name without extension.
func Load(path string) (*domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	wf, err := Decode(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if wf.ID == "" {
		wf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// Decode parses a workflow definition. ext selects the format (".json",
// ".yaml", ".yml"); an empty ext sniffs JSON by its leading brace.
func Decode(data []byte, ext string) (*domain.Workflow, error) {
	if ext == "" {
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}

	var wf domain.Workflow
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("invalid json definition: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("invalid yaml definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported definition format %q", ext)
	}
	return &wf, nil
}

// LoadAll loads path when it is a file, or every definition file directly
// inside it when it is a directory, in lexical order.
func LoadAll(path string) ([]*domain.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		wf, err := Load(path)
		if err != nil {
			return nil, err
		}
		return []*domain.Workflow{wf}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var out []*domain.Workflow
	for _, entry := range entries {
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		if entry.IsDir() {
			continue
		}
		wf, err := Load(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}
