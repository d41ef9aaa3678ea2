package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bashed/internal/publish"
	"github.com/roach88/bashed/internal/record"
)

// Manifest describes a plugin session in YAML:
//
//	game: skyrim
//	plugins:
//	  - Data/Skyrim.esm
//	  - Data/ModA.esp
//	tags:
//	  ModA.esp: [Relev, Delev]
//	output: out/Bashed Patch, 0.esp
//
// Relative paths resolve against the manifest's directory.
type Manifest struct {
	Game      string `yaml:"game"`
	SchemaDir string `yaml:"schema_dir"`

	Plugins    []string `yaml:"plugins"`
	Active     []string `yaml:"active"`
	Preference []string `yaml:"preference"`

	Tags             map[string][]string `yaml:"tags"`
	DescriptionTags  bool                `yaml:"description_tags"`
	Types            []record.Signature  `yaml:"types"`
	IncludeUnchanged bool                `yaml:"include_unchanged"`
	Strict           bool                `yaml:"strict"`

	Output      string `yaml:"output"`
	Name        string `yaml:"name"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.resolvePaths(filepath.Dir(path))
	return m, nil
}

// ParseManifest decodes a manifest. Unknown fields are errors.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for plugin, tags := range m.Tags {
		if len(tags) == 0 {
			return nil, fmt.Errorf("tags.%s: at least one tag is required", plugin)
		}
	}
	return &m, nil
}

func (m *Manifest) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || publish.Scheme(p) != "" {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i, p := range m.Plugins {
		m.Plugins[i] = abs(p)
	}
	m.SchemaDir = abs(m.SchemaDir)
	m.Output = abs(m.Output)
}
