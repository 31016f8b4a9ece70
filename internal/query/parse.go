package query

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

// Format is a serialization format for query files.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported query file extension %q", filepath.Ext(path))
	}
}

// Parse decodes a query document in the given format.
func Parse(data []byte, format Format) (*Query, error) {
	raw := make(map[string]any)
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported query format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s query: %w", format, err)
	}
	return Decode(raw)
}

// ParseFile reads and decodes a query file, choosing the format by extension.
func ParseFile(path string) (*Query, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	q, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// Marshal encodes q in the given format using its canonical tagged form.
func Marshal(q *Query, format Format) ([]byte, error) {
	enc := q.Encode()
	switch format {
	case FormatJSON:
		return json.MarshalIndent(enc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(enc)
	case FormatTOML:
		return toml.Marshal(enc)
	default:
		return nil, fmt.Errorf("unsupported query format %q", format)
	}
}
