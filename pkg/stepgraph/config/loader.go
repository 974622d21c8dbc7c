package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoders maps a file extension to its unmarshal function. Engine config
// files are flat-ish maps (run settings plus a channels section), so both
// formats decode into map[string]any.
var decoders = map[string]func([]byte, any) error{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads an engine config file, picking the decoder from the file
// extension (.yaml, .yml, or .json).
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("config: no decoder for %q files", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decodeConfig(decode, data, ext)
}

// FromYAML parses YAML into a Config.
func FromYAML(data []byte) (Config, error) {
	return decodeConfig(yaml.Unmarshal, data, ".yaml")
}

// FromJSON parses JSON into a Config.
func FromJSON(data []byte) (Config, error) {
	return decodeConfig(json.Unmarshal, data, ".json")
}

func decodeConfig(decode func([]byte, any) error, data []byte, ext string) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	return New(m), nil
}
