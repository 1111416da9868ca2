package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv collects variables named PREFIX_KEY into a Config keyed by the
// lower-cased KEY. OPENPANEL_CLIENT_ID with prefix "OPENPANEL" becomes
// "client_id".
//
// envFiles are read with godotenv first. Variables already present in the
// process environment win over file values, and the process environment is
// never modified.
func FromEnv(prefix string, envFiles ...string) (Config, error) {
	vars := make(map[string]string)

	if len(envFiles) > 0 {
		fileVars, err := godotenv.Read(envFiles...)
		if err != nil {
			return Config{}, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}

	p := strings.ToUpper(prefix) + "_"
	data := make(map[string]any)
	for k, v := range vars {
		if !strings.HasPrefix(k, p) || len(k) == len(p) {
			continue
		}
		data[strings.ToLower(strings.TrimPrefix(k, p))] = v
	}
	return New(data), nil
}
