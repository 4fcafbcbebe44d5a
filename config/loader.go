package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader reads the configuration file.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and unmarshals the file, applies defaults and validates the result.
// Unknown keys are rejected.
func (l *Loader) Load() (*Config, error) {
	if l.filePath == "" {
		return nil, errors.New("configuration file path is empty")
	}
	f, err := os.Open(l.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", l.filePath)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config YAML from '%s'", l.filePath)
	}

	SetDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrapf(err, "config validation failed in '%s'", l.filePath)
	}
	return &cfg, nil
}
