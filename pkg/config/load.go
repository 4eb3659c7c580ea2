package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

// LoadFile reads a YAML config file on top of Default. Fields absent from
// the file keep their default values. The result is not validated.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file '%s': %v", utils.ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config file '%s': %v", utils.ErrConfig, path, err)
	}
	return cfg, nil
}
