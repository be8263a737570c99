package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the role and policy tables.
type fileConfig struct {
	Model    Model              `yaml:"model"`
	Roles    []*Role            `yaml:"roles"`
	Policies []*AttributePolicy `yaml:"policies"`
}

// LoadFile reads roles and policies from a YAML file and installs them into
// the engine. Callable again at runtime for hot reload.
func LoadFile(e *Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("policy config %s: %w", path, err)
	}
	if err := e.ReplaceRoles(cfg.Roles); err != nil {
		return err
	}
	return e.ReplacePolicies(cfg.Policies)
}
