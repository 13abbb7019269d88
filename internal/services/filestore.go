package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NewFileParameterStore loads configuration keys from a YAML file, e.g.
//
//	OIDC_PROVIDER: authentik
//	AUTHENTIK_URL: https://auth.example.com
//	AUTHENTIK_PROPERTY_MAPPINGS: [openid, email, profile]
func NewFileParameterStore(path string) (*StaticParameterStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return NewStaticParameterStore(flatten(raw)), nil
}
