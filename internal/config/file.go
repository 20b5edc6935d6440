package config

import (
	"fmt"
	"os"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"gopkg.in/yaml.v3"
)

// loadFile reads a flat YAML mapping keyed by the same names as the
// environment variables, e.g.
//
//	OPPORTUCI_BASE_URL: https://api.opportunici.ci/api
//	OPPORTUCI_REFRESH_TIMEOUT: 10s
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config loadFile] %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config loadFile] %s: %v", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}
