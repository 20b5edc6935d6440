package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	configFileEnvVar = "OPPORTUCI_CONFIG"
	appNameVar       = "APP_NAME"
	envVar           = "ENV"
	baseURLVar       = "OPPORTUCI_BASE_URL"
	userAgentVar     = "OPPORTUCI_USER_AGENT"
)

// source resolves a setting from the environment, then the YAML file.
type source struct {
	file map[string]string
}

func (s *source) lookup(envVar string) (string, bool) {
	if value := os.Getenv(envVar); value != "" {
		return value, true
	}
	if s != nil {
		if value, ok := s.file[envVar]; ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func (s *source) str(envVar, defaultValue string) string {
	if value, ok := s.lookup(envVar); ok {
		return value
	}
	return defaultValue
}

func (s *source) duration(envVar string, defaultValue time.Duration) time.Duration {
	value, ok := s.lookup(envVar)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (s *source) integer(envVar string, defaultValue int) int {
	value, ok := s.lookup(envVar)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (s *source) float(envVar string, defaultValue float64) float64 {
	value, ok := s.lookup(envVar)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.src.str(appNameVar, "OpportuCI")
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.src.str(envVar, "DEV"))
}

// GetBaseURL returns the backend API root every request path is relative to
// (e.g. "https://api.opportunici.ci/api"). No trailing slash.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.src.str(baseURLVar, "http://127.0.0.1:8000/api"), "/")
}

func (e EnvVars) GetUserAgent() string {
	return e.src.str(userAgentVar, fmt.Sprintf("%s-go-client/1.0", e.GetAppName()))
}
