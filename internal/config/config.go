package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	ClientConfig
	StoreConfig
	ObservabilityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetUserAgent() string
}

type mainConfig struct {
	EnvVars
	Client
	Store
	Observability
}

// New loads .env (if present) and the optional YAML file named by
// OPPORTUCI_CONFIG, then returns a Config whose getters resolve
// environment variable > YAML value > default.
func New() (Config, error) {
	_ = godotenv.Load() // .env is optional

	file, err := loadFile(os.Getenv(configFileEnvVar))
	if err != nil {
		return nil, err
	}
	src := &source{file: file}
	return mainConfig{
		EnvVars:       EnvVars{src},
		Client:        Client{src},
		Store:         Store{src},
		Observability: Observability{src},
	}, nil
}
