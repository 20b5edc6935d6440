package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type StoreConfig interface {
	GetSessionStore() string
	GetSessionFile() string
	GetSessionPassphrase() string
	GetRedisAddr() string
	GetRedisKey() string
	GetRefreshLockTTL() time.Duration
}

type Store struct {
	src *source
}

var _ StoreConfig = Store{}

// GetSessionStore is one of StoreMemory, StoreFile or StoreRedis
func (s Store) GetSessionStore() string {
	return s.src.str("OPPORTUCI_SESSION_STORE", StoreFile)
}

func (s Store) GetSessionFile() string {
	defaultPath := "opportuci-session.json"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultPath = filepath.Join(dir, "opportuci", "session.json")
	}
	return s.src.str("OPPORTUCI_SESSION_FILE", defaultPath)
}

// GetSessionPassphrase enables encryption of the session file when non-empty
func (s Store) GetSessionPassphrase() string {
	return s.src.str("OPPORTUCI_SESSION_PASSPHRASE", "")
}

func (s Store) GetRedisAddr() string {
	return s.src.str("OPPORTUCI_REDIS_ADDR", "localhost:6379")
}

func (s Store) GetRedisKey() string {
	return s.src.str("OPPORTUCI_REDIS_KEY", "opportuci:session")
}

func (s Store) GetRefreshLockTTL() time.Duration {
	return s.src.duration("OPPORTUCI_REFRESH_LOCK_TTL", 45*time.Second)
}
