package storage

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ServerConfig is the durable server configuration record: the token
// signing secret, the token lifetime, and the password hashing cost. It is
// generated on first boot and hand-editable afterwards.
type ServerConfig struct {
	Secret          string `json:"secret"`
	TokenTTLMinutes int    `json:"tokenTtlMinutes"`
	BcryptCost      int    `json:"bcryptCost"`
}

// TokenTTL converts the persisted minutes into a duration.
func (c ServerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

const (
	defaultTokenTTLMinutes = 24 * 60
	secretBytes            = 32
)

// LoadServerConfig reads the config record, generating and persisting a
// fresh one when the file does not exist. A present-but-unparseable file is
// fatal, matching the hadron store policy.
func LoadServerConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err := generateServerConfig()
		if err != nil {
			return ServerConfig{}, err
		}
		if err := writeServerConfig(path, cfg); err != nil {
			return ServerConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return ServerConfig{}, fmt.Errorf("read server config %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse server config %s: %w: %v", path, ErrCorruptState, err)
	}
	if cfg.Secret == "" {
		return ServerConfig{}, fmt.Errorf("server config %s has an empty secret: %w", path, ErrCorruptState)
	}
	if cfg.TokenTTLMinutes <= 0 {
		cfg.TokenTTLMinutes = defaultTokenTTLMinutes
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return cfg, nil
}

func generateServerConfig() (ServerConfig, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return ServerConfig{}, fmt.Errorf("generate signing secret: %w", err)
	}
	return ServerConfig{
		Secret:          base64.RawURLEncoding.EncodeToString(raw),
		TokenTTLMinutes: defaultTokenTTLMinutes,
		BcryptCost:      bcrypt.DefaultCost,
	}, nil
}

func writeServerConfig(path string, cfg ServerConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal server config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write temp server config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace server config: %w", err)
	}
	return nil
}
