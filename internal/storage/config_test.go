package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestLoadServerConfigGeneratesOnFirstBoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Secret == "" {
		t.Fatal("expected a generated secret")
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h default TTL, got %v", cfg.TokenTTL())
	}
	if cfg.BcryptCost != bcrypt.DefaultCost {
		t.Fatalf("expected default bcrypt cost, got %d", cfg.BcryptCost)
	}

	// The generated record persists; the next boot signs with the same
	// secret so issued tokens stay valid across restarts.
	reloaded, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Secret != cfg.Secret {
		t.Fatal("expected the persisted secret to survive reload")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions on the secret file, got %v", info.Mode().Perm())
	}
}

func TestLoadServerConfigClampsInvalidTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	content := `{"secret": "abc", "tokenTtlMinutes": -5, "bcryptCost": 99}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected TTL clamped to the default, got %v", cfg.TokenTTL())
	}
	if cfg.BcryptCost != bcrypt.DefaultCost {
		t.Fatalf("expected bcrypt cost clamped to the default, got %d", cfg.BcryptCost)
	}
}

func TestLoadServerConfigRejectsCorruptFile(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not json", `{broken`},
		{"empty secret", `{"secret": "", "tokenTtlMinutes": 60, "bcryptCost": 10}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "server.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadServerConfig(path); !errors.Is(err, ErrCorruptState) {
				t.Fatalf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}
