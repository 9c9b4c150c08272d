package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Identity is the stable authenticated principal a session acts as.
type Identity struct {
	ID   string
	Name string
}

var (
	// ErrUnauthorized covers every authentication failure class. Callers
	// never learn whether the name, the password, or the token was at
	// fault.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNameTaken reports a registration collision.
	ErrNameTaken = errors.New("name already taken")
	// ErrInvalidName reports a name outside the 2-72 character window.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidPassword reports a password outside the 8-72 character
	// window or equal to the name.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrCorruptAccounts marks an accounts file that exists but cannot be
	// parsed; fatal at startup.
	ErrCorruptAccounts = errors.New("corrupt accounts file")
)

const (
	nameMinLen     = 2
	nameMaxLen     = 72
	passwordMinLen = 8
	passwordMaxLen = 72
)

// Account is the persisted record for one registered player.
type Account struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the durable user store: one JSON file, key = account id.
type Store struct {
	path string
	cost int

	mu       sync.Mutex
	accounts map[string]Account
	byName   map[string]string
}

// LoadStore reads the accounts file. Missing file starts empty; a file that
// exists but does not parse is ErrCorruptAccounts.
func LoadStore(path string, bcryptCost int) (*Store, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	store := &Store{
		path:     path,
		cost:     bcryptCost,
		accounts: make(map[string]Account),
		byName:   make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &store.accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w: %v", path, ErrCorruptAccounts, err)
	}
	for id, account := range store.accounts {
		if account.Name == "" {
			return nil, fmt.Errorf("accounts file %s: account %s has no name: %w", path, id, ErrCorruptAccounts)
		}
		store.byName[account.Name] = id
	}
	return store, nil
}

// Create registers a new account and returns its identity.
func (s *Store) Create(name, password string) (Identity, error) {
	if len(name) < nameMinLen || len(name) > nameMaxLen {
		return Identity{}, ErrInvalidName
	}
	if len(password) < passwordMinLen || len(password) > passwordMaxLen || password == name {
		return Identity{}, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[name]; taken {
		return Identity{}, ErrNameTaken
	}

	id, err := newAccountID()
	if err != nil {
		return Identity{}, err
	}
	s.accounts[id] = Account{
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	s.byName[name] = id

	if err := s.saveLocked(); err != nil {
		delete(s.accounts, id)
		delete(s.byName, name)
		return Identity{}, err
	}
	return Identity{ID: id, Name: name}, nil
}

// Authenticate verifies a name/password pair. Unknown name and wrong
// password fail identically.
func (s *Store) Authenticate(name, password string) (Identity, error) {
	s.mu.Lock()
	id, ok := s.byName[name]
	var account Account
	if ok {
		account = s.accounts[id]
	}
	s.mu.Unlock()

	if !ok {
		// Burn comparable time so a missing name is not distinguishable by
		// response latency.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0123456789012345678901uBVk1Cjp4HdYcyYQebtgGTJdrSOTRZS"), []byte(password))
		return Identity{}, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return Identity{}, ErrUnauthorized
	}
	return Identity{ID: id, Name: account.Name}, nil
}

// Lookup resolves an account id to an identity.
func (s *Store) Lookup(id string) (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return Identity{}, false
	}
	return Identity{ID: id, Name: account.Name}, true
}

// Exists reports whether an account id is still registered.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write temp accounts file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	return nil
}

func newAccountID() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate account id: %w", err)
	}
	return "u-" + hex.EncodeToString(raw), nil
}
