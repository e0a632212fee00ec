// Package keystore persists the agent's four key pairs and DID as a
// single JSON file under a per-user config directory, loading keys on
// demand rather than keeping them resident.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/miax-network/miax-agent/internal/keyring"
)

const schemaVersion = 1

// fileConfig is the on-disk shape of config.json.
type fileConfig struct {
	Did           string      `json:"did"`
	KeyPairs      keyring.Hex `json:"key_pairs"`
	IsInitialized bool        `json:"is_initialized"`
	SchemaVersion int         `json:"schema_version"`
}

// Store reads and writes the per-user config.json.
type Store struct {
	path string
}

// DefaultPath returns the config.json path under the user's config
// directory (e.g. $XDG_CONFIG_HOME/miax-agent/config.json).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "miax-agent", "config.json"), nil
}

// NewStore builds a Store for the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// ensureExists implements touch-on-miss: creates the parent directory
// and an empty-object file if the config file does not exist yet.
func (s *Store) ensureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte("{}"), 0o600); err != nil {
		return fmt.Errorf("touch config file: %w", err)
	}
	return nil
}

func (s *Store) load() (*fileConfig, error) {
	if err := s.ensureExists(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &fileConfig{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	return cfg, nil
}

func (s *Store) save(cfg *fileConfig) error {
	cfg.SchemaVersion = schemaVersion
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Did returns the stored DID, or "" if none has been written yet.
func (s *Store) Did() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	return cfg.Did, nil
}

// IsInitialized reports whether a full key ring has been written.
func (s *Store) IsInitialized() (bool, error) {
	cfg, err := s.load()
	if err != nil {
		return false, err
	}
	return cfg.IsInitialized, nil
}

// ReadSign returns the stored signing key pair, or nil if not yet written.
func (s *Store) ReadSign() (*keyring.Secp256k1Pair, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	if cfg.KeyPairs.Sign == "" {
		return nil, nil
	}
	return keyring.Secp256k1PairFromHex(cfg.KeyPairs.Sign)
}

// ReadUpdate returns the stored update key pair, or nil if not yet written.
func (s *Store) ReadUpdate() (*keyring.Secp256k1Pair, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	if cfg.KeyPairs.Update == "" {
		return nil, nil
	}
	return keyring.Secp256k1PairFromHex(cfg.KeyPairs.Update)
}

// ReadRecovery returns the stored recovery key pair, or nil if not yet written.
func (s *Store) ReadRecovery() (*keyring.Secp256k1Pair, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	if cfg.KeyPairs.Recovery == "" {
		return nil, nil
	}
	return keyring.Secp256k1PairFromHex(cfg.KeyPairs.Recovery)
}

// ReadEncrypt returns the stored encryption key pair, or nil if not yet written.
func (s *Store) ReadEncrypt() (*keyring.X25519Pair, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	if cfg.KeyPairs.Encrypt == "" {
		return nil, nil
	}
	return keyring.X25519PairFromHex(cfg.KeyPairs.Encrypt)
}

// ReadKeyRing assembles the stored key ring, or nil if the store has not
// been initialized yet.
func (s *Store) ReadKeyRing() (*keyring.KeyRing, error) {
	initialized, err := s.IsInitialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		return nil, nil
	}

	sign, err := s.ReadSign()
	if err != nil {
		return nil, err
	}
	update, err := s.ReadUpdate()
	if err != nil {
		return nil, err
	}
	recovery, err := s.ReadRecovery()
	if err != nil {
		return nil, err
	}
	encrypt, err := s.ReadEncrypt()
	if err != nil {
		return nil, err
	}
	return &keyring.KeyRing{Sign: sign, Update: update, Recovery: recovery, Encrypt: encrypt}, nil
}

// EnsureKeyRing returns the stored key ring, generating and persisting a
// fresh one on first use.
func (s *Store) EnsureKeyRing() (*keyring.KeyRing, error) {
	kr, err := s.ReadKeyRing()
	if err != nil {
		return nil, err
	}
	if kr != nil {
		return kr, nil
	}

	kr, err = keyring.New()
	if err != nil {
		return nil, fmt.Errorf("generate key ring: %w", err)
	}
	if err := s.WriteKeyRing("", kr); err != nil {
		return nil, fmt.Errorf("persist key ring: %w", err)
	}
	return kr, nil
}

// WriteKeyRing persists every key pair in kr plus did, marking the store
// initialized.
func (s *Store) WriteKeyRing(did string, kr *keyring.KeyRing) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.Did = did
	cfg.KeyPairs = kr.ToHex()
	cfg.IsInitialized = true
	return s.save(cfg)
}

// WriteDid persists only the did field, leaving key pairs untouched.
func (s *Store) WriteDid(did string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.Did = did
	return s.save(cfg)
}
