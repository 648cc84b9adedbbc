// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores the secrets querydesk needs between runs, the
// database DSN and the model API key, in the OS credential store.
//
// On macOS the `security` command is preferred; everywhere else the
// 99designs/keyring library picks a native backend. Nothing is ever written
// to a plain file.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("secret not found in keychain")

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "querydesk"

// Keys used for storing secrets in the OS keychain.
const (
	KeyDBDSN  = "db_dsn"
	KeyAPIKey = "model_api_key"
)

// store is the minimal secret store a Manager needs.
type store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Manager provides thread-safe access to stored secrets.
type Manager struct {
	mu    sync.RWMutex
	store store
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if backend, err := newSecurityBackend(); err == nil {
			return &Manager{store: backend}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithRing(ring), nil
}

// NewWithRing wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{store: ringStore{ring: ring}}
}

// GetManager returns the process-wide manager, creating it on first success.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return globalManager, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on this OS")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Set(key, value)
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.store.Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Manager) remove(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		_ = m.store.Delete(k)
	}
}

// SaveDBDSN stores the database DSN.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN retrieves the database DSN.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// ClearDB removes the stored DSN.
func (m *Manager) ClearDB() { m.remove(KeyDBDSN) }

// SaveAPIKey stores the model API key.
func (m *Manager) SaveAPIKey(key string) error { return m.set(KeyAPIKey, key) }

// LoadAPIKey retrieves the model API key.
func (m *Manager) LoadAPIKey() (string, error) { return m.get(KeyAPIKey) }

// ClearAPIKey removes the stored API key.
func (m *Manager) ClearAPIKey() { m.remove(KeyAPIKey) }

// ClearAll removes every querydesk secret.
func (m *Manager) ClearAll() { m.remove(KeyDBDSN, KeyAPIKey) }

// ringStore adapts keyring.Keyring to store.
type ringStore struct {
	ring keyring.Keyring
}

func (r ringStore) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value)})
}

func (r ringStore) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringStore) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
