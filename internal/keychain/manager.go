// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for acctl.
// This module manages all interactions with the OS keychain/credential store,
// which holds the saved session: its state flag and the session cookies.
//
// The package supports macOS Keychain, Windows Credential Manager and the Linux
// secret stores, with an encrypted file store as the last resort on Linux.
package keychain

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/99designs/keyring"

	"acctl/cli/internal/xdg"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "acctl"

// Keys used for storing secrets in the OS keychain.
const (
	KeySessionState   = "session_state"
	KeySessionCookies = "session_cookies"
)

// PasswordEnv holds the passphrase of the file keyring used when no OS
// secret store is available.
const PasswordEnv = "ACCTL_KEYRING_PASSWORD"

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}
	return globalManager, nil
}

// MustGetManager returns the global keychain manager instance.
// Panics if initialization fails. Use only when you're sure initialization will succeed.
func MustGetManager() *Manager {
	manager, err := GetManager()
	if err != nil {
		panic(err)
	}
	return manager
}

// SetManager replaces the global manager. Passing nil resets it.
func SetManager(m *Manager) {
	mu.Lock()
	defer mu.Unlock()
	globalManager = m
	globalError = nil
}

// openRing opens the OS keyring with the platform's native backends.
func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName: ServiceName,
		PassPrefix:  ServiceName,
	}

	switch runtime.GOOS {
	case "darwin":
		cfg.AllowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		cfg.AllowedBackends = []keyring.BackendType{keyring.WinCredBackend}
		cfg.WinCredPrefix = ServiceName
	case "linux":
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
		cfg.LibSecretCollectionName = ServiceName
		cfg.KWalletAppID = ServiceName
		cfg.KWalletFolder = ServiceName
		dir, err := xdg.StateDir()
		if err != nil {
			return nil, err
		}
		cfg.FileDir = filepath.Join(dir, "keyring")
		cfg.FilePasswordFunc = filePassword
	default:
		return nil, errors.New("secure storage not supported on this OS (macOS/Windows/Linux only)")
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. Install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

func (m *Manager) set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: data, Label: ServiceName + " " + key})
}

// get returns nil data when the key is absent.
func (m *Manager) get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return it.Data, nil
}

func (m *Manager) remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// SaveSessionState stores serialized session state in the keychain.
// This method is thread-safe.
func (m *Manager) SaveSessionState(data []byte) error {
	return m.set(KeySessionState, data)
}

// LoadSessionState retrieves serialized session state. Missing state yields nil.
func (m *Manager) LoadSessionState() ([]byte, error) {
	return m.get(KeySessionState)
}

// SaveSessionCookies stores the serialized session cookies.
func (m *Manager) SaveSessionCookies(data []byte) error {
	return m.set(KeySessionCookies, data)
}

// LoadSessionCookies retrieves the serialized session cookies. Missing cookies yield nil.
func (m *Manager) LoadSessionCookies() ([]byte, error) {
	return m.get(KeySessionCookies)
}

// ClearSession removes the saved session.
// This method is thread-safe.
func (m *Manager) ClearSession() error {
	return errors.Join(m.remove(KeySessionState), m.remove(KeySessionCookies))
}
