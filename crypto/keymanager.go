package crypto

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// KeyManager owns the local key pair and generates it in the background on
// first use. A failed generation is reported to its waiters and retried by
// the next GenerateAsync or AwaitKeys. It is safe for concurrent use.
type KeyManager struct {
	mu      sync.RWMutex
	keys    *KeyPair
	running *generation

	generate func() (*KeyPair, error)
}

// generation is one background key generation run.
type generation struct {
	done chan struct{}
	err  error
}

// NewKeyManager creates a manager with no key material.
func NewKeyManager() *KeyManager {
	return &KeyManager{
		generate: GenerateKeyPair,
	}
}

// LoadPrivateKey installs key material from a hex-encoded private key.
// Loading before any generation started makes GenerateAsync a no-op.
func (m *KeyManager) LoadPrivateKey(secretHex string) error {
	keys, err := FromHex(secretHex)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "KeyManager.LoadPrivateKey",
			"error":    err.Error(),
		}).Error("Failed to load private key")
		return err
	}

	m.mu.Lock()
	m.keys = keys
	m.mu.Unlock()
	return nil
}

// HasKeys reports whether key material is available.
func (m *KeyManager) HasKeys() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keys != nil
}

// GenerateAsync starts key generation unless keys exist or a generation is
// already running.
func (m *KeyManager) GenerateAsync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked()
}

// startLocked returns the running generation, starting one if needed. It
// returns nil when keys already exist.
func (m *KeyManager) startLocked() *generation {
	if m.keys != nil {
		return nil
	}
	if m.running != nil {
		return m.running
	}

	logrus.WithFields(logrus.Fields{
		"function": "KeyManager.GenerateAsync",
	}).Info("Generating local key pair")

	g := &generation{done: make(chan struct{})}
	m.running = g
	go func() {
		keys, err := m.generate()

		m.mu.Lock()
		if err == nil && m.keys == nil {
			m.keys = keys
		}
		g.err = err
		m.running = nil
		m.mu.Unlock()

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "KeyManager.GenerateAsync",
				"error":    err.Error(),
			}).Error("Key generation failed")
		}
		close(g.done)
	}()
	return g
}

// AwaitKeys blocks until key material exists, starting generation if needed.
// It must not be called from a goroutine that cannot block.
func (m *KeyManager) AwaitKeys(ctx context.Context) error {
	m.mu.Lock()
	g := m.startLocked()
	m.mu.Unlock()
	if g == nil {
		return nil
	}

	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.HasKeys() {
		return nil
	}
	return g.err
}

// PublicKey returns a copy of the public key, or nil without key material.
func (m *KeyManager) PublicKey() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.keys == nil {
		return nil
	}
	return append([]byte(nil), m.keys.Public[:]...)
}

// KeyPair returns the current key pair, or nil without key material.
func (m *KeyManager) KeyPair() *KeyPair {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.keys == nil {
		return nil
	}
	keys := *m.keys
	return &keys
}
