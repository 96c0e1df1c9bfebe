package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
)

// encryptedPrefix marks a config value sealed by this middleware.
const encryptedPrefix = "enc:v1:"

// DefaultSecretKeys are the node config keys encrypted at rest.
var DefaultSecretKeys = []string{"api_key", "token", "password", "secret", "auth_token"}

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte

	// SecretKeys lists the node config keys to seal. Defaults to DefaultSecretKeys.
	SecretKeys []string
}

type encryptionMiddleware struct {
	next    ports.WorkflowRepository
	config  EncryptionConfig
	secrets map[string]bool
}

// NewEncryptionMiddleware creates a middleware that seals secret node config values
// (API keys, tokens) with AES-GCM before they reach the underlying repository.
// The rest of the workflow stays readable so listing and indexing keep working.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	keys := config.SecretKeys
	if len(keys) == 0 {
		keys = DefaultSecretKeys
	}
	secrets := make(map[string]bool, len(keys))
	for _, k := range keys {
		secrets[strings.ToLower(k)] = true
	}

	return func(next ports.WorkflowRepository) ports.WorkflowRepository {
		return &encryptionMiddleware{
			next:    next,
			config:  config,
			secrets: secrets,
		}
	}, nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	wf, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(wf)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	sealed, err := m.seal(wf)
	if err != nil {
		return nil, err
	}
	stored, err := m.next.Create(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return m.open(stored)
}

func (m *encryptionMiddleware) Replace(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	sealed, err := m.seal(wf)
	if err != nil {
		return nil, err
	}
	stored, err := m.next.Replace(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return m.open(stored)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

// seal returns a copy of wf with secret values encrypted.
func (m *encryptionMiddleware) seal(wf *domain.Workflow) (*domain.Workflow, error) {
	out := wf.Clone()
	for i := range out.Nodes {
		for k, v := range out.Nodes[i].Config {
			if !m.secrets[strings.ToLower(k)] || v == "" || strings.HasPrefix(v, encryptedPrefix) {
				continue
			}
			ciphertext, err := encrypt([]byte(v), m.config.ActiveKey)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt %s of node %s: %w", k, out.Nodes[i].ID, err)
			}
			out.Nodes[i].Config[k] = encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
		}
	}
	return out, nil
}

// open decrypts sealed values in place. Plain values (written before encryption
// was enabled) are returned as they are.
func (m *encryptionMiddleware) open(wf *domain.Workflow) (*domain.Workflow, error) {
	for i := range wf.Nodes {
		for k, v := range wf.Nodes[i].Config {
			if !strings.HasPrefix(v, encryptedPrefix) {
				continue
			}
			ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, encryptedPrefix))
			if err != nil {
				return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
			}
			plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt %s of node %s: %w", k, wf.Nodes[i].ID, err)
			}
			wf.Nodes[i].Config[k] = string(plain)
		}
	}
	return wf, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
