package custody

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// Cipher seals and opens wallet seed material under one method tag. The
// method/version pair ends up in the envelope prefix so Decrypt can dispatch
// without any external state.
type Cipher interface {
	Method() string
	Version() string
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, version string, payload []byte) ([]byte, error)
}

const (
	MethodLocal = "local"
	MethodKMS   = "kms"
)

// LocalCipher is the symmetric fallback when no managed KMS is configured:
// ChaCha20-Poly1305 with a random nonce prefixed to the ciphertext.
type LocalCipher struct {
	key []byte
}

const localVersion = "1"

func NewLocalCipher(key []byte) (*LocalCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("local cipher key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &LocalCipher{key: key}, nil
}

func (c *LocalCipher) Method() string  { return MethodLocal }
func (c *LocalCipher) Version() string { return localVersion }

func (c *LocalCipher) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *LocalCipher) Open(_ context.Context, version string, payload []byte) ([]byte, error) {
	if version != localVersion {
		return nil, fmt.Errorf("%w: unsupported local cipher version %q", domain.ErrDecryption, version)
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(payload) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: payload shorter than nonce", domain.ErrDecryption)
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return plaintext, nil
}

// KMSClient is the managed key-management collaborator. The payload stored
// in the envelope is whatever opaque blob the service returns.
type KMSClient interface {
	Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, keyID string, blob []byte) ([]byte, error)
}

// KMSCipher delegates seed encryption to an external KMS. The envelope
// version carries the key id so rotation to a new key keeps old envelopes
// decryptable.
type KMSCipher struct {
	client KMSClient
	keyID  string
}

func NewKMSCipher(client KMSClient, keyID string) *KMSCipher {
	return &KMSCipher{client: client, keyID: keyID}
}

func (c *KMSCipher) Method() string  { return MethodKMS }
func (c *KMSCipher) Version() string { return c.keyID }

func (c *KMSCipher) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	blob, err := c.client.Encrypt(ctx, c.keyID, plaintext)
	if err != nil {
		return nil, fmt.Errorf("kms encrypt: %w", err)
	}
	return blob, nil
}

func (c *KMSCipher) Open(ctx context.Context, version string, payload []byte) ([]byte, error) {
	plaintext, err := c.client.Decrypt(ctx, version, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: kms: %v", domain.ErrDecryption, err)
	}
	return plaintext, nil
}

func encodePayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func decodePayload(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: payload not base64", domain.ErrDecryption)
	}
	return raw, nil
}
