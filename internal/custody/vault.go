package custody

import (
	"context"
	"fmt"
	"strings"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// Vault encrypts wallet seeds under its active cipher and decrypts
// envelopes produced by any registered cipher. Envelope format is
// "method:version:payload" so dispatch needs no state beyond the string
// itself. Unknown methods and corrupt payloads are hard decryption errors;
// there is deliberately no plaintext passthrough.
type Vault struct {
	active  Cipher
	ciphers map[string]Cipher
}

func NewVault(active Cipher, others ...Cipher) *Vault {
	v := &Vault{
		active:  active,
		ciphers: map[string]Cipher{active.Method(): active},
	}
	for _, c := range others {
		if _, ok := v.ciphers[c.Method()]; !ok {
			v.ciphers[c.Method()] = c
		}
	}
	return v
}

// Method reports the active encryption method tag.
func (v *Vault) Method() string {
	return v.active.Method()
}

// Encrypt seals a raw seed into a self-describing envelope.
func (v *Vault) Encrypt(ctx context.Context, seed []byte) (string, error) {
	payload, err := v.active.Seal(ctx, seed)
	if err != nil {
		return "", fmt.Errorf("seal seed: %w", err)
	}
	return fmt.Sprintf("%s:%s:%s", v.active.Method(), v.active.Version(), encodePayload(payload)), nil
}

// Decrypt opens an envelope, dispatching on its method prefix.
func (v *Vault) Decrypt(ctx context.Context, envelope string) ([]byte, error) {
	method, version, payload, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	cipher, ok := v.ciphers[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", domain.ErrDecryption, method)
	}
	raw, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	return cipher.Open(ctx, version, raw)
}

// Rotate re-encrypts an envelope under the active cipher. The seed, and
// therefore the wallet address, is unchanged; only the envelope moves.
func (v *Vault) Rotate(ctx context.Context, envelope string) (string, error) {
	seed, err := v.Decrypt(ctx, envelope)
	if err != nil {
		return "", err
	}
	return v.Encrypt(ctx, seed)
}

func parseEnvelope(envelope string) (method, version, payload string, err error) {
	parts := strings.SplitN(envelope, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: malformed envelope", domain.ErrDecryption)
	}
	return parts[0], parts[1], parts[2], nil
}
