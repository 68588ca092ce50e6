package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// Version is the only proof payload version gate scanners accept.
const Version = 1

const defaultExpiry = 24 * time.Hour

// codeLen is the length of the human-readable shortcode echoed next to the
// full payload. 32 bits of code space is display-only; verification always
// compares the payload's code byte-for-byte.
const codeLen = 8

// ownerPrefixLen truncates the owner address in the payload to keep QR
// payloads small.
const ownerPrefixLen = 8

// Proof is the stateless artifact a gate device validates without a network
// round trip. Recomputable at any time from the ticket plus the shared
// secret; never persisted independently of its ticket.
type Proof struct {
	Version          int
	TicketID         string
	EventID          string
	OwnerPrefix      string
	VerificationCode string
	EventTimestamp   time.Time
}

// payload is the QR wire format. Single-letter keys match the deployed
// scanner fleet and are not negotiable.
type payload struct {
	V int    `json:"v"`
	T string `json:"t"`
	E string `json:"e"`
	O string `json:"o"`
	C string `json:"c"`
	D int64  `json:"d"`
}

// Codec encodes, decodes and verifies ticket proofs. Verification is keyed
// by a shared secret distributed to gate devices out of band.
type Codec struct {
	secret []byte
	expiry time.Duration
	clock  clock.Clock
}

type Option func(*Codec)

// WithExpiry overrides the default 24h staleness window.
func WithExpiry(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.expiry = d
		}
	}
}

func NewCodec(secret []byte, clk clock.Clock, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		expiry: defaultExpiry,
		clock:  clk,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerificationCode derives the 8-char uppercase hex shortcode for a ticket.
// HMAC-SHA256 keyed by the shared secret over "pda-owner-iso8601".
func (c *Codec) VerificationCode(ticketPDA, owner string, eventDate time.Time) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s-%s-%s", ticketPDA, owner, eventDate.UTC().Format(time.RFC3339))
	sum := hex.EncodeToString(mac.Sum(nil))
	return strings.ToUpper(sum[:codeLen])
}

// Encode builds the proof for a ticket.
func (c *Codec) Encode(ticketPDA, eventID, owner string, eventDate time.Time) Proof {
	prefix := owner
	if len(prefix) > ownerPrefixLen {
		prefix = prefix[:ownerPrefixLen]
	}
	return Proof{
		Version:          Version,
		TicketID:         ticketPDA,
		EventID:          eventID,
		OwnerPrefix:      prefix,
		VerificationCode: c.VerificationCode(ticketPDA, owner, eventDate),
		EventTimestamp:   eventDate.UTC().Truncate(time.Millisecond),
	}
}

// Marshal renders the proof as the QR JSON payload.
func (c *Codec) Marshal(p Proof) ([]byte, error) {
	return json.Marshal(payload{
		V: p.Version,
		T: p.TicketID,
		E: p.EventID,
		O: p.OwnerPrefix,
		C: p.VerificationCode,
		D: p.EventTimestamp.UnixMilli(),
	})
}

// Decode parses a raw QR payload. Any missing required field or unsupported
// version is a hard format error, never a partial parse.
func (c *Codec) Decode(raw []byte) (Proof, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Proof{}, fmt.Errorf("%w: %v", domain.ErrProofFormat, err)
	}
	if p.V == 0 || p.T == "" || p.E == "" || p.C == "" {
		return Proof{}, fmt.Errorf("%w: missing required fields", domain.ErrProofFormat)
	}
	if p.V != Version {
		return Proof{}, fmt.Errorf("%w: unsupported version %d", domain.ErrProofFormat, p.V)
	}
	return Proof{
		Version:          p.V,
		TicketID:         p.T,
		EventID:          p.E,
		OwnerPrefix:      p.O,
		VerificationCode: p.C,
		EventTimestamp:   time.UnixMilli(p.D).UTC(),
	}, nil
}

// VerifyOffline recomputes the code for the claimed ticket fields and
// compares it to the provided one. Pure check, no expiry involved.
func (c *Codec) VerifyOffline(ticketPDA, owner string, eventDate time.Time, providedCode string) bool {
	expected := c.VerificationCode(ticketPDA, owner, eventDate)
	return hmac.Equal([]byte(expected), []byte(providedCode))
}

// Verify validates a decoded proof: byte-for-byte code check against the
// full owner address, then the staleness window. A proof older than the
// window is rejected even when the code is still correct; a gate with no
// network cannot see revocations after generation, so staleness is bounded
// instead.
func (c *Codec) Verify(p Proof, owner string) error {
	if !c.VerifyOffline(p.TicketID, owner, p.EventTimestamp, p.VerificationCode) {
		return fmt.Errorf("%w: verification code mismatch", domain.ErrProofFormat)
	}
	if c.clock.Now().After(p.EventTimestamp.Add(c.expiry)) {
		return domain.ErrProofExpired
	}
	return nil
}
