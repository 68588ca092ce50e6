package proof

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

var (
	testSecret = []byte("gate-secret")
	eventDate  = time.Date(2025, 6, 20, 19, 30, 0, 0, time.UTC)
)

const (
	ticketPDA = "7Zw1XvW9qkQdLmPb5sYcJ3tNnR2aHgUfKe8Dx4MoVrBs"
	owner     = "9hFgTqW2mLpXcVbNdKsJ7uYaE5rZtQwP3oMnBvCxDiGk"
	eventID   = "event-123"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	c := NewCodec(testSecret, clock.NewFixed(eventDate))

	p := c.Encode(ticketPDA, eventID, owner, eventDate)
	require.Equal(t, Version, p.Version)
	require.Equal(t, owner[:8], p.OwnerPrefix)
	require.Len(t, p.VerificationCode, 8)

	raw, err := c.Marshal(p)
	require.NoError(t, err)

	got, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, p.TicketID, got.TicketID)
	require.Equal(t, p.EventID, got.EventID)
	require.Equal(t, p.OwnerPrefix, got.OwnerPrefix)
	require.Equal(t, p.VerificationCode, got.VerificationCode)
	require.True(t, p.EventTimestamp.Equal(got.EventTimestamp))
}

func TestVerificationCodeDeterministic(t *testing.T) {
	t.Parallel()
	c := NewCodec(testSecret, clock.NewFixed(eventDate))
	a := c.VerificationCode(ticketPDA, owner, eventDate)
	b := c.VerificationCode(ticketPDA, owner, eventDate)
	require.Equal(t, a, b)
	require.Equal(t, strings.ToUpper(a), a, "code must be uppercase hex")
}

func TestVerifyOffline(t *testing.T) {
	t.Parallel()
	c := NewCodec(testSecret, clock.NewFixed(eventDate))
	code := c.VerificationCode(ticketPDA, owner, eventDate)

	require.True(t, c.VerifyOffline(ticketPDA, owner, eventDate, code))

	t.Run("wrong secret fails", func(t *testing.T) {
		other := NewCodec([]byte("other-secret"), clock.NewFixed(eventDate))
		require.False(t, other.VerifyOffline(ticketPDA, owner, eventDate, code))
	})

	t.Run("any field mutation fails", func(t *testing.T) {
		require.False(t, c.VerifyOffline("X"+ticketPDA[1:], owner, eventDate, code))
		require.False(t, c.VerifyOffline(ticketPDA, "X"+owner[1:], eventDate, code))
		require.False(t, c.VerifyOffline(ticketPDA, owner, eventDate.Add(time.Second), code))
		mutated := "0" + code[1:]
		if mutated == code {
			mutated = "1" + code[1:]
		}
		require.False(t, c.VerifyOffline(ticketPDA, owner, eventDate, mutated))
	})
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	t.Parallel()
	c := NewCodec(testSecret, clock.NewFixed(eventDate))

	cases := map[string]string{
		"not json":        `{{`,
		"missing version": `{"t":"pda","e":"ev","c":"ABCD1234","d":1}`,
		"missing ticket":  `{"v":1,"e":"ev","c":"ABCD1234","d":1}`,
		"missing event":   `{"v":1,"t":"pda","c":"ABCD1234","d":1}`,
		"missing code":    `{"v":1,"t":"pda","e":"ev","d":1}`,
		"bad version":     `{"v":2,"t":"pda","e":"ev","c":"ABCD1234","d":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode([]byte(raw))
			require.ErrorIs(t, err, domain.ErrProofFormat)
		})
	}
}

func TestVerifyExpiry(t *testing.T) {
	t.Parallel()

	gen := NewCodec(testSecret, clock.NewFixed(eventDate))
	p := gen.Encode(ticketPDA, eventID, owner, eventDate)

	t.Run("fresh proof accepted", func(t *testing.T) {
		gate := NewCodec(testSecret, clock.NewFixed(eventDate.Add(23*time.Hour)))
		require.NoError(t, gate.Verify(p, owner))
	})

	t.Run("expired even when code still correct", func(t *testing.T) {
		gate := NewCodec(testSecret, clock.NewFixed(eventDate.Add(25*time.Hour)))
		require.True(t, gate.VerifyOffline(p.TicketID, owner, p.EventTimestamp, p.VerificationCode))
		require.ErrorIs(t, gate.Verify(p, owner), domain.ErrProofExpired)
	})

	t.Run("custom window", func(t *testing.T) {
		gate := NewCodec(testSecret, clock.NewFixed(eventDate.Add(2*time.Hour)), WithExpiry(time.Hour))
		require.ErrorIs(t, gate.Verify(p, owner), domain.ErrProofExpired)
	})

	t.Run("tampered owner rejected before expiry check", func(t *testing.T) {
		gate := NewCodec(testSecret, clock.NewFixed(eventDate))
		err := gate.Verify(p, "someone-else")
		require.ErrorIs(t, err, domain.ErrProofFormat)
	})
}
