package webhook_test

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstone-edu/webhooks/pkg/webhook"
)

func TestSign_Deterministic(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"event": "essay.submitted", "id": "evt_123"}
	ts := time.Now().Unix()

	first, err := webhook.Sign(payload, "whsec_secret", ts)
	require.NoError(t, err)
	second, err := webhook.Sign(payload, "whsec_secret", ts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "v1="))
}

func TestSign_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := webhook.Sign(map[string]string{"a": "b"}, "", time.Now().Unix())
	assert.ErrorIs(t, err, webhook.ErrSecretRequired)
}

func TestVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"event":     "grading.completed",
		"webhookId": "evt_456",
		"data":      map[string]any{"essay_id": "es_1", "score": 87},
	}
	secret := "whsec_0123456789abcdef"
	ts := time.Now().Unix()

	sig, err := webhook.Sign(payload, secret, ts)
	require.NoError(t, err)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	assert.NoError(t, webhook.Verify(body, sig, strconv.FormatInt(ts, 10), secret))
}

func TestVerify_Tampered(t *testing.T) {
	t.Parallel()

	payload := map[string]string{"event": "user.created"}
	secret := "whsec_secret"
	ts := time.Now().Unix()
	tsHeader := strconv.FormatInt(ts, 10)

	sig, err := webhook.Sign(payload, secret, ts)
	require.NoError(t, err)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	t.Run("altered body", func(t *testing.T) {
		t.Parallel()
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-2] = 'X'
		assert.ErrorIs(t, webhook.Verify(tampered, sig, tsHeader, secret), webhook.ErrSignatureMismatch)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, webhook.Verify(body, sig, tsHeader, "whsec_other"), webhook.ErrSignatureMismatch)
	})

	t.Run("shifted timestamp", func(t *testing.T) {
		t.Parallel()
		shifted := strconv.FormatInt(ts-10, 10)
		assert.ErrorIs(t, webhook.Verify(body, sig, shifted, secret), webhook.ErrSignatureMismatch)
	})
}

func TestVerify_ReplayWindow(t *testing.T) {
	t.Parallel()

	payload := map[string]string{"event": "quiz.completed"}
	secret := "whsec_secret"
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"just inside past", -299 * time.Second, true},
		{"just inside future", 299 * time.Second, true},
		{"too far in the past", -301 * time.Second, false},
		{"too far in the future", 301 * time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := time.Now().Add(tc.offset).Unix()
			sig, err := webhook.Sign(payload, secret, ts)
			require.NoError(t, err)

			err = webhook.Verify(body, sig, strconv.FormatInt(ts, 10), secret)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, webhook.ErrTimestampOutOfRange)
			}
		})
	}
}

func TestVerify_MalformedInput(t *testing.T) {
	t.Parallel()

	secret := "whsec_secret"
	body := []byte(`{"event":"user.deleted"}`)
	tsHeader := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("unparseable timestamp", func(t *testing.T) {
		t.Parallel()
		err := webhook.Verify(body, "v1=deadbeef", "not-a-number", secret)
		assert.ErrorIs(t, err, webhook.ErrInvalidTimestamp)
	})

	t.Run("missing version tag", func(t *testing.T) {
		t.Parallel()
		err := webhook.Verify(body, "deadbeef", tsHeader, secret)
		assert.ErrorIs(t, err, webhook.ErrUnknownSignatureVersion)
	})

	// A truncated signature and a signature differing in its last byte must
	// be indistinguishable by error type.
	t.Run("wrong length vs wrong content", func(t *testing.T) {
		t.Parallel()

		sig, err := webhook.Sign(map[string]string{"event": "user.deleted"}, secret, time.Now().Unix())
		require.NoError(t, err)

		truncated := sig[:len(sig)-8]
		lastByteFlipped := sig[:len(sig)-1] + "0"
		if strings.HasSuffix(sig, "0") {
			lastByteFlipped = sig[:len(sig)-1] + "1"
		}

		assert.ErrorIs(t, webhook.Verify(body, truncated, tsHeader, secret), webhook.ErrSignatureMismatch)
		assert.ErrorIs(t, webhook.Verify(body, lastByteFlipped, tsHeader, secret), webhook.ErrSignatureMismatch)
	})
}
