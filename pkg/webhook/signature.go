package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureVersion is the version tag prefixed to every signature.
// Bumping it is a breaking protocol change for all receivers.
const SignatureVersion = "v1"

// ReplayWindow is the maximum allowed clock difference between the signing
// timestamp and the verifier's clock, in either direction.
const ReplayWindow = 5 * time.Minute

// Sign computes the signature for payload at the given Unix timestamp
// (seconds). The payload is serialized to its canonical JSON form, the
// signature base is "{timestamp}.{json}", and the result is
// "v1=" + hex(HMAC-SHA256(secret, base)). Deterministic for identical inputs.
func Sign(payload any, secret string, timestamp int64) (string, error) {
	if secret == "" {
		return "", ErrSecretRequired
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return signRaw(secret, timestamp, body), nil
}

// SignNow signs payload with the current Unix time and returns both the
// timestamp and the signature, ready to be placed into the
// X-Webhook-Timestamp and X-Webhook-Signature headers.
func SignNow(payload any, secret string) (timestamp int64, signature string, err error) {
	timestamp = time.Now().Unix()
	signature, err = Sign(payload, secret, timestamp)
	return timestamp, signature, err
}

// signRaw signs already-serialized body bytes. The delivery client uses this
// so the signed bytes are exactly the bytes sent on the wire.
func signRaw(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, body)
	return SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received webhook against its signature and timestamp
// headers. rawBody must be the exact request body bytes. A failed
// verification is reported as an error value; Verify never panics on
// malformed input.
//
// Rejections, in order: unparseable timestamp, timestamp more than
// ReplayWindow away from now (in either direction, tolerating clock skew both
// ways), missing "v1=" version tag, and finally a constant-time comparison of
// the recomputed signature. Signatures of the wrong length and signatures
// differing in content both report ErrSignatureMismatch.
func Verify(rawBody []byte, signatureHeader, timestampHeader, secret string) error {
	if secret == "" {
		return ErrSecretRequired
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestampHeader)
	}

	skew := time.Since(time.Unix(timestamp, 0))
	if skew > ReplayWindow || skew < -ReplayWindow {
		return fmt.Errorf("%w: %s", ErrTimestampOutOfRange, skew.Truncate(time.Second))
	}

	if !strings.HasPrefix(signatureHeader, SignatureVersion+"=") {
		return fmt.Errorf("%w: expected %q prefix", ErrUnknownSignatureVersion, SignatureVersion+"=")
	}

	expected := signRaw(secret, timestamp, rawBody)
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return ErrSignatureMismatch
	}

	return nil
}
