package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibridge/config"
)

func hmacConfig() *config.WebhookConfig {
	return &config.WebhookConfig{
		Path:             "/webhooks/github",
		VerifySignature:  true,
		VerificationType: config.VerifyHMACSHA256,
		Secret:           "whsec_test",
		SignatureHeader:  "X-Hub-Signature-256",
		SignaturePrefix:  "sha256=",
	}
}

func signSHA256(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func TestVerifyRoundTrip(t *testing.T) {
	cfg := hmacConfig()
	v := NewVerifier(cfg, nil)
	body := []byte(`{"action":"opened"}`)

	// Signing and verifying with the same secret succeeds.
	headers := map[string]string{"X-Hub-Signature-256": v.Sign(body)}
	assert.NoError(t, v.Verify(body, headers, ""))

	// An externally computed signature verifies too.
	headers = map[string]string{"X-Hub-Signature-256": signSHA256("whsec_test", body)}
	assert.NoError(t, v.Verify(body, headers, ""))
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewVerifier(hmacConfig(), nil)
	body := []byte(`{"action":"opened"}`)

	headers := map[string]string{"X-Hub-Signature-256": signSHA256("other-secret", body)}
	err := v.Verify(body, headers, "")
	require.Error(t, err)
	assert.Equal(t, CodeSignatureInvalid, RejectionCode(err))
}

func TestVerifyMutatedBody(t *testing.T) {
	v := NewVerifier(hmacConfig(), nil)
	body := []byte(`{"action":"opened"}`)

	headers := map[string]string{"X-Hub-Signature-256": signSHA256("whsec_test", body)}
	err := v.Verify([]byte(`{"action":"closed"}`), headers, "")
	require.Error(t, err)
	assert.Equal(t, CodeSignatureInvalid, RejectionCode(err))
}

func TestVerifyMissingOrMalformedSignature(t *testing.T) {
	v := NewVerifier(hmacConfig(), nil)
	body := []byte(`{}`)

	err := v.Verify(body, map[string]string{}, "")
	require.Error(t, err)
	assert.Equal(t, CodeSignatureInvalid, RejectionCode(err))

	err = v.Verify(body, map[string]string{"X-Hub-Signature-256": "sha256=zzzz-not-hex"}, "")
	require.Error(t, err)
	assert.Equal(t, CodeSignatureInvalid, RejectionCode(err))
}

func TestVerifyCaseInsensitiveHeader(t *testing.T) {
	v := NewVerifier(hmacConfig(), nil)
	body := []byte(`{}`)

	headers := map[string]string{"x-hub-signature-256": signSHA256("whsec_test", body)}
	assert.NoError(t, v.Verify(body, headers, ""))
}

func TestVerifyBase64Encoding(t *testing.T) {
	cfg := hmacConfig()
	cfg.SignatureEncoding = "base64"
	cfg.SignaturePrefix = "v1="
	v := NewVerifier(cfg, nil)
	body := []byte(`{"id":"evt_1"}`)

	h := hmac.New(sha256.New, []byte("whsec_test"))
	h.Write(body)
	headers := map[string]string{"X-Hub-Signature-256": "v1=" + base64.StdEncoding.EncodeToString(h.Sum(nil))}
	assert.NoError(t, v.Verify(body, headers, ""))
}

func TestVerifySHA1(t *testing.T) {
	cfg := hmacConfig()
	cfg.VerificationType = config.VerifyHMACSHA1
	cfg.SignatureHeader = "X-Hub-Signature"
	cfg.SignaturePrefix = ""
	v := NewVerifier(cfg, nil)
	body := []byte(`{"zen":"Design for failure."}`)

	headers := map[string]string{"X-Hub-Signature": v.Sign(body)}
	assert.NoError(t, v.Verify(body, headers, ""))
	// The default prefix follows the hash name.
	assert.Contains(t, v.Sign(body), "sha1=")
}

func TestVerifyReplayWindow(t *testing.T) {
	cfg := hmacConfig()
	cfg.TimestampHeader = "X-Timestamp"
	cfg.ReplayTolerance = 5 * time.Minute
	v := NewVerifier(cfg, nil)
	body := []byte(`{}`)
	sig := signSHA256("whsec_test", body)

	t.Run("inside window", func(t *testing.T) {
		headers := map[string]string{
			"X-Hub-Signature-256": sig,
			"X-Timestamp":         strconv.FormatInt(time.Now().Unix(), 10),
		}
		assert.NoError(t, v.Verify(body, headers, ""))
	})

	t.Run("outside window fails despite correct signature", func(t *testing.T) {
		headers := map[string]string{
			"X-Hub-Signature-256": sig,
			"X-Timestamp":         strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10),
		}
		err := v.Verify(body, headers, "")
		require.Error(t, err)
		assert.Equal(t, CodeReplayRejected, RejectionCode(err))
	})

	t.Run("future timestamps are bounded too", func(t *testing.T) {
		headers := map[string]string{
			"X-Hub-Signature-256": sig,
			"X-Timestamp":         strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10),
		}
		err := v.Verify(body, headers, "")
		require.Error(t, err)
		assert.Equal(t, CodeReplayRejected, RejectionCode(err))
	})

	t.Run("missing timestamp header", func(t *testing.T) {
		headers := map[string]string{"X-Hub-Signature-256": sig}
		err := v.Verify(body, headers, "")
		require.Error(t, err)
		assert.Equal(t, CodeReplayRejected, RejectionCode(err))
	})
}

func TestVerifyReplayDefaultTolerance(t *testing.T) {
	// A timestamp header without an explicit tolerance still bounds skew,
	// at the five minute default.
	cfg := hmacConfig()
	cfg.TimestampHeader = "X-Timestamp"
	v := NewVerifier(cfg, nil)
	body := []byte(`{}`)
	sig := signSHA256("whsec_test", body)

	headers := map[string]string{
		"X-Hub-Signature-256": sig,
		"X-Timestamp":         strconv.FormatInt(time.Now().Add(-240*time.Hour).Unix(), 10),
	}
	err := v.Verify(body, headers, "")
	require.Error(t, err)
	assert.Equal(t, CodeReplayRejected, RejectionCode(err))

	headers["X-Timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)
	assert.NoError(t, v.Verify(body, headers, ""))
}

func TestVerifyIPAllowlist(t *testing.T) {
	cfg := hmacConfig()
	cfg.IPAllowlist = []string{"192.0.2.10", "198.51.100.0/24"}
	v := NewVerifier(cfg, nil)
	body := []byte(`{}`)
	headers := map[string]string{"X-Hub-Signature-256": signSHA256("whsec_test", body)}

	assert.NoError(t, v.Verify(body, headers, "192.0.2.10"))
	assert.NoError(t, v.Verify(body, headers, "198.51.100.77"))

	// A disallowed source is rejected before any signature work, with its
	// own reason.
	err := v.Verify(body, headers, "203.0.113.1")
	require.Error(t, err)
	assert.Equal(t, CodeIPRejected, RejectionCode(err))

	err = v.Verify(body, headers, "not-an-ip")
	require.Error(t, err)
	assert.Equal(t, CodeIPRejected, RejectionCode(err))
}

func TestVerifyOptOut(t *testing.T) {
	cfg := &config.WebhookConfig{Path: "/webhooks/internal"}
	v := NewVerifier(cfg, nil)

	// Verification disabled is trivially true, whatever the headers say.
	assert.NoError(t, v.Verify([]byte(`{}`), map[string]string{}, ""))
}

func TestVerifyCustom(t *testing.T) {
	cfg := &config.WebhookConfig{
		Path:             "/webhooks/custom",
		VerifySignature:  true,
		VerificationType: config.VerifyCustom,
	}

	t.Run("authoritative true", func(t *testing.T) {
		v := NewVerifier(cfg, func(body []byte, headers map[string]string) bool {
			return headers["X-Magic"] == "yes"
		})
		assert.NoError(t, v.Verify(nil, map[string]string{"X-Magic": "yes"}, ""))
	})

	t.Run("authoritative false", func(t *testing.T) {
		v := NewVerifier(cfg, func([]byte, map[string]string) bool { return false })
		err := v.Verify(nil, map[string]string{}, "")
		require.Error(t, err)
	})

	t.Run("missing function", func(t *testing.T) {
		v := NewVerifier(cfg, nil)
		assert.Error(t, v.Verify(nil, map[string]string{}, ""))
	})
}
