package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net"
	"strconv"
	"strings"
	"time"

	"apibridge/common/errors"
	"apibridge/config"
)

// Rejection codes distinguish why verification failed. IP rejection maps to
// a 403-class response, everything else to 401.
const (
	CodeIPRejected       = "ip_rejected"
	CodeSignatureInvalid = "signature_invalid"
	CodeReplayRejected   = "replay_rejected"
)

// VerifierFunc is a provider-supplied custom verification function. Its
// boolean result is authoritative.
type VerifierFunc func(body []byte, headers map[string]string) bool

// defaultReplayTolerance bounds timestamp skew when a webhook configures a
// timestamp header without an explicit tolerance.
const defaultReplayTolerance = 5 * time.Minute

// Verifier checks inbound request authenticity for one webhook surface.
// A malformed or missing signature is a verification failure, never a fault.
type Verifier struct {
	cfg       *config.WebhookConfig
	custom    VerifierFunc
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier for a webhook configuration. The custom
// function is only consulted for the custom verification type and may be
// nil otherwise.
func NewVerifier(cfg *config.WebhookConfig, custom VerifierFunc) *Verifier {
	tolerance := cfg.ReplayTolerance
	if cfg.TimestampHeader != "" && tolerance <= 0 {
		tolerance = defaultReplayTolerance
	}
	return &Verifier{
		cfg:       cfg,
		custom:    custom,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the IP allow-list, replay window, and signature in that
// order. A nil return means the request is authentic; a non-nil return is a
// verification error whose code names the rejection reason.
func (v *Verifier) Verify(body []byte, headers map[string]string, remoteIP string) error {
	// The allow-list is a precondition: a disallowed source is rejected
	// before any signature work, with its own reason.
	if len(v.cfg.IPAllowlist) > 0 {
		if err := v.checkIP(remoteIP); err != nil {
			return err
		}
	}

	if !v.cfg.VerifySignature {
		return nil
	}

	switch v.cfg.VerificationType {
	case config.VerifyCustom:
		if v.custom == nil {
			return errors.VerificationError("no custom verifier registered").WithCode(CodeSignatureInvalid)
		}
		if !v.custom(body, headers) {
			return errors.VerificationError("custom verification failed").WithCode(CodeSignatureInvalid)
		}
		return nil
	case config.VerifyHMACSHA256, config.VerifyHMACSHA1:
		if err := v.checkReplayWindow(headers); err != nil {
			return err
		}
		return v.checkSignature(body, headers)
	default:
		return errors.VerificationError(fmt.Sprintf("unknown verification type %q", v.cfg.VerificationType)).WithCode(CodeSignatureInvalid)
	}
}

func (v *Verifier) checkIP(remoteIP string) error {
	ip := net.ParseIP(strings.TrimSpace(remoteIP))
	if ip == nil {
		return errors.VerificationError(fmt.Sprintf("unparseable source address %q", remoteIP)).WithCode(CodeIPRejected)
	}

	for _, allowed := range v.cfg.IPAllowlist {
		if strings.Contains(allowed, "/") {
			if _, network, err := net.ParseCIDR(allowed); err == nil && network.Contains(ip) {
				return nil
			}
			continue
		}
		if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(ip) {
			return nil
		}
	}

	return errors.VerificationError("source address is not allow-listed").WithCode(CodeIPRejected)
}

// checkReplayWindow enforces |now - timestamp| <= tolerance when a
// timestamp header is configured. Outside the window the request is
// rejected regardless of signature correctness.
func (v *Verifier) checkReplayWindow(headers map[string]string) error {
	if v.cfg.TimestampHeader == "" {
		return nil
	}

	raw := headerValue(headers, v.cfg.TimestampHeader)
	if raw == "" {
		return errors.VerificationError("missing timestamp header").WithCode(CodeReplayRejected)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.VerificationError("malformed timestamp header").WithCode(CodeReplayRejected)
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return errors.VerificationError("timestamp outside replay tolerance").WithCode(CodeReplayRejected)
	}
	return nil
}

func (v *Verifier) checkSignature(body []byte, headers map[string]string) error {
	provided := headerValue(headers, v.cfg.SignatureHeader)
	if provided == "" {
		return errors.VerificationError("missing signature header").WithCode(CodeSignatureInvalid)
	}

	prefix := v.cfg.SignaturePrefix
	if prefix == "" {
		// Common provider convention, e.g. "sha256=<hex>".
		prefix = v.hashName() + "="
	}
	provided = strings.TrimPrefix(provided, prefix)

	providedMAC, err := v.decodeSignature(provided)
	if err != nil {
		return errors.VerificationError("malformed signature").WithCode(CodeSignatureInvalid)
	}

	if !hmac.Equal(providedMAC, v.computeMAC(body)) {
		return errors.VerificationError("signature mismatch").WithCode(CodeSignatureInvalid)
	}
	return nil
}

// Sign computes the signature for a body in the configured encoding,
// including the prefix. Used for outbound signing and for test payloads.
func (v *Verifier) Sign(body []byte) string {
	mac := v.computeMAC(body)

	var encoded string
	if v.cfg.SignatureEncoding == "base64" {
		encoded = base64.StdEncoding.EncodeToString(mac)
	} else {
		encoded = hex.EncodeToString(mac)
	}

	prefix := v.cfg.SignaturePrefix
	if prefix == "" {
		prefix = v.hashName() + "="
	}
	return prefix + encoded
}

func (v *Verifier) computeMAC(body []byte) []byte {
	var newHash func() hash.Hash
	if v.cfg.VerificationType == config.VerifyHMACSHA1 {
		newHash = sha1.New
	} else {
		newHash = sha256.New
	}

	h := hmac.New(newHash, []byte(v.cfg.Secret))
	h.Write(body)
	return h.Sum(nil)
}

func (v *Verifier) decodeSignature(s string) ([]byte, error) {
	if v.cfg.SignatureEncoding == "base64" {
		return base64.StdEncoding.DecodeString(s)
	}
	return hex.DecodeString(s)
}

func (v *Verifier) hashName() string {
	if v.cfg.VerificationType == config.VerifyHMACSHA1 {
		return "sha1"
	}
	return "sha256"
}

// RejectionCode extracts the rejection reason from a verification error,
// returning empty for other errors
func RejectionCode(err error) string {
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Type != errors.ErrTypeVerification {
		return ""
	}
	return appErr.Code
}
