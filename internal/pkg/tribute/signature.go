package tribute

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureEncoding selects how the trbt-signature header encodes the
// HMAC-SHA256 digest.
type SignatureEncoding string

const (
	EncodingHex    SignatureEncoding = "hex"
	EncodingBase64 SignatureEncoding = "base64"
)

// VerifySignature checks the trbt-signature header against an HMAC-SHA256
// digest of the exact raw body bytes. An absent/empty header or an encoded
// length mismatch yields false, not an error; a missing secret is a caller
// setup problem and fails with ErrConfiguration. The comparison is constant
// time.
func VerifySignature(body []byte, signatureHeader, secret string, encoding SignatureEncoding) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, fmt.Errorf("%w: missing webhook secret key", ErrConfiguration)
	}
	if encoding == "" {
		encoding = EncodingHex
	}

	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := mac.Sum(nil)

	var expected string
	switch encoding {
	case EncodingHex:
		expected = hex.EncodeToString(digest)
		sig = strings.ToLower(sig)
	case EncodingBase64:
		expected = base64.StdEncoding.EncodeToString(digest)
	default:
		return false, fmt.Errorf("%w: unknown signature encoding %q", ErrConfiguration, encoding)
	}

	if len(sig) != len(expected) {
		return false, nil
	}
	return hmac.Equal([]byte(sig), []byte(expected)), nil
}
