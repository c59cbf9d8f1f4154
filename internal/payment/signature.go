package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature rejects notifications that fail the x-signature check.
var ErrInvalidSignature = errors.New("invalid notification signature")

// SignatureVerifier checks the gateway's x-signature header: an HMAC-SHA256
// over "id:<data.id>;request-id:<x-request-id>;ts:<ts>;" keyed with the
// webhook secret. Parts missing from the request are left out of the manifest.
type SignatureVerifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// Enabled reports whether a secret is configured.
func (v SignatureVerifier) Enabled() bool {
	return strings.TrimSpace(v.Secret) != ""
}

// Verify validates r for the notification data id. It is a no-op when no
// secret is configured.
func (v SignatureVerifier) Verify(r *http.Request, dataID string) error {
	if !v.Enabled() {
		return nil
	}
	ts, sig := parseSignatureHeader(r.Header.Get("x-signature"))
	if ts == "" || sig == "" {
		return ErrInvalidSignature
	}
	if v.Tolerance > 0 {
		sent, err := parseSignatureTime(ts)
		if err != nil {
			return ErrInvalidSignature
		}
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		if skew := now().Sub(sent); skew > v.Tolerance || skew < -v.Tolerance {
			return ErrInvalidSignature
		}
	}
	expected := v.Sign(dataID, r.Header.Get("x-request-id"), ts)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex digest for the given manifest parts.
func (v SignatureVerifier) Sign(dataID, requestID, ts string) string {
	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		manifest.WriteString("ts:" + ts + ";")
	}
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(manifest.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

// parseSignatureTime accepts seconds or milliseconds since the epoch.
func parseSignatureTime(ts string) (time.Time, error) {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}
