package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	SignatureParam     = "secureHash"
	SignatureTypeParam = "secureHashType"
)

// signingString joins every non-empty parameter except the signature
// fields as k=v pairs sorted by key, values query-escaped.
func signingString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == SignatureParam || k == SignatureTypeParam {
			continue
		}
		if values.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values.Get(k)))
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA512 of values under secret.
func Sign(values url.Values, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(signingString(values)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyReturn checks the provider signature carried in the return URL
// query. Only a verified outcome code may end an attempt early.
func VerifyReturn(values url.Values, secret string) error {
	got := values.Get(SignatureParam)
	if got == "" || secret == "" {
		return ErrMissingSignature
	}
	want := Sign(values, secret)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}
