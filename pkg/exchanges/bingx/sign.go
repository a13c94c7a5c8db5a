package bingx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Canonical joins params as key=value pairs sorted by key, values left unescaped.
// This is the exact string the venue verifies the signature against.
func Canonical(params url.Values) string {
	return join(params, func(s string) string { return s })
}

// Sign returns hex(HMAC-SHA256(secret, payload)).
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeQuery is Canonical with escaped values, for the wire.
func encodeQuery(params url.Values) string {
	return join(params, url.QueryEscape)
}

func join(params url.Values, escape func(string) string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
