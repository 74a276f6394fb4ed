// Package sigv4 implements AWS Signature Version 4 request signing using
// only the standard library, so signatures can be validated against fixed
// vectors without any network or SDK dependency.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	timeFormat      = "20060102T150405Z"
	shortTimeFormat = "20060102"
	terminator      = "aws4_request"
)

// Credentials are the temporary credentials used to sign one request.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SigningError reports malformed signer input. It indicates a programming
// error in the caller, not a transient condition, and must never be retried.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string {
	return "sigv4: " + e.Reason
}

// Signer produces SigV4 header sets for one region/service pair.
//
// Sign is a pure function of its inputs: no I/O, no mutable state. Given
// identical inputs, including the signing time, it returns byte-identical
// output. Safe for concurrent use.
type Signer struct {
	region  string
	service string
}

// New creates a signer for the given region and service name.
func New(region, service string) *Signer {
	return &Signer{region: region, service: service}
}

// Sign computes the complete signed header set for a request: the caller's
// headers plus host, x-amz-date, x-amz-security-token (when the credentials
// carry a session token) and the authorization header. Header keys in the
// returned map are lowercase. The query string is taken from u.
func (s *Signer) Sign(method string, u *url.URL, headers map[string]string, payload []byte, creds Credentials, signingTime time.Time) (map[string]string, error) {
	switch {
	case method == "":
		return nil, &SigningError{Reason: "empty HTTP method"}
	case u == nil || u.Host == "":
		return nil, &SigningError{Reason: "request URL missing host"}
	case creds.AccessKeyID == "" || creds.SecretAccessKey == "":
		return nil, &SigningError{Reason: "incomplete signing credentials"}
	}

	t := signingTime.UTC()

	signed := make(map[string]string, len(headers)+4)
	for k, v := range headers {
		if strings.ContainsAny(k, "\r\n") || strings.ContainsAny(v, "\r\n") {
			return nil, &SigningError{Reason: fmt.Sprintf("header %q contains line breaks", strings.ToLower(strings.TrimSpace(k)))}
		}
		signed[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	signed["host"] = u.Host
	signed["x-amz-date"] = t.Format(timeFormat)
	if creds.SessionToken != "" {
		signed["x-amz-security-token"] = creds.SessionToken
	}

	canonicalHeaders, signedHeaderList := canonicalHeaders(signed)

	// Canonical request: method, encoded path, sorted encoded query, sorted
	// lowercased headers, signed-header list, hex SHA-256 of the payload.
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		canonicalPath(u),
		canonicalQuery(u.Query()),
		canonicalHeaders,
		signedHeaderList,
		hashHex(payload),
	}, "\n")

	scope := strings.Join([]string{t.Format(shortTimeFormat), s.region, s.service, terminator}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		t.Format(timeFormat),
		scope,
		hashHex([]byte(canonical)),
	}, "\n")

	key := signingKey(creds.SecretAccessKey, t.Format(shortTimeFormat), s.region, s.service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	signed["authorization"] = fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKeyID, scope, signedHeaderList, signature)

	return signed, nil
}

// signingKey derives the per-date signing key: a four-level HMAC-SHA256
// chain seeded by the secret key and mixed with date, region, service and
// the fixed terminator.
func signingKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(terminator))
}

// canonicalPath URI-encodes each path segment while preserving separators.
func canonicalPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	segments := strings.Split(u.Path, "/")
	for i, segment := range segments {
		segments[i] = uriEncode(segment)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery sorts parameters lexicographically by key, then by value
// within a key, and URI-encodes both.
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// canonicalHeaders renders headers as sorted "key:value\n" lines and the
// semicolon-joined signed-header list. Keys in the input map are already
// lowercased and trimmed.
func canonicalHeaders(headers map[string]string) (canonical, signedList string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(keys, ";")
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// uriEncode percent-encodes per RFC 3986 as SigV4 requires: unreserved
// characters pass through, everything else becomes uppercase %HH, space is
// %20, never "+".
func uriEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
