package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"
)

// signRequest is an independent client-side signer used only by tests.
// It mirrors the AWS algorithm rather than calling the verifier's
// internals, so verifier bugs cannot cancel out.
func signRequest(r *http.Request, accessKey, secret, region, service string, ts time.Time) {
	amzDate := ts.UTC().Format("20060102T150405Z")
	date := amzDate[:8]
	r.Header.Set("x-amz-date", amzDate)
	if r.Header.Get("x-amz-content-sha256") == "" {
		r.Header.Set("x-amz-content-sha256", "UNSIGNED-PAYLOAD")
	}

	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}

	var headerBlock strings.Builder
	for _, h := range signedHeaders {
		v := r.Header.Get(h)
		if h == "host" && v == "" {
			v = r.Host
		}
		fmt.Fprintf(&headerBlock, "%s:%s\n", h, strings.TrimSpace(v))
	}

	// sorted query
	q := r.URL.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var qparts []string
	for _, k := range keys {
		vs := q[k]
		sort.Strings(vs)
		for _, v := range vs {
			qparts = append(qparts, testEncode(k)+"="+testEncode(v))
		}
	}

	canonical := strings.Join([]string{
		r.Method,
		r.URL.EscapedPath(),
		strings.Join(qparts, "&"),
		headerBlock.String(),
		strings.Join(signedHeaders, ";"),
		r.Header.Get("x-amz-content-sha256"),
	}, "\n")

	scope := strings.Join([]string{date, region, service, "aws4_request"}, "/")
	hash := sha256.Sum256([]byte(canonical))
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256", amzDate, scope, hex.EncodeToString(hash[:]),
	}, "\n")

	mac := func(key []byte, data string) []byte {
		h := hmac.New(sha256.New, key)
		h.Write([]byte(data))
		return h.Sum(nil)
	}
	kDate := mac([]byte("AWS4"+secret), date)
	kRegion := mac(kDate, region)
	kService := mac(kRegion, service)
	kSigning := mac(kService, "aws4_request")
	signature := hex.EncodeToString(mac(kSigning, stringToSign))

	r.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s/%s/%s/aws4_request, SignedHeaders=%s, Signature=%s",
		accessKey, date, region, service, strings.Join(signedHeaders, ";"), signature))
}

func testEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0xf])
		}
	}
	return sb.String()
}

const (
	testAccessKey = "HAEXABCDEFGH12345678"
	testSecret    = "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
)

func signedRequest(t *testing.T, method, target string, ts time.Time) *http.Request {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	r := &http.Request{Method: method, URL: u, Host: "s3.example.test", Header: http.Header{}}
	signRequest(r, testAccessKey, testSecret, "us-east-1", "s3", ts)
	return r
}

func TestVerify_ValidRequest(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := signedRequest(t, http.MethodGet, "/user-abc/notes.bin?prefix=docs%2F&max-keys=10", now)

	auth, err := ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		t.Fatalf("ParseAuthorization: %v", err)
	}
	if auth.AccessKeyID != testAccessKey {
		t.Fatalf("AccessKeyID = %q", auth.AccessKeyID)
	}
	if err := Verify(r, auth, testSecret, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := signedRequest(t, http.MethodGet, "/user-abc/notes.bin", now)

	auth, _ := ParseAuthorization(r.Header.Get("Authorization"))
	if err := Verify(r, auth, "some-other-secret-0123456789-0123456789", now); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("want ErrSignatureMismatch, got %v", err)
	}
}

func TestVerify_OneByteMutations(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mutate := []struct {
		name string
		mod  func(r *http.Request)
	}{
		{"method", func(r *http.Request) { r.Method = http.MethodPut }},
		{"path", func(r *http.Request) { r.URL.Path = "/user-abc/notes.bim" }},
		{"query", func(r *http.Request) { r.URL.RawQuery = "prefix=docsX" }},
		{"signed header value", func(r *http.Request) { r.Header.Set("x-amz-content-sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855") }},
	}
	for _, tt := range mutate {
		t.Run(tt.name, func(t *testing.T) {
			r := signedRequest(t, http.MethodGet, "/user-abc/notes.bin?prefix=docs", now)
			auth, err := ParseAuthorization(r.Header.Get("Authorization"))
			if err != nil {
				t.Fatalf("ParseAuthorization: %v", err)
			}
			tt.mod(r)
			if err := Verify(r, auth, testSecret, now); !errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("want ErrSignatureMismatch after %s mutation, got %v", tt.name, err)
			}
		})
	}
}

func TestVerify_MutatedSignatureRejected(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := signedRequest(t, http.MethodGet, "/user-abc/k", now)
	auth, _ := ParseAuthorization(r.Header.Get("Authorization"))

	sig := []byte(auth.Signature)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	auth.Signature = string(sig)

	if err := Verify(r, auth, testSecret, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("want ErrSignatureMismatch, got %v", err)
	}
}

func TestVerify_Freshness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		signed time.Time
		ok     bool
	}{
		{"10 minutes old", now.Add(-10 * time.Minute), true},
		{"10 minutes ahead", now.Add(10 * time.Minute), true},
		{"899 seconds old", now.Add(-899 * time.Second), true},
		{"exactly 900 seconds old", now.Add(-900 * time.Second), false},
		{"16 minutes old", now.Add(-16 * time.Minute), false},
		{"16 minutes ahead", now.Add(16 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signedRequest(t, http.MethodGet, "/user-abc/k", tt.signed)
			auth, err := ParseAuthorization(r.Header.Get("Authorization"))
			if err != nil {
				t.Fatalf("ParseAuthorization: %v", err)
			}
			err = Verify(r, auth, testSecret, now)
			if tt.ok && err != nil {
				t.Fatalf("want accept, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrStaleDate) {
				t.Fatalf("want ErrStaleDate, got %v", err)
			}
		})
	}
}

func TestVerify_MissingAmzDate(t *testing.T) {
	now := time.Now().UTC()
	r := signedRequest(t, http.MethodGet, "/user-abc/k", now)
	auth, _ := ParseAuthorization(r.Header.Get("Authorization"))
	r.Header.Del("x-amz-date")
	if err := Verify(r, auth, testSecret, now); !errors.Is(err, ErrStaleDate) {
		t.Fatalf("want ErrStaleDate, got %v", err)
	}
}

func TestVerify_SignatureQueryParamIgnored(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := signedRequest(t, http.MethodGet, "/user-abc/k?prefix=a", now)
	auth, _ := ParseAuthorization(r.Header.Get("Authorization"))

	// A stray X-Amz-Signature parameter must be removed from the
	// canonical query before hashing.
	r.URL.RawQuery += "&X-Amz-Signature=deadbeef"
	if err := Verify(r, auth, testSecret, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestParseAuthorization_Strictness(t *testing.T) {
	valid := "AWS4-HMAC-SHA256 Credential=AKID1234/20250601/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=" + strings.Repeat("ab", 32)

	if _, err := ParseAuthorization(valid); err != nil {
		t.Fatalf("valid header rejected: %v", err)
	}

	bad := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"bearer", "Bearer abc"},
		{"wrong algorithm", "AWS4-HMAC-SHA512 Credential=A/20250601/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"short scope", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"bad terminator", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_requesX, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"access key with dash", "AWS4-HMAC-SHA256 Credential=AK-ID/20250601/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"seven digit date", "AWS4-HMAC-SHA256 Credential=AKID/2025060/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"uppercase region", "AWS4-HMAC-SHA256 Credential=AKID/20250601/US-EAST-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"uppercase service", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/S3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32)},
		{"short signature", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=abcd"},
		{"uppercase hex signature", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("AB", 32)},
		{"empty signed headers", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_request, SignedHeaders=, Signature=" + strings.Repeat("ab", 32)},
		{"uppercase signed header", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_request, SignedHeaders=Host, Signature=" + strings.Repeat("ab", 32)},
		{"unknown field", "AWS4-HMAC-SHA256 Credential=AKID/20250601/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=" + strings.Repeat("ab", 32) + ", Extra=1"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAuthorization(tt.header); !errors.Is(err, ErrMalformedAuthorization) {
				t.Fatalf("want ErrMalformedAuthorization, got %v", err)
			}
		})
	}
}

func TestCanonicalQuery_SortsAndEncodes(t *testing.T) {
	got := canonicalQuery("b=2&a=1&a=0&X-Amz-Signature=ff&c=a%2Fb")
	want := "a=0&a=1&b=2&c=a%2Fb"
	if got != want {
		t.Fatalf("canonicalQuery = %q, want %q", got, want)
	}
}
