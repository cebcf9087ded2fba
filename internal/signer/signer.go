package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm       = "AWS4-HMAC-SHA256"
	UnsignedPayload = "UNSIGNED-PAYLOAD"
	ServiceS3       = "s3"

	// RegionAuto is the region Cloudflare R2 expects in the credential scope.
	RegionAuto = "auto"

	AmzDateFormat   = "20060102T150405Z"
	DateStampFormat = "20060102"

	scopeTerminator = "aws4_request"
	authPrefix      = Algorithm + " "
)

// DefaultSignedHeaders are the headers covered by every signature this
// package produces. They are kept in canonical (sorted) order.
var DefaultSignedHeaders = []string{"host", "x-amz-content-sha256", "x-amz-date"}

// Credentials is an access key pair for an S3-compatible endpoint.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Signer produces AWS Signature Version 4 Authorization headers.
type Signer struct {
	Credentials Credentials
	Region      string
	Service     string

	// Now returns the signing time. It defaults to time.Now.
	Now func() time.Time
}

// New returns a Signer for the S3 service in the given region.
func New(creds Credentials, region string) *Signer {
	return &Signer{
		Credentials: creds,
		Region:      region,
		Service:     ServiceS3,
		Now:         time.Now,
	}
}

// Sign stamps the X-Amz-Date and X-Amz-Content-Sha256 headers on r, sets its
// Authorization header and returns the header value. An empty payloadHash
// means UNSIGNED-PAYLOAD.
func (s *Signer) Sign(r *http.Request, payloadHash string) string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.SignAt(r, payloadHash, now())
}

// SignAt is Sign with an explicit signing time.
func (s *Signer) SignAt(r *http.Request, payloadHash string, t time.Time) string {
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}

	t = t.UTC()
	amzDate := t.Format(AmzDateFormat)
	dateStamp := t.Format(DateStampFormat)

	if r.Host == "" {
		r.Host = r.URL.Host
	}
	r.Header.Set("X-Amz-Date", amzDate)
	r.Header.Set("X-Amz-Content-Sha256", payloadHash)

	scope := CredentialScope(dateStamp, s.Region, s.service())
	canonicalReq := BuildCanonicalRequest(r, DefaultSignedHeaders, payloadHash)
	stringToSign := StringToSign(amzDate, scope, canonicalReq)

	key := DeriveSigningKey(s.Credentials.SecretAccessKey, dateStamp, s.Region, s.service())
	signature := hex.EncodeToString(HmacSHA256(key, stringToSign))

	header := AuthorizationHeader(s.Credentials.AccessKeyID, scope, DefaultSignedHeaders, signature)
	r.Header.Set("Authorization", header)
	return header
}

func (s *Signer) service() string {
	if s.Service == "" {
		return ServiceS3
	}
	return s.Service
}

// CredentialScope returns "{dateStamp}/{region}/{service}/aws4_request".
func CredentialScope(dateStamp string, region string, service string) string {
	return strings.Join([]string{dateStamp, region, service, scopeTerminator}, "/")
}

// StringToSign assembles the SigV4 string-to-sign for a canonical request.
func StringToSign(amzDate string, scope string, canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))

	var b strings.Builder
	b.WriteString(Algorithm)
	b.WriteString("\n")
	b.WriteString(amzDate)
	b.WriteString("\n")
	b.WriteString(scope)
	b.WriteString("\n")
	b.WriteString(hex.EncodeToString(sum[:]))
	return b.String()
}

// DeriveSigningKey runs the SigV4 HMAC chain
// AWS4+secret -> date -> region -> service -> "aws4_request".
func DeriveSigningKey(secret string, dateStamp string, region string, service string) []byte {
	kDate := HmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := HmacSHA256(kDate, region)
	kService := HmacSHA256(kRegion, service)
	return HmacSHA256(kService, scopeTerminator)
}

// AuthorizationHeader formats the final Authorization header value.
func AuthorizationHeader(accessKeyID string, scope string, signedHeaders []string, signatureHex string) string {
	return authPrefix +
		"Credential=" + accessKeyID + "/" + scope + ", " +
		"SignedHeaders=" + strings.Join(signedHeaders, ";") + ", " +
		"Signature=" + signatureHex
}

func HmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// awsURLEncode percent-encodes everything outside the RFC 3986 unreserved
// set. Slashes are kept as-is unless encodeSlash is set.
func awsURLEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		if c == '/' && !encodeSlash {
			b.WriteByte(c)
			continue
		}
		b.WriteString("%")
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

func canonicalURI(u *url.URL) string {
	p := u.Path
	if p == "" {
		return "/"
	}
	// S3 encodes the object path exactly once.
	return awsURLEncode(p, false)
}

func canonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}

	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, awsURLEncode(k, true)+"="+awsURLEncode(v, true))
		}
	}

	return strings.Join(parts, "&")
}

func canonicalHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// BuildCanonicalRequest returns the SigV4 canonical request for r covering
// signedHeaderNames. Header names are lowercased and sorted.
func BuildCanonicalRequest(r *http.Request, signedHeaderNames []string, payloadHash string) string {
	names := make([]string, 0, len(signedHeaderNames))
	for _, h := range signedHeaderNames {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			names = append(names, h)
		}
	}
	sort.Strings(names)

	var hdr strings.Builder
	for _, name := range names {
		var value string
		if name == "host" {
			value = r.Host
			if value == "" {
				value = r.URL.Host
			}
		} else {
			value = strings.Join(r.Header.Values(name), ",")
		}
		hdr.WriteString(name)
		hdr.WriteString(":")
		hdr.WriteString(canonicalHeaderValue(value))
		hdr.WriteString("\n")
	}

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteString("\n")
	b.WriteString(canonicalURI(r.URL))
	b.WriteString("\n")
	b.WriteString(canonicalQueryString(r.URL))
	b.WriteString("\n")
	b.WriteString(hdr.String())
	b.WriteString("\n")
	b.WriteString(strings.Join(names, ";"))
	b.WriteString("\n")
	b.WriteString(payloadHash)

	return b.String()
}
