package signer

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingAuthorization   = errors.New("signer: missing SigV4 authorization")
	ErrMalformedAuthorization = errors.New("signer: malformed SigV4 authorization")
	ErrUnknownAccessKey       = errors.New("signer: unknown access key")
	ErrSignatureMismatch      = errors.New("signer: signature does not match")
)

// Verify recomputes the signature of a request produced by Sign and compares
// it with the one carried in the Authorization header. It is the receiving
// half of Sign, used by S3-compatible fakes.
func Verify(r *http.Request, creds Credentials) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, authPrefix) {
		return ErrMissingAuthorization
	}

	params := strings.TrimSpace(strings.TrimPrefix(header, authPrefix))
	kv := make(map[string]string, 3)
	for _, p := range strings.Split(params, ",") {
		p = strings.TrimSpace(p)
		idx := strings.IndexByte(p, '=')
		if idx <= 0 {
			continue
		}
		kv[p[:idx]] = strings.TrimSpace(p[idx+1:])
	}

	credStr, okCred := kv["Credential"]
	signedHeadersStr, okSigned := kv["SignedHeaders"]
	signatureHex, okSig := kv["Signature"]
	if !okCred || !okSigned || !okSig {
		return ErrMalformedAuthorization
	}

	credParts := strings.Split(credStr, "/")
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return ErrMalformedAuthorization
	}
	accessKeyID, dateStamp, region, service := credParts[0], credParts[1], credParts[2], credParts[3]
	if region == "" || service == "" {
		return ErrMalformedAuthorization
	}
	if accessKeyID != creds.AccessKeyID {
		return ErrUnknownAccessKey
	}

	amzDate := r.Header.Get("X-Amz-Date")
	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if amzDate == "" || payloadHash == "" || !strings.HasPrefix(amzDate, dateStamp) {
		return ErrMalformedAuthorization
	}

	canonicalReq := BuildCanonicalRequest(r, strings.Split(signedHeadersStr, ";"), payloadHash)
	stringToSign := StringToSign(amzDate, CredentialScope(dateStamp, region, service), canonicalReq)
	key := DeriveSigningKey(creds.SecretAccessKey, dateStamp, region, service)
	computed := HmacSHA256(key, stringToSign)

	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrMalformedAuthorization
	}

	if !hmac.Equal(computed, provided) {
		return ErrSignatureMismatch
	}

	return nil
}
