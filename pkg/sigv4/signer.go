// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sigv4 computes AWS Signature Version 4 signatures for S3-style
// requests. It covers both query-string (presigned) and header
// authentication; callers pick the variant through the signed header set
// and the PayloadHash they supply.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Algorithm is the only signing algorithm supported.
const Algorithm = "AWS4-HMAC-SHA256"

// Query parameter and header names used by the S3 SigV4 dialect.
const (
	ParamAlgorithm     = "X-Amz-Algorithm"
	ParamCredential    = "X-Amz-Credential"
	ParamDate          = "X-Amz-Date"
	ParamExpires       = "X-Amz-Expires"
	ParamSignedHeaders = "X-Amz-SignedHeaders"
	ParamSignature     = "X-Amz-Signature"

	HeaderContentSHA256 = "x-amz-content-sha256"
	HeaderDate          = "x-amz-date"
	HeaderHost          = "host"
)

// PayloadHash is the last line of the canonical request.
type PayloadHash string

// UnsignedPayload is used when the body is not known at signing time.
const UnsignedPayload PayloadHash = "UNSIGNED-PAYLOAD"

// HashPayload returns the hex SHA-256 digest of body.
func HashPayload(body []byte) PayloadHash {
	sum := sha256.Sum256(body)
	return PayloadHash(hex.EncodeToString(sum[:]))
}

// Request is the canonical input of a signature.
// URI must already be percent-encoded and Query already canonical.
type Request struct {
	Method  string
	URI     string
	Query   string
	Headers map[string]string
	Payload PayloadHash
}

// SignedHeaders returns the sorted, semicolon-joined lower-case header names.
func (r Request) SignedHeaders() string {
	return strings.Join(r.headerNames(), ";")
}

func (r Request) headerNames() []string {
	names := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		names = append(names, strings.ToLower(k))
	}
	sort.Strings(names)
	return names
}

func (r Request) canonicalHeaders() string {
	values := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		values[strings.ToLower(k)] = strings.TrimSpace(v)
	}

	var b strings.Builder
	for _, name := range r.headerNames() {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String()
}

// CanonicalRequest returns the newline-joined canonical form of r.
func CanonicalRequest(r Request) string {
	return strings.Join([]string{
		r.Method,
		r.URI,
		r.Query,
		r.canonicalHeaders(),
		r.SignedHeaders(),
		string(r.Payload),
	}, "\n")
}

// StringToSign wraps the digest of a canonical request with algorithm and scope.
func StringToSign(canonicalRequest string, sc SigningContext) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		Algorithm,
		sc.Timestamp,
		sc.Scope,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

// SigningKey narrows secret into the key for the date, region and service of sc.
func SigningKey(secret string, sc SigningContext) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), sc.DateStamp)
	kRegion := hmacSHA256(kDate, sc.Region)
	kService := hmacSHA256(kRegion, serviceName)
	return hmacSHA256(kService, terminator)
}

// Sign returns the hex signature of r.
func Sign(secret string, r Request, sc SigningContext) string {
	sts := StringToSign(CanonicalRequest(r), sc)
	return hex.EncodeToString(hmacSHA256(SigningKey(secret, sc), sts))
}

// CanonicalQuery encodes v sorted by key with RFC 3986 escaping.
func CanonicalQuery(v url.Values) string {
	// url.Values.Encode sorts by key and escapes '+' as %2B,
	// so the only remaining difference is the space encoding.
	return strings.ReplaceAll(v.Encode(), "+", "%20")
}

// Authorization returns the value of the Authorization header for
// header-authenticated requests.
func Authorization(accessKeyID string, r Request, sc SigningContext, signature string) string {
	return Algorithm +
		" Credential=" + sc.Credential(accessKeyID) +
		", SignedHeaders=" + r.SignedHeaders() +
		", Signature=" + signature
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
