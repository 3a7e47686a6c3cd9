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

package objstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fawa-io/ttscache/pkg/sigv4"
)

const (
	// DefaultPresignExpiry is how long an upload URL stays valid by default.
	DefaultPresignExpiry = 300 * time.Second
	// MaxPresignExpiry is the longest window SigV4 accepts.
	MaxPresignExpiry = 7 * 24 * time.Hour
)

// ErrInvalidExpiry is returned for windows outside [1s, MaxPresignExpiry].
var ErrInvalidExpiry = errors.New("invalid presign expiry")

// PresignInput describes an upload URL request. Key wins over
// Folder/Filename when both are set.
type PresignInput struct {
	Key         string
	Folder      string
	Filename    string
	ContentType string
	Expires     time.Duration
}

// PresignedUpload is handed to a client so it can PUT directly to the bucket.
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Key       string `json:"key"`
	// RequiredHeaders must be sent verbatim with the PUT; they are part
	// of the signature.
	RequiredHeaders map[string]string `json:"requiredHeaders"`
	ExpiresAt       time.Time         `json:"expiresAt"`
}

// Presigner issues time-limited upload URLs with query-string authentication.
type Presigner struct {
	creds           Credentials
	cdn             CDN
	defaultExpiry   time.Duration
	signContentType bool
	now             func() time.Time
}

// PresignOption customizes a Presigner.
type PresignOption func(*Presigner)

// WithPresignClock replaces time.Now.
func WithPresignClock(now func() time.Time) PresignOption {
	return func(p *Presigner) { p.now = now }
}

// WithDefaultExpiry sets the window used when PresignInput.Expires is zero.
func WithDefaultExpiry(d time.Duration) PresignOption {
	return func(p *Presigner) {
		if d > 0 {
			p.defaultExpiry = d
		}
	}
}

// WithContentTypeSigning adds content-type to the signed headers whenever
// the request carries one. The client must then send exactly that value.
func WithContentTypeSigning(enabled bool) PresignOption {
	return func(p *Presigner) { p.signContentType = enabled }
}

// NewPresigner returns a Presigner for creds publishing through cdn.
func NewPresigner(creds Credentials, cdn CDN, opts ...PresignOption) *Presigner {
	p := &Presigner{
		creds:         creds,
		cdn:           cdn,
		defaultExpiry: DefaultPresignExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Presign builds the upload URL for in. It performs no network I/O.
func (p *Presigner) Presign(_ context.Context, in PresignInput) (*PresignedUpload, error) {
	if err := p.creds.Validate(); err != nil {
		return nil, err
	}

	expires := in.Expires
	if expires == 0 {
		expires = p.defaultExpiry
	}
	if expires < time.Second || expires > MaxPresignExpiry {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpiry, expires)
	}

	now := p.now()
	key := in.Key
	if key != "" {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
	} else {
		var err error
		if key, err = UploadKey(in.Folder, in.Filename, now); err != nil {
			return nil, err
		}
	}

	sc := sigv4.NewSigningContext(now, p.creds.Region)
	host := p.creds.bucketHost()
	escaped := EscapeKey(key)

	headers := map[string]string{sigv4.HeaderHost: host}
	required := map[string]string{}
	if p.signContentType && in.ContentType != "" {
		headers["content-type"] = in.ContentType
		required["Content-Type"] = in.ContentType
	}

	req := sigv4.Request{
		Method:  http.MethodPut,
		URI:     p.creds.objectURI(escaped),
		Headers: headers,
		Payload: sigv4.UnsignedPayload,
	}

	query := url.Values{}
	query.Set(sigv4.ParamAlgorithm, sigv4.Algorithm)
	query.Set(sigv4.ParamCredential, sc.Credential(p.creds.AccessKeyID))
	query.Set(sigv4.ParamDate, sc.Timestamp)
	query.Set(sigv4.ParamExpires, strconv.FormatInt(int64(expires/time.Second), 10))
	query.Set(sigv4.ParamSignedHeaders, req.SignedHeaders())
	req.Query = sigv4.CanonicalQuery(query)

	signature := sigv4.Sign(p.creds.SecretKey, req, sc)

	return &PresignedUpload{
		UploadURL:       p.creds.scheme() + "://" + host + req.URI + "?" + req.Query + "&" + sigv4.ParamSignature + "=" + signature,
		PublicURL:       p.cdn.escapedURL(escaped),
		Key:             key,
		RequiredHeaders: required,
		ExpiresAt:       now.UTC().Truncate(time.Second).Add(expires),
	}, nil
}
