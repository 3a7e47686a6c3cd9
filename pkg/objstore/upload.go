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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fawa-io/ttscache/pkg/sigv4"
)

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 4 << 10

// UploadError carries the provider response of a rejected PUT.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("object store rejected upload: status %d: %s", e.StatusCode, e.Body)
}

// Uploader PUTs objects with header authentication. It is meant for
// server-side use only.
type Uploader struct {
	creds  Credentials
	cdn    CDN
	client *http.Client
	now    func() time.Time
}

// NewUploader returns an Uploader. A nil client means http.DefaultClient.
func NewUploader(creds Credentials, cdn CDN, client *http.Client) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{creds: creds, cdn: cdn, client: client, now: time.Now}
}

// Validate reports missing credentials without touching the network.
func (u *Uploader) Validate() error { return u.creds.Validate() }

// PublicURL returns the CDN URL key is served from.
func (u *Uploader) PublicURL(key string) string { return u.cdn.URL(key) }

// Put uploads body to key and returns its public URL. Success is decided
// by the response status alone.
func (u *Uploader) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := u.creds.Validate(); err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	sc := sigv4.NewSigningContext(u.now(), u.creds.Region)
	host := u.creds.bucketHost()
	escaped := EscapeKey(key)
	payload := sigv4.HashPayload(body)

	signed := sigv4.Request{
		Method: http.MethodPut,
		URI:    u.creds.objectURI(escaped),
		Headers: map[string]string{
			sigv4.HeaderHost:          host,
			sigv4.HeaderContentSHA256: string(payload),
			sigv4.HeaderDate:          sc.Timestamp,
		},
		Payload: payload,
	}
	signature := sigv4.Sign(u.creds.SecretKey, signed, sc)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		u.creds.scheme()+"://"+host+signed.URI, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Host = host
	req.Header.Set(sigv4.HeaderContentSHA256, string(payload))
	req.Header.Set(sigv4.HeaderDate, sc.Timestamp)
	req.Header.Set("Authorization", sigv4.Authorization(u.creds.AccessKeyID, signed, sc, signature))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return u.cdn.escapedURL(escaped), nil
}
