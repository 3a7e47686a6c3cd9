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

// Package objstore talks to S3-compatible object stores (DigitalOcean
// Spaces, MinIO, AWS S3) with hand-built SigV4 requests: presigned upload
// URLs for clients, authenticated PUTs and existence probes for the server.
package objstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// CodeStorageConfigMissing is reported when a credential field is absent.
const CodeStorageConfigMissing = "STORAGE_CONFIG_MISSING"

// ErrConfigMissing is the sentinel wrapped by every ConfigError.
var ErrConfigMissing = errors.New("storage configuration missing")

// ConfigError names the first missing storage configuration field.
type ConfigError struct {
	Code  string
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s is not set", e.Code, e.Field)
}

func (e *ConfigError) Unwrap() error { return ErrConfigMissing }

// Credentials identifies a bucket and the static key pair used to sign
// requests against it. It is loaded once and never mutated.
type Credentials struct {
	// Endpoint is the storage host, e.g. "sgp1.digitaloceanspaces.com".
	Endpoint    string
	Bucket      string
	AccessKeyID string
	SecretKey   string
	Region      string
	UseSSL      bool
	// PathStyle addresses the bucket as the first path segment instead
	// of a subdomain. MinIO deployments usually need it.
	PathStyle bool
}

// Validate returns a *ConfigError for the first empty field.
func (c Credentials) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"endpoint", c.Endpoint},
		{"bucket", c.Bucket},
		{"accessKeyId", c.AccessKeyID},
		{"secretKey", c.SecretKey},
		{"region", c.Region},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ConfigError{Code: CodeStorageConfigMissing, Field: f.name}
		}
	}
	return nil
}

// ParseEndpoint accepts either a bare host or a URL and returns the host
// and whether TLS should be used. A bare host defaults to TLS.
func ParseEndpoint(raw string) (host string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, nil
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid storage endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "https":
		secure = true
	case "http":
	default:
		return "", false, fmt.Errorf("invalid storage endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	return u.Host, secure, nil
}

func (c Credentials) scheme() string {
	if c.UseSSL {
		return "https"
	}
	return "http"
}

// bucketHost is the host a request for this bucket is sent to.
func (c Credentials) bucketHost() string {
	if c.PathStyle {
		return c.Endpoint
	}
	return c.Bucket + "." + c.Endpoint
}

// objectURI returns the canonical URI of an already escaped key.
func (c Credentials) objectURI(escapedKey string) string {
	if c.PathStyle {
		return "/" + c.Bucket + "/" + escapedKey
	}
	return "/" + escapedKey
}

func (c Credentials) originURL() string {
	if c.PathStyle {
		return c.scheme() + "://" + c.Endpoint + "/" + c.Bucket
	}
	return c.scheme() + "://" + c.bucketHost()
}
