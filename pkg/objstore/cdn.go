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
	"strings"
)

// cdnSuffixes maps raw storage domains to their CDN read domains.
var cdnSuffixes = []struct {
	raw string
	cdn string
}{
	{".digitaloceanspaces.com", ".cdn.digitaloceanspaces.com"},
}

// CDN derives public read URLs for object keys.
type CDN struct {
	base string
}

// NewCDN resolves the public base URL for creds.
// An explicit override wins; otherwise a known raw-domain suffix is swapped
// for its CDN subdomain; otherwise the bucket origin itself is used.
func NewCDN(creds Credentials, override string) CDN {
	if override = strings.TrimSpace(override); override != "" {
		if !strings.Contains(override, "://") {
			override = "https://" + override
		}
		return CDN{base: strings.TrimSuffix(override, "/")}
	}

	if !creds.PathStyle {
		host := creds.bucketHost()
		for _, s := range cdnSuffixes {
			if strings.HasSuffix(host, s.raw) && !strings.HasSuffix(host, s.cdn) {
				return CDN{base: "https://" + strings.TrimSuffix(host, s.raw) + s.cdn}
			}
		}
	}
	return CDN{base: creds.originURL()}
}

// Base returns the scheme and host (and bucket path, for path-style
// origins) that keys are appended to.
func (c CDN) Base() string { return c.base }

// URL returns the public URL of key.
func (c CDN) URL(key string) string {
	return c.escapedURL(EscapeKey(key))
}

func (c CDN) escapedURL(escapedKey string) string {
	return c.base + "/" + escapedKey
}
