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
	"fmt"
	"io"
	"net/http"
)

// HTTPProber checks object existence with an anonymous HEAD on the CDN.
type HTTPProber struct {
	cdn    CDN
	client *http.Client
}

// NewHTTPProber returns a prober. A nil client means http.DefaultClient.
func NewHTTPProber(cdn CDN, client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{cdn: cdn, client: client}
}

// Exists reports whether key is readable through the CDN. 403 and 404
// mean absent; any other non-2xx status is returned as an error.
func (p *HTTPProber) Exists(ctx context.Context, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cdn.URL(key), http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe of %s failed: %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("probe of %s returned status %s", key, resp.Status)
	}
}
