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
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP headers of the Azure-style speech API.
const (
	headerContentType  = "Content-Type"
	headerOutputFormat = "X-Microsoft-OutputFormat"
	headerSubscription = "Ocp-Apim-Subscription-Key"
	headerUserAgent    = "User-Agent"
	contentTypeSSML    = "application/ssml+xml"
	contentTypeMPEG    = "audio/mpeg"
	userAgent          = "ttscache"
)

// Default values.
const (
	DefaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	defaultTimeout      = 30 * time.Second
	maxErrorBody        = 4 << 10
)

// Error messages.
const (
	errReceivedEmptyAudio = "received empty audio data"
	errFmtProviderStatus  = "speech provider returned status %d: %s"
)

// ErrProviderNotConfigured is returned when the endpoint or key is missing.
var ErrProviderNotConfigured = errors.New("speech provider endpoint or key not configured")

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns Params into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, p Params) (*Audio, error)
}

// ProviderError carries a non-200 response from the speech provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf(errFmtProviderStatus, e.StatusCode, e.Body)
}

// Client calls an Azure Cognitive Services compatible speech endpoint.
type Client struct {
	endpoint     string
	apiKey       string
	outputFormat string
	httpClient   *http.Client
}

type ClientOption func(*Client)

// WithOutputFormat sets the X-Microsoft-OutputFormat value.
func WithOutputFormat(format string) ClientOption {
	return func(c *Client) {
		if format != "" {
			c.outputFormat = format
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for endpoint, e.g.
// "https://koreacentral.tts.speech.microsoft.com/cognitiveservices/v1".
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:     strings.TrimSpace(endpoint),
		apiKey:       apiKey,
		outputFormat: DefaultOutputFormat,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize posts the SSML for p and returns the audio bytes.
func (c *Client) Synthesize(ctx context.Context, p Params) (*Audio, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, ErrProviderNotConfigured
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, ErrInvalidText
	}

	body, err := BuildSSML(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeSSML)
	req.Header.Set(headerOutputFormat, c.outputFormat)
	req.Header.Set(headerSubscription, c.apiKey)
	req.Header.Set(headerUserAgent, userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New(errReceivedEmptyAudio)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType == "" {
		contentType = contentTypeMPEG
	}
	return &Audio{Data: data, ContentType: contentType}, nil
}
