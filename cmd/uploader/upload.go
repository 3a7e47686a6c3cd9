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
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/fawa-io/ttscache/pkg/objstore"
	ttssvc "github.com/fawa-io/ttscache/service/tts"
)

type options struct {
	Server      string
	File        string
	Folder      string
	ContentType string
	Expires     time.Duration
	Timeout     time.Duration
}

// upload asks the server for a presigned URL, PUTs the file with exactly the
// headers that were signed and returns the public URL.
func upload(ctx context.Context, client *http.Client, opts options) (string, error) {
	data, err := os.ReadFile(opts.File)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", opts.File, err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(opts.File))
	}

	presigned, err := requestPresign(ctx, client, opts.Server, &ttssvc.PresignRequest{
		Folder:      opts.Folder,
		Filename:    filepath.Base(opts.File),
		ContentType: contentType,
		ExpiresIn:   int(opts.Expires / time.Second),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	for name, value := range presigned.RequiredHeaders {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &objstore.UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return presigned.PublicURL, nil
}

func requestPresign(ctx context.Context, client *http.Client, server string, in *ttssvc.PresignRequest) (*objstore.PresignedUpload, error) {
	presign := connect.NewClient[ttssvc.PresignRequest, objstore.PresignedUpload](
		client,
		strings.TrimSuffix(server, "/")+ttssvc.PresignProcedure,
		connect.WithCodec(ttssvc.JSONCodec{}),
	)
	res, err := presign.CallUnary(ctx, connect.NewRequest(in))
	if err != nil {
		return nil, fmt.Errorf("failed to request presigned url: %w", err)
	}
	return res.Msg, nil
}
