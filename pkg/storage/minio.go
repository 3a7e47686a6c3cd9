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
package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/objstore"
)

// MinioProber checks object existence against the bucket itself instead of
// the CDN, using a signed HEAD (StatObject).
type MinioProber struct {
	client *minio.Client
	bucket string
}

// NewMinioProber builds a minio client from creds.
func NewMinioProber(creds objstore.Credentials) (*MinioProber, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	lookup := minio.BucketLookupDNS
	if creds.PathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(creds.AccessKeyID, creds.SecretKey, ""),
		Secure:       creds.UseSSL,
		Region:       creds.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return &MinioProber{client: client, bucket: creds.Bucket}, nil
}

// Exists reports whether key is present in the bucket.
func (m *MinioProber) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == minio.NoSuchKey || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", key, err)
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinioProber) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket '%s' exists: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket '%s': %w", m.bucket, err)
	}
	fwlog.Infof("Successfully created bucket: %s", m.bucket)
	return nil
}
