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
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7/pkg/s3utils"
)

const maxKeyLength = 1024

// ErrInvalidKey is returned for keys that cannot address an object.
var ErrInvalidKey = errors.New("invalid object key")

// EscapeKey percent-encodes every segment of key exactly once.
// The result is used verbatim for both the signed URI and public URLs.
func EscapeKey(key string) string {
	return s3utils.EncodePath(key)
}

// ValidateKey rejects empty, absolute, oversized or traversing keys.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > maxKeyLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, maxKeyLength)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q must not start with '/'", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// UploadKey builds "{folder}/{unixMillis}-{name}" for a client upload.
// Only the base name of name is kept.
func UploadKey(folder, name string, t time.Time) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidKey)
	}
	stamped := strconv.FormatInt(t.UnixMilli(), 10) + "-" + name

	folder = strings.Trim(strings.TrimSpace(folder), "/")
	key := stamped
	if folder != "" {
		key = folder + "/" + stamped
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
