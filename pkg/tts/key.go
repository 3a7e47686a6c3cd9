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
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	keyPrefix    = "tts/"
	keyExtension = ".mp3"
	keySeparator = "|"
)

// Params are every input that changes the synthesized audio.
type Params struct {
	Text  string
	Voice string
	Rate  string
	Pitch string
}

// CacheKey returns the content address of p: tts/{xxhash64}.mp3 over the
// fields joined with "|". It is stable across processes and versions.
func CacheKey(p Params) string {
	digest := xxhash.Sum64String(strings.Join([]string{p.Text, p.Voice, p.Rate, p.Pitch}, keySeparator))
	return fmt.Sprintf("%s%016x%s", keyPrefix, digest, keyExtension)
}
