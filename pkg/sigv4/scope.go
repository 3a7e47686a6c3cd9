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

package sigv4

import (
	"time"
)

const (
	// TimeFormat is the basic ISO8601 layout used by X-Amz-Date.
	TimeFormat = "20060102T150405Z"
	dateFormat = "20060102"

	serviceName = "s3"
	terminator  = "aws4_request"
)

// SigningContext carries the time and scope of a single signing operation.
// It is derived fresh for every request and never reused across seconds.
type SigningContext struct {
	Timestamp string
	DateStamp string
	Region    string
	Scope     string
}

// NewSigningContext builds a SigningContext for t in the given region.
// t is converted to UTC and truncated to whole seconds before it is
// formatted, so sub-second precision can never leak into the timestamp.
func NewSigningContext(t time.Time, region string) SigningContext {
	t = t.UTC().Truncate(time.Second)
	date := t.Format(dateFormat)
	return SigningContext{
		Timestamp: t.Format(TimeFormat),
		DateStamp: date,
		Region:    region,
		Scope:     date + "/" + region + "/" + serviceName + "/" + terminator,
	}
}

// Credential returns the X-Amz-Credential value for accessKeyID.
func (sc SigningContext) Credential(accessKeyID string) string {
	return accessKeyID + "/" + sc.Scope
}
