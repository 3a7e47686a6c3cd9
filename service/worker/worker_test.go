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
package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/ttscache/pkg/objstore"
	"github.com/fawa-io/ttscache/pkg/tts"
)

type mockResolver struct {
	calls atomic.Int32
}

func (m *mockResolver) Resolve(_ context.Context, req tts.Request) (*tts.Result, error) {
	m.calls.Add(1)
	switch req.Text {
	case "":
		return nil, tts.ErrInvalidText
	case "misconfigured":
		return nil, &objstore.ConfigError{Code: objstore.CodeStorageConfigMissing, Field: "bucket"}
	}
	url := "https://cdn.example.com/" + tts.CacheKey(tts.Params{Text: req.Text, Voice: req.Voice})
	return &tts.Result{Success: true, URL: &url, Format: "mp3", Cached: req.Voice == "cached"}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Shutdown()
	})
	return conn
}

func startWorker(t *testing.T, conn *nats.Conn, resolver Resolver) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewNatsWorker(conn, "", "", resolver)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("worker exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("worker did not subscribe")
	}
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func request(t *testing.T, conn *nats.Conn, body string) map[string]any {
	t.Helper()
	msg, err := conn.Request(DefaultSubject, []byte(body), 2*time.Second)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}

func TestNatsWorker_Resolve(t *testing.T) {
	conn := createTestNatsClient(t)
	resolver := &mockResolver{}
	startWorker(t, conn, resolver)

	out := request(t, conn, `{"text":"hello","voice":"en-US-JennyNeural"}`)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "https://cdn.example.com/tts/fd6f9dfa78e093be.mp3", out["url"])
	assert.Nil(t, out["audio"])
	assert.Equal(t, false, out["cached"])
	assert.Equal(t, int32(1), resolver.calls.Load())
}

func TestNatsWorker_Errors(t *testing.T) {
	conn := createTestNatsClient(t)
	resolver := &mockResolver{}
	startWorker(t, conn, resolver)

	testCases := []struct {
		name     string
		body     string
		wantErr  string
		wantCode any
	}{
		{"malformed json", `{"text":`, "failed to unmarshal request", nil},
		{"invalid text", `{"text":""}`, "invalid text", nil},
		{"config missing", `{"text":"misconfigured"}`, "bucket is not set", objstore.CodeStorageConfigMissing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := request(t, conn, tc.body)
			assert.Equal(t, false, out["success"])
			assert.Contains(t, out["error"], tc.wantErr)
			assert.Equal(t, tc.wantCode, out["code"])
		})
	}
	assert.Equal(t, int32(2), resolver.calls.Load())
}

func TestNatsWorker_QueueGroupSharesLoad(t *testing.T) {
	conn := createTestNatsClient(t)
	first, second := &mockResolver{}, &mockResolver{}
	startWorker(t, conn, first)
	startWorker(t, conn, second)

	for i := 0; i < 20; i++ {
		request(t, conn, `{"text":"hello"}`)
	}
	// Each request is answered by exactly one member of the group.
	assert.Equal(t, int32(20), first.calls.Load()+second.calls.Load())
}
