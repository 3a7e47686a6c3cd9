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
// Package worker answers TTS resolution requests arriving over NATS.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/objstore"
	"github.com/fawa-io/ttscache/pkg/tts"
)

// Defaults for the subscription.
const (
	DefaultSubject = "tts.resolve"
	DefaultQueue   = "ttscache"

	handleMessageTimeout = 60 * time.Second
)

// Resolver is satisfied by *tts.Pipeline.
type Resolver interface {
	Resolve(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// errorReply is sent when a request cannot be resolved at all.
type errorReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// NatsWorker queue-subscribes to a subject and replies with tts.Result JSON.
// Several workers in the same queue group share the load.
type NatsWorker struct {
	conn     *nats.Conn
	subject  string
	queue    string
	resolver Resolver
	timeout  time.Duration
	ready    chan struct{}
}

// NewNatsWorker creates a worker. Empty subject and queue select the defaults.
func NewNatsWorker(conn *nats.Conn, subject, queue string, resolver Resolver) *NatsWorker {
	if subject == "" {
		subject = DefaultSubject
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return &NatsWorker{
		conn:     conn,
		subject:  subject,
		queue:    queue,
		resolver: resolver,
		timeout:  handleMessageTimeout,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the subscription is registered with the server.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.conn.QueueSubscribe(w.subject, w.queue, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}
	if err := w.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("failed to flush subscription: %w", err)
	}
	close(w.ready)
	fwlog.Infof("NATS worker listening on %s (queue %s)", w.subject, w.queue)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var reply any
	var req tts.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply = errorReply{Error: fmt.Sprintf("failed to unmarshal request: %v", err)}
	} else if res, err := w.resolver.Resolve(ctx, req); err != nil {
		reply = replyFor(err)
	} else {
		reply = res
	}

	if err := respond(msg, reply); err != nil {
		fwlog.Zap().Warn("failed to reply", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func replyFor(err error) errorReply {
	var cfgErr *objstore.ConfigError
	if errors.As(err, &cfgErr) {
		fwlog.Errorf("storage misconfigured: %v", err)
		return errorReply{Error: err.Error(), Code: cfgErr.Code}
	}
	return errorReply{Error: err.Error()}
}

func respond(msg *nats.Msg, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := msg.Respond(data); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}
