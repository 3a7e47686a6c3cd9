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
	"context"
	"net/http"

	"github.com/fawa-io/ttscache/pkg/config"
	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/metrics"
	"github.com/fawa-io/ttscache/pkg/objstore"
	"github.com/fawa-io/ttscache/pkg/storage"
	"github.com/fawa-io/ttscache/pkg/tts"
)

const pipelineResource = "pipeline"

// resources are the shared dependencies of the pipeline, built on the first
// request. Building makes no network calls: an unreachable Redis degrades
// pointer lookups to misses, and missing storage credentials are reported by
// Resolve before anything is dialed.
type resources struct {
	pipeline *tts.Pipeline
	redis    *storage.DragonflyStore
}

func buildResources(cfg config.Config, creds objstore.Credentials, cdn objstore.CDN, observer metrics.Observer) (*resources, error) {
	httpClient := &http.Client{Timeout: cfg.TTSTimeout()}

	memory, err := storage.NewMemoryStore(cfg.Cache.MemorySize)
	if err != nil {
		return nil, err
	}
	r := &resources{}
	var pointers storage.PointerStore = memory
	if cfg.Redis.Addr != "" {
		r.redis = storage.NewDragonflyStore(storage.DragonflyOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		pointers = storage.NewTieredStore(memory, r.redis)
	} else {
		fwlog.Warn("redis.addr is not set, pointers are kept in memory only")
	}

	var prober tts.Prober = objstore.NewHTTPProber(cdn, httpClient)
	if cfg.Storage.Probe == config.ProbeBucket && creds.Validate() == nil {
		mp, err := storage.NewMinioProber(creds)
		if err != nil {
			r.close()
			return nil, err
		}
		prober = mp
	}

	synth := tts.NewClient(cfg.TTS.Endpoint, cfg.TTS.APIKey,
		tts.WithOutputFormat(cfg.TTS.OutputFormat),
		tts.WithHTTPClient(httpClient))

	r.pipeline = tts.NewPipeline(objstore.NewUploader(creds, cdn, httpClient), synth, pointers, prober, tts.PipelineOptions{
		DefaultVoice:       cfg.TTS.DefaultVoice,
		InlineMaxBytes:     cfg.TTS.InlineMaxBytes,
		MaxTextLength:      cfg.TTS.MaxTextLength,
		RevalidatePointers: cfg.TTS.RevalidatePointers,
		Observer:           observer,
		Logger:             fwlog.Zap().Named("pipeline"),
	})
	fwlog.Infof("Pipeline ready (probe=%s, redis=%t)", cfg.Storage.Probe, r.redis != nil)
	return r, nil
}

func (r *resources) ping(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Ping(ctx)
}

func (r *resources) close() {
	if r.redis == nil {
		return
	}
	if err := r.redis.Close(); err != nil {
		fwlog.Errorf("Error closing redis: %v", err)
	}
}
