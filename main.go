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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fawa-io/ttscache/pkg/config"
	"github.com/fawa-io/ttscache/pkg/cors"
	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/lazy"
	"github.com/fawa-io/ttscache/pkg/metrics"
	"github.com/fawa-io/ttscache/pkg/objstore"
	"github.com/fawa-io/ttscache/pkg/tts"
	ttssvc "github.com/fawa-io/ttscache/service/tts"
	"github.com/fawa-io/ttscache/service/worker"
)

func main() {
	if err := config.InitConfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()

	creds, err := cfg.StorageCredentials()
	if err != nil {
		fwlog.Fatalf("Invalid storage configuration: %v", err)
	}
	if err := creds.Validate(); err != nil {
		// Requests fail with STORAGE_CONFIG_MISSING until this is fixed.
		fwlog.Warnf("Storage is not fully configured: %v", err)
	}
	cdn := objstore.NewCDN(creds, cfg.Storage.CDNHost)

	observer, err := metrics.NewPrometheusObserver(nil)
	if err != nil {
		fwlog.Fatalf("Failed to register metrics: %v", err)
	}

	group := &lazy.Group[*resources]{}
	res := func() (*resources, error) {
		return group.Get(pipelineResource, func() (*resources, error) {
			return buildResources(cfg, creds, cdn, observer)
		})
	}
	resolver := lazyResolver(func() (ttssvc.Resolver, error) {
		r, err := res()
		if err != nil {
			return nil, err
		}
		return r.pipeline, nil
	})

	handler := &ttssvc.Handler{
		Resolver: resolver,
		Presigner: objstore.NewPresigner(creds, cdn,
			objstore.WithDefaultExpiry(cfg.PresignExpiry()),
			objstore.WithContentTypeSigning(cfg.Storage.SignContentType)),
		Metrics: promhttp.Handler(),
		Health: func(ctx context.Context) error {
			r, err := res()
			if err != nil {
				return err
			}
			return r.ping(ctx)
		},
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cors.NewCORS().Handler(handler.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ttscache"))
		if err != nil {
			fwlog.Fatalf("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)
		}
		defer nc.Close()

		w := worker.NewNatsWorker(nc, cfg.NATS.Subject, cfg.NATS.Queue, resolver)
		go func() {
			defer close(workerDone)
			if err := w.Run(ctx); err != nil {
				fwlog.Errorf("NATS worker stopped: %v", err)
			}
		}()
	} else {
		close(workerDone)
	}

	// Setup graceful shutdown
	go func() {
		<-ctx.Done()
		fwlog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fwlog.Errorf("Server shutdown error: %v", err)
		}
	}()

	fwlog.Infof("Server starting on %v", cfg.Addr)

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		fwlog.Fatalf("Failed to start server: %v", err)
	}

	<-workerDone
	if r, ok := group.Loaded(pipelineResource); ok {
		r.close()
	}
	fwlog.Info("Server shutdown complete")
}

// lazyResolver defers pipeline construction until the first request.
type lazyResolver func() (ttssvc.Resolver, error)

func (f lazyResolver) Resolve(ctx context.Context, req tts.Request) (*tts.Result, error) {
	r, err := f()
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, req)
}
