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
// Package tts serves the cache pipeline and the presigned upload issuer
// over HTTP JSON routes and a connect service with a JSON codec.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/objstore"
	ttscache "github.com/fawa-io/ttscache/pkg/tts"
)

const (
	headerRequestID = "X-Request-Id"
	maxBodyBytes    = 1 << 20
)

// Resolver is satisfied by *ttscache.Pipeline.
type Resolver interface {
	Resolve(ctx context.Context, req ttscache.Request) (*ttscache.Result, error)
}

// Presigner is satisfied by *objstore.Presigner.
type Presigner interface {
	Presign(ctx context.Context, in objstore.PresignInput) (*objstore.PresignedUpload, error)
}

// Handler routes the HTTP API.
type Handler struct {
	// Resolver returns the pipeline, building it on first use.
	Resolver func() (Resolver, error)
	Presigner Presigner
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health reports dependency health for /healthz when set.
	Health func(ctx context.Context) error
}

// PresignRequest is the body of POST /v1/uploads/presign.
type PresignRequest struct {
	Key         string `json:"key,omitempty"`
	Folder      string `json:"folder,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	// ExpiresIn is in seconds; zero selects the server default.
	ExpiresIn int `json:"expiresIn,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Routes returns the JSON routes and the connect service, with request ids
// attached.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tts", h.resolve)
	mux.HandleFunc("POST /v1/uploads/presign", h.presign)
	mux.HandleFunc("GET /healthz", h.healthz)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	mux.Handle(NewTTSServiceHandler(h))
	return withRequestID(mux)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		fwlog.Zap().Debug("request",
			zap.String("requestId", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req ttscache.Request
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	resolver, err := h.Resolver()
	if err != nil {
		fwlog.Errorf("[%s] pipeline unavailable: %v", RequestID(r.Context()), err)
		writeError(w, http.StatusServiceUnavailable, err, "")
		return
	}

	res, err := resolver.Resolve(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

func (h *Handler) presign(w http.ResponseWriter, r *http.Request) {
	var req PresignRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	out, err := h.Presigner.Presign(r.Context(), objstore.PresignInput{
		Key:         req.Key,
		Folder:      req.Folder,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Expires:     time.Duration(req.ExpiresIn) * time.Second,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeFailure maps pipeline and presign errors onto status codes.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *objstore.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		fwlog.Errorf("[%s] storage misconfigured: %v", RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, err, cfgErr.Code)
	case isInvalidInput(err):
		writeError(w, http.StatusBadRequest, err, "")
	default:
		fwlog.Errorf("[%s] request failed: %v", RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, err, "")
	}
}

func writeError(w http.ResponseWriter, status int, err error, code string) {
	writeJSON(w, status, errorBody{Success: false, Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fwlog.Warnf("failed to write response: %v", err)
	}
}
