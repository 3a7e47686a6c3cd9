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

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/objstore"
	ttscache "github.com/fawa-io/ttscache/pkg/tts"
)

const (
	// ServiceName is the fully-qualified name of the connect service.
	ServiceName = "ttscache.v1.TTSService"

	// ResolveProcedure resolves text to an audio URL.
	ResolveProcedure = "/" + ServiceName + "/Resolve"
	// PresignProcedure issues a presigned upload URL.
	PresignProcedure = "/" + ServiceName + "/Presign"

	// HeaderErrorCode carries the machine-readable error code, such as
	// STORAGE_CONFIG_MISSING, on connect errors.
	HeaderErrorCode = "Ttscache-Error-Code"
)

// JSONCodec encodes connect messages as plain JSON structs, so the service
// needs no generated protobuf types. Clients must use it too.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewTTSServiceHandler builds the connect handler for h. It returns the path
// to mount it on and the handler.
func NewTTSServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithReadMaxBytes(maxBodyBytes),
	}, opts...)

	resolveHandler := connect.NewUnaryHandler(ResolveProcedure, h.Resolve, opts...)
	presignHandler := connect.NewUnaryHandler(PresignProcedure, h.Presign, opts...)
	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ResolveProcedure:
			resolveHandler.ServeHTTP(w, r)
		case PresignProcedure:
			presignHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Resolve implements the Resolve procedure. A resolution that ran but did
// not succeed is returned as a Result with success false, not as an error.
func (h *Handler) Resolve(
	ctx context.Context,
	req *connect.Request[ttscache.Request],
) (*connect.Response[ttscache.Result], error) {
	resolver, err := h.Resolver()
	if err != nil {
		fwlog.Errorf("[%s] pipeline unavailable: %v", RequestID(ctx), err)
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	res, err := resolver.Resolve(ctx, *req.Msg)
	if err != nil {
		return nil, connectError(ctx, err)
	}
	return connect.NewResponse(res), nil
}

// Presign implements the Presign procedure.
func (h *Handler) Presign(
	ctx context.Context,
	req *connect.Request[PresignRequest],
) (*connect.Response[objstore.PresignedUpload], error) {
	out, err := h.Presigner.Presign(ctx, objstore.PresignInput{
		Key:         req.Msg.Key,
		Folder:      req.Msg.Folder,
		Filename:    req.Msg.Filename,
		ContentType: req.Msg.ContentType,
		Expires:     time.Duration(req.Msg.ExpiresIn) * time.Second,
	})
	if err != nil {
		return nil, connectError(ctx, err)
	}
	return connect.NewResponse(out), nil
}

// connectError maps pipeline and presign errors onto connect codes, the
// same classification writeFailure applies to the JSON routes.
func connectError(ctx context.Context, err error) error {
	var cfgErr *objstore.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		fwlog.Errorf("[%s] storage misconfigured: %v", RequestID(ctx), err)
		cerr := connect.NewError(connect.CodeFailedPrecondition, err)
		cerr.Meta().Set(HeaderErrorCode, cfgErr.Code)
		return cerr
	case isInvalidInput(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		fwlog.Errorf("[%s] request failed: %v", RequestID(ctx), err)
		return connect.NewError(connect.CodeInternal, err)
	}
}

func isInvalidInput(err error) bool {
	return errors.Is(err, ttscache.ErrInvalidText) ||
		errors.Is(err, objstore.ErrInvalidKey) ||
		errors.Is(err, objstore.ErrInvalidExpiry)
}
