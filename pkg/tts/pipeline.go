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
// Package tts resolves text-to-speech requests through a content-addressed
// cache: pointer record, then object existence, then synthesis and upload.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fawa-io/ttscache/pkg/metrics"
	"github.com/fawa-io/ttscache/pkg/storage"
)

// ErrInvalidText rejects empty, whitespace-only or oversized text.
var ErrInvalidText = errors.New("invalid text")

// Defaults for PipelineOptions.
const (
	DefaultInlineMaxBytes = 4 << 20
	DefaultMaxTextLength  = 5000
	DefaultVoice          = "en-US-JennyNeural"

	audioFormat = "mp3"
)

// Stage names reported to the metrics Observer.
const (
	StagePointer    = "check_pointer"
	StageExistence  = "check_object_existence"
	StageSynthesize = "synthesize"
	StageUpload     = "upload"
	StageRevalidate = "revalidate_pointer"
	StageWriteBack  = "write_pointer"
)

// Resolution outcomes reported to the metrics Observer.
const (
	OutcomePointerHit  = "pointer_hit"
	OutcomeObjectHit   = "object_hit"
	OutcomeSynthesized = "synthesized"
	OutcomeInline      = "inline"
	OutcomeFailed      = "failed"
)

// Request asks for audio of Text spoken by Voice.
type Request struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Rate  string `json:"rate,omitempty"`
	Pitch string `json:"pitch,omitempty"`
	// Force skips both cache checks and regenerates the audio.
	Force bool `json:"force,omitempty"`
}

// Result is the caller-facing outcome. Exactly one of URL and Audio is set
// on success.
type Result struct {
	Success bool    `json:"success"`
	URL     *string `json:"url"`
	Audio   *string `json:"audio"`
	Format  string  `json:"format"`
	Cached  bool    `json:"cached"`
	Error   string  `json:"error,omitempty"`
}

// Uploader stores audio and predicts its public URL.
type Uploader interface {
	Validate() error
	PublicURL(key string) string
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Prober reports whether an object already exists.
type Prober interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// PipelineOptions tune a Pipeline. Zero values select the defaults.
type PipelineOptions struct {
	DefaultVoice   string
	InlineMaxBytes int
	MaxTextLength  int
	// RevalidatePointers probes the object behind a pointer hit before
	// trusting it.
	RevalidatePointers bool

	Observer metrics.Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Pipeline is safe for concurrent use. Duplicate work for the same key from
// concurrent callers is not suppressed; the key is deterministic and the
// overwrite idempotent.
type Pipeline struct {
	uploader Uploader
	synth    Synthesizer
	pointers storage.PointerStore
	prober   Prober

	defaultVoice   string
	inlineMaxBytes int
	maxTextLength  int
	revalidate     bool

	observer metrics.Observer
	log      *zap.Logger
	now      func() time.Time
}

// NewPipeline wires the collaborators. pointers and prober may be nil, in
// which case the matching stage always misses.
func NewPipeline(uploader Uploader, synth Synthesizer, pointers storage.PointerStore, prober Prober, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		uploader:       uploader,
		synth:          synth,
		pointers:       pointers,
		prober:         prober,
		defaultVoice:   opts.DefaultVoice,
		inlineMaxBytes: opts.InlineMaxBytes,
		maxTextLength:  opts.MaxTextLength,
		revalidate:     opts.RevalidatePointers,
		observer:       opts.Observer,
		log:            opts.Logger,
		now:            opts.Now,
	}
	if p.defaultVoice == "" {
		p.defaultVoice = DefaultVoice
	}
	if p.inlineMaxBytes <= 0 {
		p.inlineMaxBytes = DefaultInlineMaxBytes
	}
	if p.maxTextLength <= 0 {
		p.maxTextLength = DefaultMaxTextLength
	}
	if p.observer == nil {
		p.observer = metrics.Nop
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Params normalizes req into the values that are hashed and synthesized.
func (p *Pipeline) Params(req Request) Params {
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = p.defaultVoice
	}
	return Params{
		Text:  req.Text,
		Voice: voice,
		Rate:  strings.TrimSpace(req.Rate),
		Pitch: strings.TrimSpace(req.Pitch),
	}
}

func (p *Pipeline) validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidText)
	}
	if n := utf8.RuneCountInString(req.Text); n > p.maxTextLength {
		return fmt.Errorf("%w: %d characters exceeds the limit of %d", ErrInvalidText, n, p.maxTextLength)
	}
	return nil
}

// Resolve returns a URL (or inline audio) for req. Errors are returned only
// for invalid input and missing storage configuration, both before any
// network call; every later failure is reported inside the Result.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	if err := p.validate(req); err != nil {
		return nil, err
	}
	if err := p.uploader.Validate(); err != nil {
		return nil, err
	}

	params := p.Params(req)
	key := CacheKey(params)
	log := p.log.With(zap.String("key", key), zap.Bool("force", req.Force))

	finish := func(outcome string, r *Result) (*Result, error) {
		p.observer.ObserveResolution(outcome, p.now().Sub(start))
		log.Debug("resolved", zap.String("outcome", outcome), zap.Duration("elapsed", p.now().Sub(start)))
		return r, nil
	}

	if !req.Force {
		if url, ok := p.checkPointer(ctx, log, key); ok {
			return finish(OutcomePointerHit, urlResult(url, true))
		}
		if p.exists(ctx, log, StageExistence, key) {
			url := p.uploader.PublicURL(key)
			p.writePointer(ctx, log, key, url)
			return finish(OutcomeObjectHit, urlResult(url, true))
		}
	}

	stageStart := p.now()
	audio, err := p.synth.Synthesize(ctx, params)
	p.observer.ObserveStage(StageSynthesize, p.now().Sub(stageStart), err)
	if err != nil {
		log.Warn("synthesis failed", zap.Error(err))
		return finish(OutcomeFailed, failedResult(fmt.Sprintf("synthesis failed: %v", err)))
	}

	stageStart = p.now()
	url, err := p.uploader.Put(ctx, key, audio.Data, contentTypeMPEG)
	p.observer.ObserveStage(StageUpload, p.now().Sub(stageStart), err)
	if err != nil {
		if len(audio.Data) > p.inlineMaxBytes {
			log.Error("upload failed and audio is too large to inline", zap.Error(err), zap.Int("bytes", len(audio.Data)))
			return finish(OutcomeFailed, failedResult(fmt.Sprintf(
				"upload failed and audio of %d bytes exceeds the inline limit of %d: %v",
				len(audio.Data), p.inlineMaxBytes, err)))
		}
		log.Warn("upload failed, returning audio inline", zap.Error(err))
		encoded := base64.StdEncoding.EncodeToString(audio.Data)
		return finish(OutcomeInline, &Result{Success: true, Audio: &encoded, Format: audioFormat})
	}

	p.writePointer(ctx, log, key, url)
	return finish(OutcomeSynthesized, urlResult(url, false))
}

// checkPointer returns the pointed-to URL on a trusted hit. Lookup errors
// count as a miss.
func (p *Pipeline) checkPointer(ctx context.Context, log *zap.Logger, key string) (string, bool) {
	if p.pointers == nil {
		return "", false
	}
	stageStart := p.now()
	ptr, err := p.pointers.Get(ctx, key)
	if errors.Is(err, storage.ErrPointerNotFound) {
		p.observer.ObserveStage(StagePointer, p.now().Sub(stageStart), nil)
		return "", false
	}
	p.observer.ObserveStage(StagePointer, p.now().Sub(stageStart), err)
	if err != nil {
		log.Warn("pointer lookup failed, treating as miss", zap.Error(err))
		return "", false
	}
	if p.revalidate && !p.exists(ctx, log, StageRevalidate, key) {
		log.Info("pointer target missing, regenerating", zap.String("url", ptr.URL))
		return "", false
	}
	return ptr.URL, true
}

// exists probes the object for key. Probe errors count as a miss.
func (p *Pipeline) exists(ctx context.Context, log *zap.Logger, stage, key string) bool {
	if p.prober == nil {
		return false
	}
	stageStart := p.now()
	ok, err := p.prober.Exists(ctx, key)
	p.observer.ObserveStage(stage, p.now().Sub(stageStart), err)
	if err != nil {
		log.Debug("existence probe failed, treating as miss", zap.Error(err))
		return false
	}
	return ok
}

// writePointer never fails the resolution.
func (p *Pipeline) writePointer(ctx context.Context, log *zap.Logger, key, url string) {
	if p.pointers == nil {
		return
	}
	stageStart := p.now()
	err := p.pointers.Upsert(ctx, key, url)
	p.observer.ObserveStage(StageWriteBack, p.now().Sub(stageStart), err)
	if err != nil {
		log.Warn("pointer write failed", zap.Error(err))
	}
}

func urlResult(url string, cached bool) *Result {
	return &Result{Success: true, URL: &url, Format: audioFormat, Cached: cached}
}

func failedResult(msg string) *Result {
	return &Result{Success: false, Format: audioFormat, Error: msg}
}
