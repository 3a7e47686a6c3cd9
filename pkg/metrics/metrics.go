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
// Package metrics exports pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ttscache"

// Observer captures telemetry for cache resolutions.
type Observer interface {
	// ObserveResolution records one finished Resolve call by outcome.
	ObserveResolution(outcome string, duration time.Duration)
	// ObserveStage records one network stage; err marks it failed.
	ObserveStage(stage string, duration time.Duration, err error)
}

// PrometheusObserver exports resolution metrics to Prometheus.
type PrometheusObserver struct {
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	stageErrors        *prometheus.CounterVec
}

// NewPrometheusObserver registers the ttscache collectors on reg, or on the
// default registerer when reg is nil. Collectors registered by an earlier
// call are reused.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	resolutions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Count of TTS cache resolutions by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	resolutionDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolution_duration_seconds",
		Help:      "End-to-end latency of TTS cache resolutions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	stageDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Latency of pipeline stages.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}
	stageErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_errors_total",
		Help:      "Count of failed pipeline stages.",
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusObserver{
		resolutions:        resolutions,
		resolutionDuration: resolutionDuration,
		stageDuration:      stageDuration,
		stageErrors:        stageErrors,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register ttscache metric: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) ObserveResolution(outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	o.resolutions.WithLabelValues(outcome).Inc()
	o.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (o *PrometheusObserver) ObserveStage(stage string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		o.stageErrors.WithLabelValues(stage).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) ObserveResolution(string, time.Duration) {}

func (nopObserver) ObserveStage(string, time.Duration, error) {}

// Nop discards everything.
var Nop Observer = nopObserver{}
