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
package fwlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a logger interface that output logs.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)

	Debug(v ...any)
	Info(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)

	SetLevel(Level)
	SetOutput(io.Writer)
}

// Level defines the priority of a log message.
// When a logger is configured with a level, any log message with a lower
// log level (smaller by integer comparison) will not be output.
type Level int

// The levels of logs.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (lv Level) toZapLevel() zapcore.Level {
	switch lv {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a config string such as "debug" to a Level.
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}

	return LevelInfo, fmt.Errorf("invalid log level: '%s'", levelStr)
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// zapLogger keeps one AtomicLevel across output swaps, so SetLevel and
// SetOutput never rebuild each other's state.
type zapLogger struct {
	mu    sync.RWMutex
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func newZapLogger(w io.Writer, lv Level) *zapLogger {
	l := &zapLogger{level: zap.NewAtomicLevelAt(lv.toZapLevel())}
	l.SetOutput(w)
	return l
}

func (l *zapLogger) sugared() *zap.SugaredLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sugar
}

func (l *zapLogger) zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

func (l *zapLogger) Debugf(format string, v ...any) { l.sugared().Debugf(format, v...) }
func (l *zapLogger) Infof(format string, v ...any)  { l.sugared().Infof(format, v...) }
func (l *zapLogger) Warnf(format string, v ...any)  { l.sugared().Warnf(format, v...) }
func (l *zapLogger) Errorf(format string, v ...any) { l.sugared().Errorf(format, v...) }
func (l *zapLogger) Fatalf(format string, v ...any) { l.sugared().Fatalf(format, v...) }

func (l *zapLogger) Debug(v ...any) { l.sugared().Debug(v...) }
func (l *zapLogger) Info(v ...any)  { l.sugared().Info(v...) }
func (l *zapLogger) Warn(v ...any)  { l.sugared().Warn(v...) }
func (l *zapLogger) Error(v ...any) { l.sugared().Error(v...) }
func (l *zapLogger) Fatal(v ...any) { l.sugared().Fatal(v...) }

func (l *zapLogger) SetLevel(level Level) {
	l.level.SetLevel(level.toZapLevel())
}

func (l *zapLogger) SetOutput(w io.Writer) {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), l.level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.ErrorOutput(zapcore.AddSync(os.Stderr)))

	l.mu.Lock()
	l.base = base
	l.sugar = base.Sugar()
	l.mu.Unlock()
}
