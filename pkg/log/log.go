// Copyright 2024 The saturn.io Authors
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

// Package log wraps zap for the whole control plane.
//
// Structured logging only: use .Info/.Error with key-value pairs and .V(n) for
// verbosity instead of warn/debug levels. Loggers travel inside context.Context;
// actions call FromContextOrDiscard and add their own values with WithValues.
package log

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const TimeFormat = "2006-01-02 15:04:05.999"

// AtomicLevel changes the level of every logger built by this package at runtime.
var AtomicLevel = zap.NewAtomicLevel()

var GlobalLogger, LogrLogger = MustNewLogger()

var (
	NewContext           = logr.NewContext
	FromContextOrDiscard = logr.FromContextOrDiscard
)

func SetLevel(level string) {
	if err := AtomicLevel.UnmarshalText([]byte(level)); err != nil {
		GlobalLogger.Warn("invalid logger level", zap.String("level", level))
		return
	}
	GlobalLogger.Info("logger level updated", zap.String("level", level))
}

func MustNewLogger() (*zap.Logger, logr.Logger) {
	logger, err := NewZapLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	return logger, zapr.NewLogger(logger)
}

func NewZapLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = AtomicLevel
	if level != "" {
		_ = AtomicLevel.UnmarshalText([]byte(level))
	}
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
	config.DisableStacktrace = true
	config.Sampling = nil
	return config.Build()
}

func Error(err error, msg string, keysAndValues ...interface{}) {
	LogrLogger.WithCallDepth(1).Error(err, msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	LogrLogger.WithCallDepth(1).Info(msg, keysAndValues...)
}

func V(level int) logr.Logger {
	return LogrLogger.V(level)
}

func WithName(name string) logr.Logger {
	return LogrLogger.WithName(name)
}

func WithValues(keysAndValues ...interface{}) logr.Logger {
	return LogrLogger.WithValues(keysAndValues...)
}

func Infof(format string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(format, v...)
}
