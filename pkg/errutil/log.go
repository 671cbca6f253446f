// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with structured oops context when available.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, slog.LevelError, msg, err)
}

// LogWarn logs err at warn level. Used for failures the caller degrades
// from, such as an unreachable authority.
func LogWarn(logger *slog.Logger, msg string, err error, args ...any) {
	Log(context.Background(), logger, slog.LevelWarn, msg, err, args...)
}

// Log logs err at the given level. For oops errors the message, code and
// context map are emitted as separate attributes; extra args are appended.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, len(args)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := Code(err); code != "" {
			attrs = append(attrs, "code", code)
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			attrs = append(attrs, "context", errCtx)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	attrs = append(attrs, args...)
	logger.Log(ctx, level, msg, attrs...)
}

// Code returns the oops error code of err, or "" when err carries none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}
