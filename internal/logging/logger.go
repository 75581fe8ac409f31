// Package logging builds the structured logger shared by lagmeter components.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// New returns a leveled go-kit logger writing to w.
// format is "logfmt" or "json"; lvl is one of debug, info, warn, error.
func New(w io.Writer, format, lvl string) (log.Logger, error) {
	var logger log.Logger
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatLogfmt:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unsupported log format %q: use %q or %q", format, FormatLogfmt, FormatJSON)
	}

	option, err := levelOption(lvl)
	if err != nil {
		return nil, err
	}
	logger = level.NewFilter(logger, option)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger log.Logger) log.Logger {
	if logger == nil {
		return log.NewNopLogger()
	}
	return logger
}

func levelOption(lvl string) (level.Option, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn", "warning":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("unsupported log level %q", lvl)
	}
}
