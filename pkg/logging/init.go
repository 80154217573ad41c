package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Initialize installs the process-wide slog logger. Logs go to stderr so
// that stdout stays clean for tooling (dry-run listings, version).
func Initialize(loggingType, logLevelName string, addSource bool) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(logLevelName)); err != nil {
		return fmt.Errorf("could not parse log level: %v", err)
	}

	opts := slog.HandlerOptions{
		AddSource: addSource,
		Level:     logLevel,
	}

	var handler slog.Handler
	switch loggingType {
	case JSON:
		handler = slog.NewJSONHandler(os.Stderr, &opts)
	case Text:
		handler = slog.NewTextHandler(os.Stderr, &opts)
	case Tint:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			AddSource: opts.AddSource,
			Level:     opts.Level,
		})
	default:
		return fmt.Errorf("unknown logging type: %s", loggingType)
	}

	slog.SetDefault(slog.New(handler))
	slog.Debug("logging initialized", "logLevel", logLevel)
	return nil
}
