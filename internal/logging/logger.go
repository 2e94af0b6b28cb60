// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns the root logger. Local environments get a human-readable
// console writer; everything else emits JSON lines on stdout.
func New(environment, level string) (zerolog.Logger, error) {
	raw := strings.ToLower(strings.TrimSpace(level))
	if raw == "" {
		raw = "info"
	}
	parsedLevel, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	var writer io.Writer = os.Stdout
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", "citypulse").
		Logger(), nil
}
