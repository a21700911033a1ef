package logger

import (
	"io"
	"log/slog"

	"github.com/mossy-p/webrtc-calling/lib/logger/slogpretty"
)

const (
	envLocal       = "local"
	envDevelopment = "development"
	envDev         = "dev"
	envProd        = "production"
)

// New returns the logger for env: coloured text locally, JSON elsewhere.
func New(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDevelopment:
		log = setupPrettySlog(w)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog(w)
	}

	return log
}

func setupPrettySlog(w io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(w)

	return slog.New(handler)
}
