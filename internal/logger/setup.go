package logger

import (
	"io"
	"log/slog"
	"os"

	"attachget/internal/config"
)

func New(w io.Writer, cfg config.Logger) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Plaintext {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func SetupDefault(cfg config.Logger) {
	slog.SetDefault(New(os.Stdout, cfg))
}
