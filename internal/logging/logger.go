package logging

import (
	"io"
	"log/slog"
	"os"
)

var stderr io.Writer = os.Stderr

// Setup installs a JSON slog logger on stdout as the default logger.
func Setup() {
	slog.SetDefault(slog.New(NewJSONHandler(os.Stdout)))
}

func NewJSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}
