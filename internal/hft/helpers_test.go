package hft

import (
	"io"
	"log/slog"
)

func testLoggerHFT() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
