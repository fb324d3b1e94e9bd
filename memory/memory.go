package memory

import (
	"log/slog"

	"github.com/next-trace/scg-notification-handler/adapters/inmemory"
	"github.com/next-trace/scg-notification-handler/handler"
)

// New constructs a Registry backed by the in-memory bridge and returns the bridge,
// so callers can play the host, along with a cleanup function that closes the registry.
func New(logger *slog.Logger) (*handler.Registry, *inmemory.Bridge, func()) {
	b := inmemory.New()
	reg := handler.New(b, logger)
	cleanup := func() { _ = reg.Close() }

	return reg, b, cleanup
}
