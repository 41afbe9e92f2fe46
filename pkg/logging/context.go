package logging

import (
	"log/slog"
)

// WithClient creates a logger with lock-client context.
// Use this to automatically include the client id in all logs emitted while
// servicing that client's acquire/release calls.
//
// Example:
//
//	log := logging.WithClient(clientID)
//	log.Info("acquiring lock")
func WithClient(clientID int) *slog.Logger {
	return GetLogger().With("client_id", clientID)
}

// WithResource creates a logger with resource context.
//
// Example:
//
//	log := logging.WithResource(typeID, resourceID)
//	log.Debug("lock granted", "mode", "exclusive")
func WithResource(typeID int, resourceID int64) *slog.Logger {
	return GetLogger().With("resource_type", typeID, "resource_id", resourceID)
}

// WithClientResource creates a logger with both client and resource context.
//
// Example:
//
//	log := logging.WithClientResource(clientID, typeID, resourceID)
//	log.Info("waiting for lock")
func WithClientResource(clientID, typeID int, resourceID int64) *slog.Logger {
	return GetLogger().With("client_id", clientID, "resource_type", typeID, "resource_id", resourceID)
}

// WithWait creates a logger with wait-event context, used while a client is
// blocked on a contended resource.
//
// Example:
//
//	log := logging.WithWait(clientID, true, typeID, resourceID)
//	log.Debug("blocked on lock")
func WithWait(clientID int, exclusive bool, typeID int, resourceID int64) *slog.Logger {
	return GetLogger().With("client_id", clientID, "exclusive", exclusive, "resource_type", typeID, "resource_id", resourceID)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("deadlock-detector")
//	log.Info("cycle detected")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("acquire failed")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
