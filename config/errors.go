package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into Config
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrUnknownTransport is returned for a NOTIFY_TRANSPORT value no adapter serves
	ErrUnknownTransport = errors.New("unknown notification transport")

	// ErrMissingEndpoint is returned when the selected transport has no URL or brokers
	ErrMissingEndpoint = errors.New("transport endpoint not configured")

	// ErrInvalidLogLevel is returned when NOTIFY_LOG_LEVEL is not a slog level
	ErrInvalidLogLevel = errors.New("invalid log level")
)
