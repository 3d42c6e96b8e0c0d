// Package logging provides structured logging for PinGrid Core.
//
// It is a thin wrapper over log/slog: JSON (production) or text
// (development) output, level filtering, and service/version fields
// stamped on every record. Components receive child loggers via
// With("component", ...) so log lines are attributable.
//
// Configured through the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("controller registered", "controller_id", id)
//
// Never log broker credentials or API tokens.
package logging
