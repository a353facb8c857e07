// Package logging provides structured logging for Gray Logic Relay.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the relay.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("message relayed", "device", "2C30EB", "accounts", 2)
//
// # Security
//
// Never log full Ubidots API keys or auth tokens. Components log a
// redacted prefix only (first 10 characters followed by "...").
package logging
