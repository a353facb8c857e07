package ubidots

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Logger defines the logging interface used by the clients.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewFactory returns the directory.ClientFactory for cfg. Each account gets
// its own REST client, wrapped in a SocketClient when cfg.API is udp or tcp.
func NewFactory(cfg config.UbidotsConfig, logger Logger) directory.ClientFactory {
	if logger == nil {
		logger = noopLogger{}
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.API))

	return func(account int, credential string) (directory.Client, error) {
		rest, err := NewClient(Options{
			Account:           account,
			APIKey:            credential,
			BaseURL:           cfg.BaseURL,
			Timeout:           time.Duration(cfg.RequestTimeout) * time.Second,
			PageSize:          cfg.PageSize,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			BreakerFailures:   cfg.Breaker.ConsecutiveFailures,
			BreakerOpen:       time.Duration(cfg.Breaker.OpenSeconds) * time.Second,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating rest client: %w", err)
		}

		switch mode {
		case "", config.APIModeREST:
			return rest, nil
		case config.APIModeUDP, config.APIModeTCP:
			sc, err := NewSocketClient(rest, mode, cfg.SocketHost, cfg.SocketPort)
			if err != nil {
				return nil, err
			}
			return sc, nil
		default:
			return nil, fmt.Errorf("unsupported api mode %q", cfg.API)
		}
	}
}
