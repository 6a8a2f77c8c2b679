package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectConfig holds the NATS connection settings
type ConnectConfig struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	MaxRetries     int
	RetryWait      time.Duration
}

// DefaultConnectConfig returns the settings used by the command line
func DefaultConnectConfig(url string) ConnectConfig {
	return ConnectConfig{
		URL:            url,
		Name:           "cronthat",
		ConnectTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryWait:      time.Second,
	}
}

// Connect dials NATS with retries and opens a JetStream context
func Connect(cfg ConnectConfig, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	logger = logger.Named("nats")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.RetryWait),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS connection error", fields...)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var (
		nc  *nats.Conn
		err error
	)
	for i := 0; i < attempts; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		if i+1 < attempts {
			time.Sleep(cfg.RetryWait * time.Duration(i+1))
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}
