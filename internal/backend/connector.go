package backend

import (
	"context"
	"log/slog"
	"time"

	"quire/internal/logging"
	"quire/internal/services"
)

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithSleep replaces the backoff wait (primarily for tests).
func WithSleep(sleep func(context.Context, time.Duration) error) ConnectorOption {
	return func(c *Connector) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Connector acquires engine sessions with bounded retries.
type Connector struct {
	engine   Engine
	host     string
	port     int
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// NewConnector builds a connector. Attempts below one are treated as one.
func NewConnector(engine Engine, host string, port, attempts int, backoff time.Duration, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if attempts < 1 {
		attempts = 1
	}
	c := &Connector{
		engine:   engine,
		host:     host,
		port:     port,
		attempts: attempts,
		backoff:  backoff,
		logger:   logging.NewComponentLogger(logger, "backend"),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Acquire returns a fresh session, retrying failed connects after a fixed
// backoff. Exhausting the attempts yields ErrBackendUnavailable.
func (c *Connector) Acquire(ctx context.Context) (Session, error) {
	logger := logging.WithContext(ctx, c.logger)
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		session, err := c.engine.Connect(ctx, c.host, c.port)
		if err == nil {
			if attempt > 1 {
				logger.Info("backend connection recovered", logging.Int("attempt", attempt))
			}
			return session, nil
		}
		lastErr = err
		logger.Debug("backend connect failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.attempts),
			logging.Error(err),
		)
		if attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, c.backoff); err != nil {
			lastErr = err
			break
		}
	}
	logging.WarnWithContext(logger, "backend unavailable", "backend_unavailable",
		logging.Int("attempts", c.attempts),
		logging.String("address", c.Address()),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check that unoserver is listening on backend.host/backend.port"),
		logging.String(logging.FieldImpact, "conversion request rejected"),
	)
	return nil, services.Wrap(services.ErrBackendUnavailable, "backend", "connect",
		"engine did not accept a connection", lastErr)
}

// Address returns the configured host:port.
func (c *Connector) Address() string {
	return joinHostPort(c.host, c.port)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
