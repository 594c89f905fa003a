package convert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quire/internal/backend"
	"quire/internal/deadline"
	"quire/internal/logging"
	"quire/internal/services"
)

// Spool is the read side of the upload spool.
type Spool interface {
	Read(identifier string) ([]byte, error)
}

// Connector acquires engine sessions.
type Connector interface {
	Acquire(ctx context.Context) (backend.Session, error)
}

// Restarter restarts a hung engine.
type Restarter interface {
	Restart(ctx context.Context) bool
}

// Options tunes the orchestrator limits.
type Options struct {
	// Timeout bounds the connect-to-close span of one call.
	Timeout time.Duration
	// MaxParts is the largest accepted zip entry count.
	MaxParts int
}

// Orchestrator serializes backend access and drives conversions and joins.
type Orchestrator struct {
	spool     Spool
	connector Connector
	restarter Restarter
	logger    *slog.Logger
	timeout   time.Duration
	maxParts  int

	// slot holds one token while a backend span owns the engine.
	slot chan struct{}
}

// New constructs an orchestrator.
func New(spool Spool, connector Connector, restarter Restarter, logger *slog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		spool:     spool,
		connector: connector,
		restarter: restarter,
		logger:    logging.NewComponentLogger(logger, "convert"),
		timeout:   opts.Timeout,
		maxParts:  opts.MaxParts,
		slot:      make(chan struct{}, 1),
	}
}

// Busy reports whether a backend span currently holds the slot.
func (o *Orchestrator) Busy() bool {
	return len(o.slot) > 0
}

// ensureCallRef attaches a call reference when the caller did not.
func ensureCallRef(ctx context.Context) context.Context {
	if _, ok := services.CallRefFromContext(ctx); ok {
		return ctx
	}
	return services.WithCallRef(ctx, uuid.NewString())
}

// spanFunc is the engine work for one call, run against an open session.
type spanFunc func(ctx context.Context, session backend.Session, track *tracker) ([]byte, error)

// runSpan acquires the backend slot and runs connect, work, and close under the
// conversion deadline.
func (o *Orchestrator) runSpan(ctx context.Context, operation string, track *tracker, work spanFunc) ([]byte, error) {
	logger := logging.WithContext(ctx, o.logger)

	select {
	case o.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrBackendUnavailable, "convert", operation, "gave up waiting for the backend", ctx.Err())
	}
	release := sync.OnceFunc(func() { <-o.slot })

	spanCtx := context.WithoutCancel(ctx)
	result, err := deadline.Run(o.timeout, func() ([]byte, error) {
		defer release()
		return o.span(spanCtx, operation, track, work)
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, deadline.ErrInvalidLimit):
		release()
		return nil, services.Wrap(services.ErrConfiguration, "convert", operation, "conversion timeout must be positive", err)
	case errors.Is(err, deadline.ErrExceeded):
		track.settle(StateFailed)
		logging.ErrorWithContext(logger, "backend did not answer in time", "conversion_timeout",
			logging.String("operation", operation),
			logging.Duration("timeout", o.timeout),
			logging.Duration("elapsed", track.elapsed()),
			logging.String(logging.FieldErrorHint, "engine may be hung; a restart is being attempted"),
		)
		if o.restarter != nil && o.restarter.Restart(spanCtx) {
			release()
		}
		return nil, services.Wrap(services.ErrConversionFailed, "convert", operation, "backend did not answer in time", nil)
	default:
		track.settle(StateFailed)
		var panicErr *deadline.PanicError
		if errors.As(err, &panicErr) {
			logger.Error("backend span panicked",
				logging.Any("panic", panicErr.Value),
				logging.String("stack", string(panicErr.Stack)),
			)
			return nil, services.Wrap(services.ErrConversionFailed, "convert", operation, "engine call crashed", nil)
		}
		return nil, err
	}
}

// span connects, runs work, and always closes the session.
func (o *Orchestrator) span(ctx context.Context, operation string, track *tracker, work spanFunc) (out []byte, err error) {
	logger := logging.WithContext(ctx, o.logger)

	track.enter(StateConnecting)
	session, err := o.connector.Acquire(ctx)
	if err != nil {
		if services.Marker(err) == nil {
			err = services.Wrap(services.ErrBackendUnavailable, "convert", operation, "acquire session", err)
		}
		return nil, err
	}

	defer func() {
		track.enter(StateClosing)
		closeErr := session.Close()
		if err != nil {
			logger.Debug("emergency close after failure",
				logging.Duration("elapsed", track.elapsed()),
				logging.Error(err),
			)
		}
		if closeErr != nil {
			logger.Warn("closing engine document failed", logging.Error(closeErr))
		}
	}()

	out, err = work(ctx, session, track)
	if err != nil {
		logger.Debug("engine work failed", logging.Duration("elapsed", track.elapsed()), logging.Error(err))
		if services.Marker(err) == nil {
			err = services.Wrap(services.ErrConversionFailed, "convert", operation, "engine rejected the document", err)
		}
		return nil, err
	}
	return out, nil
}

// resolveFilter maps a tag and warns when it falls back.
func (o *Orchestrator) resolveFilter(logger *slog.Logger, role, tag string) backend.Filter {
	f, ok := backend.Resolve(tag)
	if !ok {
		logging.WarnWithContext(logger, "unknown format tag; using default filter", "unknown_format",
			logging.String("role", role),
			logging.String("tag", tag),
			logging.String("filter", f.Name),
			logging.String(logging.FieldErrorHint, "supported formats: pdf, odt, ods, doc, xls, csv"),
			logging.String(logging.FieldImpact, "document is processed as ODF text"),
		)
	}
	return f
}

// readSpooled reads and decodes one finished upload and applies the part guard.
func (o *Orchestrator) readSpooled(identifier string) ([]byte, error) {
	if o.spool == nil {
		return nil, services.Wrap(services.ErrNoIdentifier, "convert", "read", "spool not configured", nil)
	}
	raw, err := o.spool.Read(identifier)
	if err != nil {
		return nil, err
	}
	data, err := decodeSpooled(raw)
	if err != nil {
		return nil, err
	}
	if err := checkParts(data, o.maxParts); err != nil {
		return nil, err
	}
	return data, nil
}

// finish logs the terminal state of a call.
func finish(logger *slog.Logger, track *tracker, operation string, out []byte, err error) {
	if err != nil {
		track.settle(StateFailed)
		kind := services.Kind(err)
		attrs := []logging.Attr{
			logging.String("error_kind", kind),
			logging.Duration("elapsed", track.elapsed()),
			logging.Error(err),
		}
		if kind == "internal" {
			logging.ErrorWithContext(logger, operation+" failed", "call_failed", attrs...)
			return
		}
		logger.Info(operation+" failed", logging.Args(attrs...)...)
		return
	}
	track.settle(StateDone)
	logger.Info(operation+" finished",
		logging.Int("bytes_out", len(out)),
		logging.Duration("elapsed", track.elapsed()),
	)
}
