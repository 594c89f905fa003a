package convert

import (
	"context"
	"fmt"
	"log/slog"

	"quire/internal/backend"
	"quire/internal/logging"
	"quire/internal/services"
)

// JoinRequest merges finished uploads, in order, into one document.
type JoinRequest struct {
	Identifiers []string
	InFormat    string
	OutFormat   string
}

// Join loads the first identifier as the base document, appends the rest in
// list order, and renders the result. Every identifier is read and checked
// against the part limit before the backend is contacted. Any failure aborts
// the whole join.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) ([]byte, error) {
	ctx = ensureCallRef(ctx)
	logger := logging.WithContext(ctx, o.logger)
	track := newTracker(logger)

	out, err := o.join(ctx, logger, track, req)
	finish(logger, track, "join", out, err)
	return out, err
}

func (o *Orchestrator) join(ctx context.Context, logger *slog.Logger, track *tracker, req JoinRequest) ([]byte, error) {
	track.enter(StateValidating)
	if len(req.Identifiers) == 0 {
		return nil, services.Wrap(services.ErrNoIdentifier, "join", "validate", "no identifiers", nil)
	}
	for i, id := range req.Identifiers {
		if id == "" {
			return nil, services.Wrap(services.ErrNoIdentifier, "join", "validate", fmt.Sprintf("identifier %d is empty", i+1), nil)
		}
	}
	docs := make([][]byte, len(req.Identifiers))
	total := 0
	for i, id := range req.Identifiers {
		data, err := o.readSpooled(id)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		docs[i] = data
		total += len(data)
	}
	logger.Debug("join accepted",
		logging.Int("documents", len(docs)),
		logging.Int("bytes_in", total),
	)

	inFilter := o.resolveFilter(logger, "input", req.InFormat)
	outFilter := o.resolveFilter(logger, "output", req.OutFormat)

	return o.runSpan(ctx, "join", track, func(ctx context.Context, session backend.Session, track *tracker) ([]byte, error) {
		track.enter(StateUploading)
		if err := session.Load(ctx, docs[0], inFilter, true); err != nil {
			return nil, err
		}
		for i, data := range docs[1:] {
			if err := session.Append(ctx, data, inFilter); err != nil {
				return nil, fmt.Errorf("append document %d: %w", i+2, err)
			}
			logger.Debug("document appended",
				logging.Int("position", i+2),
				logging.Int("bytes", len(data)),
				logging.Duration("elapsed", track.elapsed()),
			)
		}
		track.enter(StateConverting)
		out, err := session.Render(ctx, outFilter)
		if err != nil {
			return nil, err
		}
		track.enter(StateDownloading)
		return out, nil
	})
}
