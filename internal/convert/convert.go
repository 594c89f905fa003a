package convert

import (
	"context"
	"log/slog"

	"quire/internal/backend"
	"quire/internal/logging"
	"quire/internal/services"
)

// Request describes one conversion. Exactly one of Data and Identifier must be
// set; a non-nil Data marks inline content even when empty.
type Request struct {
	Data       []byte
	Identifier string
	InFormat   string
	OutFormat  string
}

// Convert validates the request and renders the document in OutFormat.
func (o *Orchestrator) Convert(ctx context.Context, req Request) ([]byte, error) {
	ctx = ensureCallRef(ctx)
	logger := logging.WithContext(ctx, o.logger)
	track := newTracker(logger)

	out, err := o.convert(ctx, logger, track, req)
	finish(logger, track, "conversion", out, err)
	return out, err
}

func (o *Orchestrator) convert(ctx context.Context, logger *slog.Logger, track *tracker, req Request) ([]byte, error) {
	track.enter(StateValidating)
	data, err := o.validate(req)
	if err != nil {
		return nil, err
	}
	logger.Debug("document accepted",
		logging.Int("bytes_in", len(data)),
		logging.String("in_format", req.InFormat),
		logging.String("out_format", req.OutFormat),
	)

	inFilter := o.resolveFilter(logger, "input", req.InFormat)
	outFilter := o.resolveFilter(logger, "output", req.OutFormat)

	return o.runSpan(ctx, "convert", track, func(ctx context.Context, session backend.Session, track *tracker) ([]byte, error) {
		track.enter(StateUploading)
		if err := session.Load(ctx, data, inFilter, true); err != nil {
			return nil, err
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

func (o *Orchestrator) validate(req Request) ([]byte, error) {
	hasData := req.Data != nil
	hasIdentifier := req.Identifier != ""
	switch {
	case hasData && hasIdentifier:
		return nil, services.Wrap(services.ErrNoIdentifier, "convert", "validate", "send either data or an identifier, not both", nil)
	case !hasData && !hasIdentifier:
		return nil, services.Wrap(services.ErrNoIdentifier, "convert", "validate", "no data and no identifier", nil)
	case hasIdentifier:
		return o.readSpooled(req.Identifier)
	}
	if len(req.Data) == 0 {
		return nil, services.Wrap(services.ErrNoData, "convert", "validate", "empty document", nil)
	}
	if err := checkParts(req.Data, o.maxParts); err != nil {
		return nil, err
	}
	return req.Data, nil
}
