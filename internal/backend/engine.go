package backend

import "context"

// Engine opens sessions against the document engine.
type Engine interface {
	Connect(ctx context.Context, host string, port int) (Session, error)
}

// Session is one open document on the engine. Sessions are not reused.
type Session interface {
	// Load opens data as the base document using filter for import.
	Load(ctx context.Context, data []byte, filter Filter, readOnly bool) error
	// Append adds data after the current document content.
	Append(ctx context.Context, data []byte, filter Filter) error
	// Render exports the current document with filter.
	Render(ctx context.Context, filter Filter) ([]byte, error)
	// Close releases the document. It is safe to call more than once.
	Close() error
}
