package convert

import (
	"log/slog"
	"sync"
	"time"

	"quire/internal/logging"
)

// State names a step of the orchestration state machine.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateConnecting  State = "connecting"
	StateUploading   State = "uploading"
	StateConverting  State = "converting"
	StateDownloading State = "downloading"
	StateClosing     State = "closing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// tracker logs state transitions with the elapsed time since the call began.
// A span worker abandoned on timeout keeps calling enter while the caller
// settles the call, so state is guarded and frozen once the caller is done.
type tracker struct {
	logger  *slog.Logger
	started time.Time

	mu      sync.Mutex
	state   State
	settled bool
}

func newTracker(logger *slog.Logger) *tracker {
	return &tracker{logger: logger, started: time.Now(), state: StateIdle}
}

func (t *tracker) enter(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		t.logger.Debug("late state transition ignored",
			logging.String(logging.FieldState, string(next)),
			logging.String("settled_in", string(t.state)),
		)
		return
	}
	t.transition(next)
}

// settle moves to a terminal state and ignores every later enter call.
func (t *tracker) settle(final State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return
	}
	if t.state != final {
		t.transition(final)
	}
	t.settled = true
}

func (t *tracker) transition(next State) {
	t.logger.Debug("state transition",
		logging.String("from", string(t.state)),
		logging.String(logging.FieldState, string(next)),
		logging.Duration("elapsed", time.Since(t.started)),
	)
	t.state = next
}

func (t *tracker) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *tracker) elapsed() time.Duration {
	return time.Since(t.started)
}
