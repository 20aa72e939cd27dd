package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/event"
)

// Handler processes one event. Handlers run synchronously on the listener
// goroutine and must hand off long work to the task executor.
type Handler func(ctx context.Context, evt event.Event) error

// Registry maps event kinds to their ordered handler lists. It is built
// once during startup and handed to the listener; there is no dynamic
// registration at runtime, so Dispatch reads without locking.
type Registry struct {
	handlers map[event.Kind][]Handler
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[event.Kind][]Handler),
		logger:   logger,
	}
}

// Register appends h to the handler list for kind. Registering the same
// handler twice is a caller error; no deduplication happens here.
func (r *Registry) Register(kind event.Kind, h Handler) {
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Dispatch delivers evt to every handler registered for its kind, in
// registration order. A failing or panicking handler is recorded in the
// returned slice and does not stop subsequent handlers. An event kind with
// no handlers is a no-op, not an error: unhandled channels are expected.
func (r *Registry) Dispatch(ctx context.Context, evt event.Event) []error {
	handlers := r.handlers[evt.Kind()]
	if len(handlers) == 0 {
		r.logger.Debug("no handlers for event", zap.String("kind", string(evt.Kind())))
		return nil
	}

	var errs []error
	for i, h := range handlers {
		if err := r.invoke(ctx, h, evt); err != nil {
			r.logger.Error("event handler failed",
				zap.String("kind", string(evt.Kind())),
				zap.Int("handler_index", i),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errs
}

// invoke runs one handler, converting a panic into an error so a bad
// handler cannot take down the listener loop.
func (r *Registry) invoke(ctx context.Context, h Handler, evt event.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, evt)
}
