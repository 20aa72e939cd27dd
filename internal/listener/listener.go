package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/domain"
	"github.com/contentpress/bakerd/internal/event"
)

// Conn is the slice of *pgx.Conn the listener needs. Tests substitute a
// fake; production hands in the dedicated connection from db.ListenerConn.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Dispatcher delivers a decoded event to its registered handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt event.Event) []error
}

// MetricHooks carries the metric callbacks injected by main.
// Nil hooks are replaced with no-ops so the listener stays metrics-agnostic.
type MetricHooks struct {
	OnReceived      func(channel string)
	OnDecodeFailure func(channel string)
}

// Listener owns the blocking wait on the database notification channels.
// It subscribes once at startup, then runs an indefinite decode/dispatch
// loop. The loop is single-threaded with respect to dispatch: handlers run
// synchronously on the listener goroutine.
type Listener struct {
	conn         Conn
	disp         Dispatcher
	channels     []string
	pollInterval time.Duration
	logger       *zap.Logger
	hooks        MetricHooks
}

func New(
	conn Conn,
	disp Dispatcher,
	channels []string,
	pollInterval time.Duration,
	logger *zap.Logger,
	hooks MetricHooks,
) *Listener {
	if hooks.OnReceived == nil {
		hooks.OnReceived = func(string) {}
	}
	if hooks.OnDecodeFailure == nil {
		hooks.OnDecodeFailure = func(string) {}
	}
	return &Listener{
		conn:         conn,
		disp:         disp,
		channels:     channels,
		pollInterval: pollInterval,
		logger:       logger,
		hooks:        hooks,
	}
}

// Start subscribes to every configured channel. A subscription failure is
// fatal to the process; there is no internal retry.
func (l *Listener) Start(ctx context.Context) error {
	for _, ch := range l.channels {
		stmt := "LISTEN " + pgx.Identifier{ch}.Sanitize()
		if _, err := l.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: listen on %q: %v", domain.ErrConnection, ch, err)
		}
		l.logger.Info("listening on channel", zap.String("channel", ch))
	}
	return nil
}

// Run blocks until ctx is cancelled or the connection is lost.
//
// Each iteration waits for a notification with a bounded deadline. The
// deadline is a periodic wake that keeps the loop responsive to shutdown;
// its expiry is not an error. Notifications buffered on the connection are
// returned without blocking, so a single wake drains everything that is
// ready, in arrival order, before the loop blocks for a full interval again.
//
// A decode or dispatch failure affects only its own notification; the
// loop's availability outranks any single event's delivery. Returns nil on
// cancellation and a domain.ErrConnection-wrapped error on connection loss.
//
// One StartupScan event is dispatched before the first wait, so modules
// left mid-pipeline by a previous run are replayed.
func (l *Listener) Run(ctx context.Context) error {
	l.disp.Dispatch(ctx, event.StartupScan{})

	for {
		if ctx.Err() != nil {
			l.logger.Info("listener stopping")
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, l.pollInterval)
		n, err := l.conn.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			l.handle(ctx, n)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Periodic wake; nothing was ready.
		case ctx.Err() != nil:
			l.logger.Info("listener stopping")
			return nil
		default:
			return fmt.Errorf("%w: %v", domain.ErrConnection, err)
		}
	}
}

func (l *Listener) handle(ctx context.Context, n *pgconn.Notification) {
	l.hooks.OnReceived(n.Channel)
	l.logger.Debug("notification received",
		zap.String("channel", n.Channel),
		zap.Uint32("pid", n.PID),
		zap.String("payload", n.Payload),
	)

	evt, err := event.Decode(event.Notification{
		Channel: n.Channel,
		Payload: []byte(n.Payload),
		PID:     n.PID,
	})
	if err != nil {
		l.hooks.OnDecodeFailure(n.Channel)
		l.logger.Warn("dropping undecodable notification",
			zap.String("channel", n.Channel),
			zap.Error(err),
		)
		return
	}

	// Handler errors are already logged by the dispatcher; delivery is
	// at-most-once per received notification, so there is nothing to redo.
	l.disp.Dispatch(ctx, evt)
}
