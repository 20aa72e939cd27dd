package event

// Kind identifies an event variant. Kinds double as the PostgreSQL NOTIFY
// channel names they are decoded from.
type Kind string

const (
	// KindPublished fires when content finishes publishing and is ready
	// to be baked.
	KindPublished Kind = "post_publication"
	// KindStartupScan asks the pipeline to re-emit notifications for
	// modules still sitting in the post-publication state, replaying work
	// that was interrupted by downtime.
	KindStartupScan Kind = "post_publication_start_up"
)

// Notification is the raw record delivered by the database channel.
// Transient: consumed once by the listener, never persisted.
type Notification struct {
	Channel string
	Payload []byte
	PID     uint32
}

// Event is the typed envelope handed to registered handlers. Variants are
// immutable; the dispatcher owns one for the duration of a dispatch call.
type Event interface {
	Kind() Kind
}

// Published carries the identity of a freshly published module.
type Published struct {
	// ModuleIdent is the stable logical identifier of the content unit.
	ModuleIdent int
	// IdentHash pins the exact version to build (uuid@major.minor).
	IdentHash string
	// Timestamp is informational only; never used for ordering.
	Timestamp string
}

func (Published) Kind() Kind { return KindPublished }

// StartupScan has no payload; receipt alone triggers the re-scan.
type StartupScan struct{}

func (StartupScan) Kind() Kind { return KindStartupScan }
