package domain

import "encoding/json"

// BakeState tracks the lifecycle of one bake attempt for a module.
type BakeState string

const (
	// StateProcessing is written before the build task is submitted so
	// status readers see progress immediately.
	StateProcessing BakeState = "processing"
	// StateCurrent means the primary recipe baked successfully.
	StateCurrent BakeState = "current"
	// StateFallback means the primary failed but the fallback recipe baked.
	StateFallback BakeState = "fallback"
	// StateErrored is the terminal failure state.
	StateErrored BakeState = "errored"
)

func (s BakeState) IsValid() bool {
	switch s {
	case StateProcessing, StateCurrent, StateFallback, StateErrored:
		return true
	}
	return false
}

// IsTerminal reports whether no further state write may follow.
func (s BakeState) IsTerminal() bool {
	return s == StateCurrent || s == StateFallback || s == StateErrored
}

// RecipeCandidates is the ordered pair of recipe file ids a bake may attempt.
// Primary derives from the module's print style; Fallback is the recipe of
// the last successful bake, reported only when it differs from Primary.
// Never cached: the upstream configuration can change between builds.
type RecipeCandidates struct {
	Primary  *int
	Fallback *int
}

// Empty reports that there is nothing to attempt.
func (c RecipeCandidates) Empty() bool {
	return c.Primary == nil && c.Fallback == nil
}

// TaskAssociation links a module to the asynchronous task baking it,
// so status views can correlate the two later.
type TaskAssociation struct {
	ModuleIdent int
	TaskID      string
}

// PublicationInfo carries the submitter and publication message recorded
// at publish time; both are handed to the baker verbatim.
type PublicationInfo struct {
	Publisher string
	Message   string
}

// DocumentTree is the exported source document as returned by the archive.
// Contents is kept opaque: the baker consumes it, this core only moves it.
type DocumentTree struct {
	IdentHash string          `json:"ident_hash"`
	Title     string          `json:"title"`
	Contents  json.RawMessage `json:"contents"`
}

// ExcerptMessage bounds a failure message to limit runes for the persisted
// state_message column. The full diagnostic stays in logs and the task
// result store; status views only need a compact excerpt.
func ExcerptMessage(msg string, limit int) string {
	if limit <= 0 {
		return msg
	}
	runes := []rune(msg)
	if len(runes) <= limit {
		return msg
	}
	return string(runes[:limit])
}
