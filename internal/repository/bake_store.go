package repository

import (
	"context"

	"github.com/contentpress/bakerd/internal/domain"
)

// BakeStore defines all persistence operations the bake pipeline needs.
// The pgx implementation is in pg_bake_store.go.
// Tests use a hand-written mock (mock_bake_store.go).
type BakeStore interface {
	// SetBakeState is a single atomic statement scoped to one module.
	// recipeID may be nil (processing, or errored before any attempt).
	// message is the bounded operator-facing excerpt; empty outside of
	// failure states.
	SetBakeState(ctx context.Context, moduleIdent int, state domain.BakeState, recipeID *int, message string) error

	// RemoveDerivedContent deletes previously baked artifacts for the
	// version identified by identHash. Idempotent: removing nothing is fine.
	RemoveDerivedContent(ctx context.Context, identHash string) error

	// RecordTaskAssociation durably links a module to the task baking it.
	RecordTaskAssociation(ctx context.Context, moduleIdent int, taskID string) error

	// ResolveRecipeCandidates derives the primary/fallback recipe pair for
	// a module. Always queried fresh: print style and last-successful
	// recipe can change between builds.
	ResolveRecipeCandidates(ctx context.Context, moduleIdent int) (domain.RecipeCandidates, error)

	// PublicationInfo returns the submitter and publication message for a
	// version, both handed to the baker.
	PublicationInfo(ctx context.Context, identHash string) (domain.PublicationInfo, error)

	// NotifyPendingPublications re-emits a post-publication notification
	// for every module still in the post-publication state, and returns
	// how many were re-notified. Used by the startup scan.
	NotifyPendingPublications(ctx context.Context) (int, error)
}
