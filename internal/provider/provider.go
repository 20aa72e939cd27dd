package provider

import (
	"context"

	"github.com/contentpress/bakerd/internal/domain"
)

// DocumentProvider abstracts the archive service that exports the source
// document tree for a pinned version. Mocking this interface in tests gives
// full control over retrieval behaviour without real HTTP calls.
type DocumentProvider interface {
	FetchDocumentTree(ctx context.Context, identHash string) (*domain.DocumentTree, error)
}

// Baker abstracts the external build operation that produces derived,
// styled content from a document tree using a recipe. The build algorithm
// itself is opaque to this core.
type Baker interface {
	Bake(ctx context.Context, tree *domain.DocumentTree, recipeID int, info domain.PublicationInfo) error
}
