package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/contentpress/bakerd/internal/domain"
)

// bakeRequest is the JSON body posted to the baking service.
type bakeRequest struct {
	IdentHash string          `json:"ident_hash"`
	RecipeID  int             `json:"recipe_id"`
	Publisher string          `json:"publisher"`
	Message   string          `json:"message"`
	Contents  json.RawMessage `json:"contents"`
}

// HTTPBaker drives a build by POSTing the document tree and recipe to the
// baking service and waiting for its synchronous answer. A long client
// timeout is expected: bakes are CPU-heavy on the far side.
type HTTPBaker struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPBaker(baseURL string, timeout time.Duration) *HTTPBaker {
	return &HTTPBaker{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Bake runs one build attempt with one recipe. Any non-200 response is a
// build failure; the caller decides whether a fallback attempt follows.
func (b *HTTPBaker) Bake(ctx context.Context, tree *domain.DocumentTree, recipeID int, info domain.PublicationInfo) error {
	body, err := json.Marshal(bakeRequest{
		IdentHash: tree.IdentHash,
		RecipeID:  recipeID,
		Publisher: info.Publisher,
		Message:   info.Message,
		Contents:  tree.Contents,
	})
	if err != nil {
		return fmt.Errorf("marshal bake request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/bake", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bake request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bake with recipe %d failed: status %d", recipeID, resp.StatusCode)
	}

	return nil
}

// compile-time check that HTTPBaker implements Baker
var _ Baker = (*HTTPBaker)(nil)
