package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/contentpress/bakerd/internal/domain"
)

// ArchiveClient fetches exported document trees over HTTP from the archive
// service. The base URL is injected from config so tests can point to a
// local mock.
type ArchiveClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewArchiveClient(baseURL string, timeout time.Duration) *ArchiveClient {
	return &ArchiveClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchDocumentTree retrieves the tree for a pinned version.
// Any non-200 response is an error; a 404 maps to domain.ErrNotFound so
// callers can distinguish a missing document from a broken archive.
func (c *ArchiveClient) FetchDocumentTree(ctx context.Context, identHash string) (*domain.DocumentTree, error) {
	endpoint := fmt.Sprintf("%s/contents/%s.json", c.baseURL, url.PathEscape(identHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document tree: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("document tree %q: %w", identHash, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("unexpected archive status: %d", resp.StatusCode)
	}

	var tree domain.DocumentTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode document tree: %w", err)
	}
	if tree.IdentHash == "" {
		tree.IdentHash = identHash
	}

	return &tree, nil
}

// compile-time check that ArchiveClient implements DocumentProvider
var _ DocumentProvider = (*ArchiveClient)(nil)
