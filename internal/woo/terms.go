package woo

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
)

// TermKind selects the taxonomy of a term
type TermKind string

const (
	Categories TermKind = "categories"
	Tags       TermKind = "tags"
)

type Term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (k TermKind) path() string {
	return "/products/" + string(k)
}

// FindTerm searches a term by name, ignoring case
func (c *Client) FindTerm(ctx context.Context, kind TermKind, name string) (*Term, error) {
	var found []Term
	query := map[string]string{"search": name, "per_page": "100"}
	if err := c.do(ctx, http.MethodGet, kind.path(), query, nil, &found); err != nil {
		return nil, err
	}
	for i := range found {
		if strings.EqualFold(html.UnescapeString(found[i].Name), name) {
			return &found[i], nil
		}
	}
	return nil, nil
}

// CreateTerm creates a term. An existing term with the same name is returned instead.
func (c *Client) CreateTerm(ctx context.Context, kind TermKind, name string) (*Term, error) {
	var out Term
	err := c.do(ctx, http.MethodPost, kind.path(), nil, map[string]string{"name": name}, &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "term_exists" && apiErr.ResourceID > 0 {
		return &Term{ID: apiErr.ResourceID, Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EnsureTerms resolves every name to a term id, creating missing terms.
// Names are deduplicated case-insensitively.
func (c *Client) EnsureTerms(ctx context.Context, kind TermKind, names []string) ([]TermRef, error) {
	seen := make(map[string]bool, len(names))
	refs := make([]TermRef, 0, len(names))

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		term, err := c.FindTerm(ctx, kind, name)
		if err != nil {
			return nil, err
		}
		if term == nil {
			if term, err = c.CreateTerm(ctx, kind, name); err != nil {
				return nil, err
			}
		}
		refs = append(refs, TermRef{ID: term.ID})
	}
	return refs, nil
}
