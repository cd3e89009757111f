package etl

import (
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/tomnomnom/linkheader"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// Paginator decides which URL to fetch after a response.
type Paginator interface {
	// NextPage returns the next page URL, or "" when there are no more pages.
	NextPage(resp *Response) (string, error)
}

// HeaderLinkPaginator follows the next link of the Link response header.
type HeaderLinkPaginator struct {
	// Rel is the relation name of the next link (default "next").
	Rel string
}

func (p *HeaderLinkPaginator) NextPage(resp *Response) (string, error) {
	rel := p.Rel
	if rel == "" {
		rel = "next"
	}

	links := linkheader.ParseMultiple(resp.Headers.Values("Link")).FilterByRel(rel)
	if len(links) == 0 || links[0].URL == "" {
		return "", nil
	}

	next, err := url.Parse(links[0].URL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid %s link %q", rel, links[0].URL)
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid response url %q", resp.URL)
	}
	return base.ResolveReference(next).String(), nil
}

// SinglePagePaginator stops after the first response.
type SinglePagePaginator struct{}

func (SinglePagePaginator) NextPage(*Response) (string, error) {
	return "", nil
}

// NewPaginator builds the paginator for an endpoint, falling back to the
// client default when the endpoint does not override it.
func NewPaginator(client models.PaginatorConfig, endpoint *models.PaginatorConfig) (Paginator, error) {
	cfg := client
	if endpoint != nil && endpoint.Type != "" {
		cfg = *endpoint
	}

	switch cfg.Type {
	case models.HeaderLink:
		return &HeaderLinkPaginator{Rel: cfg.LinksNextKey}, nil
	case models.SinglePage, "":
		return SinglePagePaginator{}, nil
	default:
		return nil, errors.Wrapf(models.ErrInvalidConfig, "unknown paginator %q", cfg.Type)
	}
}
