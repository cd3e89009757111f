package etl

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/utils"
)

// Keys tried, in order, when a JSON object response has no data selector.
var defaultDataKeys = []string{"data", "results", "items", "records"}

// RESTExtractor pages through one resource endpoint. The offset it hands
// back to the pipeline is the URL of the next page.
type RESTExtractor struct {
	Client      *Client
	BaseURL     string
	Resource    *models.ResourceConfig
	Paginator   Paginator
	Incremental *Incremental

	page int
}

func NewRESTExtractor(client *Client, cfg models.ClientConfig, res *models.ResourceConfig, inc *Incremental) (*RESTExtractor, error) {
	pg, err := NewPaginator(cfg.Paginator, res.Endpoint.Paginator)
	if err != nil {
		return nil, err
	}
	return &RESTExtractor{
		Client:      client,
		BaseURL:     cfg.BaseURL,
		Resource:    res,
		Paginator:   pg,
		Incremental: inc,
	}, nil
}

func (e *RESTExtractor) Extract(ctx context.Context, offset any) ([]models.Record, any, error) {
	var pageURL string
	if offset == nil {
		u, err := e.FirstPageURL()
		if err != nil {
			return nil, nil, err
		}
		pageURL = u
	} else {
		s, ok := offset.(string)
		if !ok {
			return nil, nil, errors.Newf("unexpected offset type %T", offset)
		}
		pageURL = s
	}

	resp, err := e.Client.Get(ctx, pageURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resource %q", e.Resource.Name)
	}
	e.page++

	records, err := SelectRecords(resp.Body, e.Resource.Endpoint.DataSelector)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resource %q page %d", e.Resource.Name, e.page)
	}
	logger.Debugw("Fetched page", "resource", e.Resource.Name, "page", e.page, "records", len(records), "url", pageURL)

	next, err := e.Paginator.NextPage(resp)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resource %q", e.Resource.Name)
	}
	if next == "" {
		return records, nil, nil
	}
	return records, next, nil
}

// FirstPageURL joins the base URL and endpoint path and encodes the params,
// resolving incremental templates against the current cursor.
func (e *RESTExtractor) FirstPageURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(e.Resource.Endpoint.Path, "/"))
	if err != nil {
		return "", errors.Wrapf(err, "resource %q: invalid url", e.Resource.Name)
	}

	q := u.Query()
	names := make([]string, 0, len(e.Resource.Endpoint.Params))
	for name := range e.Resource.Endpoint.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := e.Resource.Endpoint.Params[name]
		if e.Incremental != nil {
			v = e.Incremental.ResolveParam(v)
		}
		if v == nil {
			continue
		}
		q.Set(name, utils.ToString(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SelectRecords decodes a page body into records. The body is either a JSON
// array or an object holding the array under selector (a dotted path) or,
// without a selector, under a well-known key.
func SelectRecords(body []byte, selector string) ([]models.Record, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}

	if selector != "" {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, errors.Newf("data selector %q needs an object response, got %T", selector, doc)
		}
		v, ok := lookupPath(obj, selector)
		if !ok {
			return nil, errors.Newf("data selector %q not found in response", selector)
		}
		doc = v
	}

	switch v := doc.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		if selector != "" {
			return []models.Record{v}, nil
		}
		for _, key := range defaultDataKeys {
			if list, ok := v[key].([]any); ok {
				return toRecords(list)
			}
		}
		var lists [][]any
		for _, val := range v {
			if list, ok := val.([]any); ok {
				lists = append(lists, list)
			}
		}
		if len(lists) == 1 {
			return toRecords(lists[0])
		}
		return []models.Record{v}, nil
	case nil:
		return nil, nil
	default:
		return nil, errors.Newf("unexpected response type %T", doc)
	}
}

func toRecords(items []any) ([]models.Record, error) {
	out := make([]models.Record, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Newf("item #%d is %T, not an object", i, item)
		}
		out = append(out, rec)
	}
	return out, nil
}
