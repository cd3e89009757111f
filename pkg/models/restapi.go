// Package models holds the declarative descriptors of a REST API source
// and the table schemas the engine infers from extracted records.
package models

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidConfig marks a malformed source descriptor.
var ErrInvalidConfig = errors.New("invalid source config")

// Record is one item returned by an API endpoint.
type Record = map[string]any

// WriteDisposition controls how loaded rows combine with rows already stored.
type WriteDisposition string

const (
	Append  WriteDisposition = "append"
	Merge   WriteDisposition = "merge"
	Replace WriteDisposition = "replace"
)

// PaginatorType names a pagination strategy.
type PaginatorType string

const (
	// HeaderLink follows the next link from the Link response header.
	HeaderLink PaginatorType = "header_link"
	SinglePage PaginatorType = "single_page"
)

// Template placeholders accepted in endpoint params.
const (
	StartValueTemplate   = "{incremental.start_value}"
	InitialValueTemplate = "{incremental.initial_value}"
	LastValueTemplate    = "{incremental.last_value}"
)

// PaginatorConfig selects and tunes a paginator.
type PaginatorConfig struct {
	Type PaginatorType `json:"type"`
	// LinksNextKey is the rel name of the next link (default "next").
	LinksNextKey string `json:"links_next_key,omitempty"`
}

// ClientConfig is the client-level base configuration shared by all resources.
type ClientConfig struct {
	BaseURL   string            `json:"base_url"`
	Paginator PaginatorConfig   `json:"paginator"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// IncrementalConfig binds an endpoint to a cursor field tracked across runs.
type IncrementalConfig struct {
	CursorPath   string `json:"cursor_path"`
	InitialValue any    `json:"initial_value"`
}

// EndpointConfig describes one API endpoint.
type EndpointConfig struct {
	Path string `json:"path"`
	// Params values are literals or one of the incremental templates.
	Params       map[string]any     `json:"params,omitempty"`
	Paginator    *PaginatorConfig   `json:"paginator,omitempty"`
	DataSelector string             `json:"data_selector,omitempty"`
	Incremental  *IncrementalConfig `json:"incremental,omitempty"`
}

// ProcessingStep runs on each record after extraction. Exactly one of
// Filter or Map is set, and both must be free of side effects.
type ProcessingStep struct {
	Name   string              `json:"name"`
	Filter func(Record) bool   `json:"-"`
	Map    func(Record) Record `json:"-"`
}

// ResourceConfig describes one resource of the source.
type ResourceConfig struct {
	Name             string           `json:"name"`
	Endpoint         EndpointConfig   `json:"endpoint"`
	PrimaryKey       []string         `json:"primary_key,omitempty"`
	WriteDisposition WriteDisposition `json:"write_disposition,omitempty"`
	ProcessingSteps  []ProcessingStep `json:"processing_steps,omitempty"`
	Parallelized     bool             `json:"parallelized"`
}

// Disposition returns the effective write disposition.
func (r *ResourceConfig) Disposition() WriteDisposition {
	if r.WriteDisposition == "" {
		return Append
	}
	return r.WriteDisposition
}

// RESTAPIConfig is the full declarative description of a REST API source.
type RESTAPIConfig struct {
	Client    ClientConfig     `json:"client"`
	Resources []ResourceConfig `json:"resources"`
}

// Source is a named RESTAPIConfig handed to a pipeline.
type Source struct {
	Name   string        `json:"name"`
	Config RESTAPIConfig `json:"config"`
}

// Validate reports descriptor mistakes. They are programming errors in the
// catalog, never runtime conditions.
func (c *RESTAPIConfig) Validate() error {
	if c.Client.BaseURL == "" {
		return errors.Wrap(ErrInvalidConfig, "client base_url is empty")
	}
	if err := validatePaginator(c.Client.Paginator); err != nil {
		return errors.Wrap(err, "client")
	}
	if len(c.Resources) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no resources declared")
	}

	seen := make(map[string]bool, len(c.Resources))
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "resource #%d has no name", i)
		}
		if seen[r.Name] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate resource %q", r.Name)
		}
		seen[r.Name] = true

		if err := r.validate(); err != nil {
			return errors.Wrapf(err, "resource %q", r.Name)
		}
	}
	return nil
}

func (r *ResourceConfig) validate() error {
	switch r.Disposition() {
	case Append, Replace:
	case Merge:
		if len(r.PrimaryKey) == 0 {
			return errors.Wrap(ErrInvalidConfig, "merge requires a primary key")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown write disposition %q", r.WriteDisposition)
	}

	if r.Endpoint.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "endpoint path is empty")
	}
	if r.Endpoint.Paginator != nil {
		if err := validatePaginator(*r.Endpoint.Paginator); err != nil {
			return err
		}
	}
	if inc := r.Endpoint.Incremental; inc != nil && inc.CursorPath == "" {
		return errors.Wrap(ErrInvalidConfig, "incremental cursor_path is empty")
	}
	for name, v := range r.Endpoint.Params {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "{incremental.") {
			continue
		}
		if r.Endpoint.Incremental == nil {
			return errors.Wrapf(ErrInvalidConfig, "param %q uses %s without an incremental binding", name, s)
		}
		switch s {
		case StartValueTemplate, InitialValueTemplate, LastValueTemplate:
		default:
			return errors.Wrapf(ErrInvalidConfig, "param %q has unknown template %s", name, s)
		}
	}

	for i, step := range r.ProcessingSteps {
		if (step.Filter == nil) == (step.Map == nil) {
			return errors.Wrapf(ErrInvalidConfig, "processing step #%d must set exactly one of filter or map", i)
		}
	}
	return nil
}

func validatePaginator(p PaginatorConfig) error {
	switch p.Type {
	case HeaderLink, SinglePage, "":
		return nil
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown paginator %q", p.Type)
	}
}
