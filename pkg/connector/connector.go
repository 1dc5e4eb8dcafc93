// Package connector talks to external civic-finance sources under one contract:
// auth, rate limiting, retries and sanitized audit logging in Client, and
// source-specific paging and field shapes in the concrete connectors.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported connector source type")
	ErrMissingSetting        = errors.New("missing connector setting")
	ErrUnexpectedPayload     = errors.New("unexpected response payload")
)

// PageRequest asks for one page. Page is zero-based.
type PageRequest struct {
	Page     int
	PageSize int
	DateFrom *time.Time
	DateTo   *time.Time
	TenantID *uuid.UUID
}

// Page is one page of raw external records.
type Page struct {
	Records []map[string]any
	// Total is the source's reported total when it exposes one.
	Total *int
}

// Connector is one configured external source able to sync a single entity type.
type Connector interface {
	ID() uuid.UUID
	Client() *Client
	EntityType() models.EntityType
	HealthCheckEndpoint() string
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
	Transform(records []map[string]any) ([]models.TransformationResult, error)
}

type pageStyle string

const (
	pageStyleNumber pageStyle = "page"
	pageStyleOffset pageStyle = "offset"
	pageStyleNone   pageStyle = "none"
)

// source holds the paging and envelope conventions of one external API.
type source struct {
	client        *Client
	entityType    models.EntityType
	endpoint      string
	health        string
	recordsPath   string
	totalPath     string
	style         pageStyle
	firstPage     int
	pageParam     string
	sizeParam     string
	dateFromParam string
	dateToParam   string
	dateLayout    string
	params        map[string]string
	flatten       bool
	transformCfg  *transform.Config
}

func (s *source) ID() uuid.UUID                 { return s.client.config.ID }
func (s *source) Client() *Client               { return s.client }
func (s *source) EntityType() models.EntityType { return s.entityType }
func (s *source) HealthCheckEndpoint() string   { return s.health }

func (s *source) Transform(records []map[string]any) ([]models.TransformationResult, error) {
	return transform.TransformBatch(s.entityType, records, s.transformCfg)
}

func (s *source) queryParams(req PageRequest) map[string]string {
	params := make(map[string]string, len(s.params)+4)
	for k, v := range s.params {
		params[k] = v
	}

	switch s.style {
	case pageStyleNumber:
		params[s.pageParam] = strconv.Itoa(s.firstPage + req.Page)
		params[s.sizeParam] = strconv.Itoa(req.PageSize)
	case pageStyleOffset:
		params[s.pageParam] = strconv.Itoa(req.Page * req.PageSize)
		params[s.sizeParam] = strconv.Itoa(req.PageSize)
	}

	if req.DateFrom != nil && s.dateFromParam != "" {
		params[s.dateFromParam] = req.DateFrom.Format(s.dateLayout)
	}
	if req.DateTo != nil && s.dateToParam != "" {
		params[s.dateToParam] = req.DateTo.Format(s.dateLayout)
	}
	return params
}

func (s *source) fetch(ctx context.Context, req PageRequest) (*Page, error) {
	resp, err := s.client.Request(ctx, Request{
		Endpoint: s.endpoint,
		Method:   http.MethodGet,
		Params:   s.queryParams(req),
	})
	if err != nil {
		return nil, err
	}
	return s.extract(resp.Data)
}

// extract pulls the records (and total, when configured) out of the response envelope.
func (s *source) extract(data any) (*Page, error) {
	raw := data
	if s.recordsPath != "" {
		found, err := jmespath.Search(s.recordsPath, data)
		if err != nil {
			return nil, fmt.Errorf("invalid records path %q: %w", s.recordsPath, err)
		}
		raw = found
	}

	page := &Page{Records: []map[string]any{}}
	if raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: records at %q are %T, not an array", ErrUnexpectedPayload, s.recordsPath, raw)
		}
		for i, item := range items {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: record %d is %T, not an object", ErrUnexpectedPayload, i, item)
			}
			if s.flatten {
				record = flatten(record)
			}
			page.Records = append(page.Records, record)
		}
	}

	if s.totalPath != "" {
		if found, err := jmespath.Search(s.totalPath, data); err == nil {
			if f, ok := found.(float64); ok {
				total := int(f)
				page.Total = &total
			}
		}
	}
	return page, nil
}

// flatten lifts nested objects into "parent_child" keys so aliases can reach them.
func flatten(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := transform.NormalizeFieldName(k)
			if prefix != "" {
				key = prefix + "_" + key
			}
			if nested, ok := v.(map[string]any); ok {
				walk(key, nested)
				continue
			}
			out[key] = v
		}
	}
	walk("", record)
	return out
}

// settings reads typed values out of a connector's free-form settings.
type settings struct {
	cfg *models.ConnectorConfig
}

func (s settings) str(key, fallback string) string {
	return s.cfg.Setting(key, fallback)
}

func (s settings) integer(key string, fallback int) int {
	switch v := s.cfg.Settings.Data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func (s settings) params(key string) map[string]string {
	out := map[string]string{}
	if m, ok := s.cfg.Settings.Data[key].(map[string]any); ok {
		for k, v := range m {
			if str, ok := transform.ToString(v); ok {
				out[k] = str
			}
		}
	}
	return out
}

func (s settings) aliases() map[string]string {
	return s.params("aliases")
}

func (s settings) separators(fallback transform.Separators) transform.Separators {
	return transform.Separators{
		Thousands: s.str("thousands_separator", fallback.Thousands),
		Decimal:   s.str("decimal_separator", fallback.Decimal),
	}
}

// mergeAliases layers operator-configured aliases over the connector's own.
func mergeAliases(base map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
