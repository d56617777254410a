package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/flx/internal/shared"
)

// Filter is an equality condition rendered as col=eq.value.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality [Filter].
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: fmt.Sprint(value)}
}

// Query selects rows of a backend table.
type Query struct {
	Select  string
	Filters []Filter
	Order   string // "column.asc" or "column.desc"
	Limit   int
}

// Where returns a copy of q with more filters.
func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

// Values renders q as query-string parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Select != "" {
		v.Set("select", q.Select)
	}
	for _, f := range q.Filters {
		v.Add(f.Column, "eq."+f.Value)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// BackendClient reads and writes rows of the backend's REST surface on behalf of the signed-in user.
type BackendClient struct {
	api    *APIService
	tokens oauth2.TokenSource
	logger *log.Logger
}

// NewBackendClient wraps api. tokens may be nil for anonymous requests.
func NewBackendClient(api *APIService, tokens oauth2.TokenSource, logger *log.Logger) *BackendClient {
	return &BackendClient{api: api, tokens: tokens, logger: shared.ComponentLogger(logger, "backend")}
}

// WithTokenSource returns a client that authenticates with ts.
func (b *BackendClient) WithTokenSource(ts oauth2.TokenSource) *BackendClient {
	return &BackendClient{api: b.api, tokens: ts, logger: b.logger}
}

func tablePath(table string, q url.Values) string {
	p := "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p
}

func (b *BackendClient) send(ctx context.Context, method, path string, payload any, header http.Header, dest any) error {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = data
	}

	if header == nil {
		header = http.Header{}
	}
	if b.tokens != nil {
		tok, err := b.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuth, err)
		}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := b.api.Do(ctx, method, path, body, header)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}

	if !resp.OK() {
		b.logger.Debug("backend request failed", "method", method, "path", path, "status", resp.StatusCode)
		return shared.NewAPIError(resp.StatusCode, errorMessage(resp.Body))
	}

	if dest == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(dest)
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.ErrorDescription != "":
		return payload.ErrorDescription
	default:
		return payload.Error
	}
}

func representation() http.Header {
	h := http.Header{}
	h.Set("Prefer", "return=representation")
	return h
}

// Select decodes the rows of table matching q into dest.
func (b *BackendClient) Select(ctx context.Context, table string, q Query, dest any) error {
	return b.send(ctx, http.MethodGet, tablePath(table, q.Values()), nil, nil, dest)
}

// Insert creates row and decodes the stored representation into dest when non-nil.
func (b *BackendClient) Insert(ctx context.Context, table string, row, dest any) error {
	return b.send(ctx, http.MethodPost, tablePath(table, nil), row, representation(), dest)
}

// Upsert inserts row or merges it into the existing row with the same onConflict columns.
func (b *BackendClient) Upsert(ctx context.Context, table string, row any, onConflict string, dest any) error {
	h := representation()
	h.Add("Prefer", "resolution=merge-duplicates")
	q := url.Values{"on_conflict": {onConflict}}
	return b.send(ctx, http.MethodPost, tablePath(table, q), row, h, dest)
}

// Update patches the rows matching q.
func (b *BackendClient) Update(ctx context.Context, table string, q Query, patch, dest any) error {
	return b.send(ctx, http.MethodPatch, tablePath(table, q.Values()), patch, representation(), dest)
}

// Delete removes the rows matching q and decodes the deleted rows into dest when non-nil.
func (b *BackendClient) Delete(ctx context.Context, table string, q Query, dest any) error {
	return b.send(ctx, http.MethodDelete, tablePath(table, q.Values()), nil, representation(), dest)
}
