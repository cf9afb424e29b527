package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	xhttp "MacroPull/pkg/http"
)

// ErrEmptyResponse is returned when the upstream answered but carried no usable observation.
var ErrEmptyResponse = errors.New("upstream returned no observation")

// HTTPSourceBase centralizes the base URL and client shared by every upstream adapter.
type HTTPSourceBase struct {
	name    string
	baseURL string
	client  *xhttp.Client
}

func NewHTTPSourceBase(name, baseURL string, client *xhttp.Client) *HTTPSourceBase {
	return &HTTPSourceBase{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name is the source label used for scheduling groups, breakers and metrics.
func (b *HTTPSourceBase) Name() string { return b.name }

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPSourceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if err := b.ready(); err != nil {
		return err
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s post %s: %w", b.name, path, err)
	}
	return nil
}

// Get issues a GET to path under baseURL. dest follows xhttp.Client.SendAndParse rules.
func (b *HTTPSourceBase) Get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if err := b.ready(); err != nil {
		return err
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		Headers:     map[string]string{"Accept": "application/json, text/csv"},
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s get %s: %w", b.name, path, err)
	}
	return nil
}

func (b *HTTPSourceBase) ready() error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("%s source not configured", b.name)
	}
	return nil
}

// ParseValue parses an upstream numeric string. Agencies use ".." or "" for missing cells.
func ParseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == ".." || raw == "." {
		return 0, ErrEmptyResponse
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", raw, err)
	}
	return d.InexactFloat64(), nil
}
