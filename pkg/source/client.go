// Package source implements the remote market-data boundary over HTTP.
// The pipeline depends only on session acquisition and the three-way
// error classification; everything transport-flavored stays in here.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/vnquant/marketlake/pkg/ingest"
	"github.com/vnquant/marketlake/pkg/lake"
	"github.com/vnquant/marketlake/pkg/utils"
)

// Opts is the set of options for a new Client.
type Opts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     int
	Burst   int
}

// Client talks to the market-data API. It rate-limits itself with a
// token bucket shared across all sessions so parallel workers cannot
// stampede the quota.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time
}

// NewClient creates a client with the given options.
func NewClient(o Opts) *Client {
	if o.RPS <= 0 {
		o.RPS = 10
	}
	if o.Burst <= 0 {
		o.Burst = 20
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:     o.BaseURL,
		apiKey:      o.APIKey,
		timeout:     o.Timeout,
		maxTokens:   int64(o.Burst),
		refillEvery: time.Second / time.Duration(o.RPS),
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

func (c *Client) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// take blocks until a token is available or the context ends.
func (c *Client) take(ctx context.Context) error {
	for {
		c.refill()
		if atomic.AddInt64(&c.tokens, -1) >= 0 {
			return nil
		}
		atomic.AddInt64(&c.tokens, 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.refillEvery):
		}
	}
}

// get performs one classified GET. HTTP 429 is a rate limit, transport
// errors and 5xx are connectivity failures, any other non-OK status is
// permanent for the entity.
func (c *Client) get(ctx context.Context, httpClient *http.Client, path string, query url.Values) ([]map[string]any, error) {
	if err := c.take(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ingest.ErrConnectivity, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ingest.ErrRateLimited, resp.Status)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ingest.ErrConnectivity, resp.Status)
	default:
		return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, path)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return rows, nil
}

// Entities returns the full listed-symbol universe.
func (c *Client) Entities(ctx context.Context) ([]string, error) {
	httpClient := &http.Client{Timeout: c.timeout}
	defer httpClient.CloseIdleConnections()

	rows, err := c.get(ctx, httpClient, "/symbols", url.Values{"type": {"stock"}})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	var symbols []string
	for _, row := range rows {
		if s, ok := row["symbol"].(string); ok && s != "" {
			symbols = append(symbols, s)
		}
	}
	return utils.Dedup(symbols), nil
}

// Dataset scopes the client to one API path, yielding an ingest.Source.
// Extra query parameters (interval, report type) ride along every fetch.
type Dataset struct {
	client       *Client
	path         string
	entityColumn string
	params       url.Values
}

// Dataset builds a source for one endpoint. The entity column names the
// column fetched rows carry the symbol in.
func (c *Client) Dataset(path, entityColumn string, params url.Values) *Dataset {
	return &Dataset{client: c, path: path, entityColumn: entityColumn, params: params}
}

// OpenSession hands out a session with its own transport handle, so pool
// workers never share connections.
func (d *Dataset) OpenSession(context.Context) (ingest.Session, error) {
	return &session{
		dataset:    d,
		httpClient: &http.Client{Timeout: d.client.timeout},
	}, nil
}

type session struct {
	dataset    *Dataset
	httpClient *http.Client
}

func (s *session) Fetch(ctx context.Context, entity string, w ingest.Window) (*lake.RecordSet, error) {
	d := s.dataset
	query := url.Values{}
	for k, vs := range d.params {
		query[k] = vs
	}
	query.Set("symbol", entity)
	if w.Start != "" {
		query.Set("start", string(w.Start))
	}
	if w.End != "" {
		query.Set("end", string(w.End))
	}

	rows, err := d.client.get(ctx, s.httpClient, d.path, query)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(d.path, rows, d.entityColumn, entity), nil
}

func (s *session) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// fetchedAtColumn stamps every ingested row with its crawl time.
const fetchedAtColumn = "fetched_at"

// recordsFromRows converts decoded JSON rows into a record set, stamping
// the entity and fetch-time columns. The schema is the sorted union of
// keys; value types follow the first non-nil value seen per key.
func recordsFromRows(name string, rows []map[string]any, entityColumn, entity string) *lake.RecordSet {
	if len(rows) == 0 {
		return nil
	}

	types := map[string]lake.FieldType{}
	for _, row := range rows {
		for k, v := range row {
			if _, ok := types[k]; ok || v == nil {
				continue
			}
			switch v.(type) {
			case float64:
				types[k] = lake.Float64
			case bool:
				types[k] = lake.Bool
			default:
				types[k] = lake.String
			}
		}
	}
	types[entityColumn] = lake.String
	types[fetchedAtColumn] = lake.String

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	schema := lake.Schema{Name: name}
	for _, k := range names {
		schema.Fields = append(schema.Fields, lake.Field{Name: k, Type: types[k]})
	}

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	rs := lake.NewRecordSet(schema)
	for _, row := range rows {
		rec := lake.Record{}
		for k, v := range row {
			rec[k] = v
		}
		rec[entityColumn] = entity
		rec[fetchedAtColumn] = fetchedAt
		rs.Append(rec)
	}
	return rs
}
