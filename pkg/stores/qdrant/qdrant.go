package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/theapemachine/memoria/pkg/memory"
)

// Client wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "memories"
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.httpClient.Timeout = timeout
		}
	}
}

// New returns a Client with sane defaults.
func New(endpoint, collection string, options ...Option) *Client {
	client := &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		Collection: collection,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

type point struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score,omitempty"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector,omitempty"`
}

/*
StatusError is a non-2xx answer from Qdrant, carrying its error message
when the body had one.
*/
type StatusError struct {
	Op     string
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant: %s status %d: %s", e.Op, e.Status, e.Reason)
}

func (client *Client) path(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", client.Endpoint, url.PathEscape(client.Collection), suffix)
}

/*
do sends one request and decodes the "result" member of the answer into
out when out is non-nil.
*/
func (client *Client) do(ctx context.Context, op, method, target string, body any, out any) error {
	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: %s encode: %w", op, err)
		}

		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if client.apiKey != "" {
		req.Header.Set("api-key", client.apiKey)
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s: %w", op, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}

		raw, _ := io.ReadAll(resp.Body)
		reason := strings.TrimSpace(string(raw))

		if json.Unmarshal(raw, &failure) == nil && failure.Status.Error != "" {
			reason = failure.Status.Error
		}

		return &StatusError{Op: op, Status: resp.StatusCode, Reason: reason}
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("qdrant: %s decode: %w", op, err)
	}

	if len(envelope.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("qdrant: %s decode result: %w", op, err)
	}

	return nil
}

/*
EnsureCollection creates the collection with cosine distance unless it is
already there. A concurrent creator winning the race is not an error.
*/
func (client *Client) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	err := client.do(ctx, "get collection", http.MethodGet, client.path(""), nil, nil)

	if err == nil {
		return false, nil
	}

	if status, ok := err.(*StatusError); !ok || status.Status != http.StatusNotFound {
		return false, err
	}

	err = client.do(ctx, "create collection", http.MethodPut, client.path(""), map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
	}, nil)

	if alreadyExists(err) {
		return false, nil
	}

	return err == nil, err
}

func (client *Client) EnsureIndex(ctx context.Context, field string, schema memory.IndexSchema) error {
	err := client.do(ctx, "create index", http.MethodPut, client.path("/index?wait=true"), map[string]any{
		"field_name":   field,
		"field_schema": string(schema),
	}, nil)

	if alreadyExists(err) {
		return nil
	}

	return err
}

func alreadyExists(err error) bool {
	status, ok := err.(*StatusError)
	if !ok {
		return false
	}

	return status.Status == http.StatusConflict || strings.Contains(strings.ToLower(status.Reason), "already exists")
}

// Upsert writes points, replacing any with the same id.
func (client *Client) Upsert(ctx context.Context, points ...memory.Point) error {
	out := make([]point, 0, len(points))

	for _, p := range points {
		out = append(out, point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	return client.do(ctx, "upsert", http.MethodPut, client.path("/points?wait=true"), map[string]any{
		"points": out,
	}, nil)
}

func (client *Client) Search(
	ctx context.Context,
	vector []float32,
	limit int,
	filter *memory.Filter,
	threshold float64,
) ([]memory.ScoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	if threshold > 0 {
		body["score_threshold"] = threshold
	}

	if f := encodeFilter(filter); f != nil {
		body["filter"] = f
	}

	var result []point

	if err := client.do(ctx, "search", http.MethodPost, client.path("/points/search"), body, &result); err != nil {
		return nil, err
	}

	scored := make([]memory.ScoredPoint, 0, len(result))

	for _, r := range result {
		scored = append(scored, memory.ScoredPoint{ID: pointID(r.ID), Score: r.Score, Payload: r.Payload})
	}

	return scored, nil
}

func (client *Client) Retrieve(ctx context.Context, ids ...string) ([]memory.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var result []point

	if err := client.do(ctx, "retrieve", http.MethodPost, client.path("/points"), map[string]any{
		"ids":          ids,
		"with_payload": true,
	}, &result); err != nil {
		return nil, err
	}

	return toPoints(result), nil
}

func (client *Client) SetPayload(ctx context.Context, ids []string, payload map[string]any) error {
	if len(ids) == 0 {
		return nil
	}

	return client.do(ctx, "set payload", http.MethodPost, client.path("/points/payload?wait=true"), map[string]any{
		"payload": payload,
		"points":  ids,
	}, nil)
}

func (client *Client) SetPayloadByFilter(ctx context.Context, filter memory.Filter, payload map[string]any) error {
	return client.do(ctx, "set payload", http.MethodPost, client.path("/points/payload?wait=true"), map[string]any{
		"payload": payload,
		"filter":  encodeFilter(&filter),
	}, nil)
}

/*
Scroll pages through matching points in id order. The cursor is Qdrant's
next_page_offset rendered as a string.
*/
func (client *Client) Scroll(ctx context.Context, filter *memory.Filter, limit int, cursor string) (memory.Page, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}

	if f := encodeFilter(filter); f != nil {
		body["filter"] = f
	}

	if cursor != "" {
		body["offset"] = offsetValue(cursor)
	}

	var result struct {
		Points []point `json:"points"`
		Next   any     `json:"next_page_offset"`
	}

	if err := client.do(ctx, "scroll", http.MethodPost, client.path("/points/scroll"), body, &result); err != nil {
		return memory.Page{}, err
	}

	page := memory.Page{Points: toPoints(result.Points)}

	if result.Next != nil {
		page.Next = pointID(result.Next)
	}

	return page, nil
}

func (client *Client) Count(ctx context.Context, filter *memory.Filter) (int64, error) {
	body := map[string]any{"exact": true}

	if f := encodeFilter(filter); f != nil {
		body["filter"] = f
	}

	var result struct {
		Count int64 `json:"count"`
	}

	if err := client.do(ctx, "count", http.MethodPost, client.path("/points/count"), body, &result); err != nil {
		return 0, err
	}

	return result.Count, nil
}

// Delete removes points by ID.
func (client *Client) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	return client.do(ctx, "delete", http.MethodPost, client.path("/points/delete?wait=true"), map[string]any{
		"points": ids,
	}, nil)
}

func (client *Client) Close() error {
	client.httpClient.CloseIdleConnections()
	return nil
}

func toPoints(result []point) []memory.Point {
	points := make([]memory.Point, 0, len(result))

	for _, r := range result {
		points = append(points, memory.Point{ID: pointID(r.ID), Vector: r.Vector, Payload: r.Payload})
	}

	return points
}

// Qdrant ids are either UUID strings or unsigned integers.
func pointID(id any) string {
	if f, ok := id.(float64); ok {
		return strconv.FormatUint(uint64(f), 10)
	}

	return fmt.Sprint(id)
}

func offsetValue(cursor string) any {
	if n, err := strconv.ParseUint(cursor, 10, 64); err == nil {
		return n
	}

	return cursor
}
